package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cortexdb/cortexdb/internal/schema"
)

type stubVision struct {
	ocrText      string
	describeText string
	err          error

	ocrCalls      int
	describeCalls int
	lastMime      string
}

func (s *stubVision) OCR(_ context.Context, _ []byte, mimeType string) (string, error) {
	s.ocrCalls++
	s.lastMime = mimeType
	return s.ocrText, s.err
}

func (s *stubVision) Describe(_ context.Context, _ []byte, mimeType string) (string, error) {
	s.describeCalls++
	s.lastMime = mimeType
	return s.describeText, s.err
}

func TestExtractPlaceholderForUnknownTypes(t *testing.T) {
	e := &Extractor{}
	cfg := schema.DefaultExtractConfig()

	elements, err := e.Extract(context.Background(), "report.bin", "application/octet-stream", []byte{0x00, 0x01}, cfg)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(elements) != 1 || elements[0] != "File uploaded: report.bin" {
		t.Errorf("elements = %v, want single placeholder", elements)
	}
}

func TestExtractDisabledSkipsExtraction(t *testing.T) {
	vision := &stubVision{describeText: "a cat"}
	e := &Extractor{Vision: vision}

	elements, err := e.Extract(context.Background(), "cat.png", "image/png", []byte("png-bytes"), schema.ExtractConfig{ExtractText: false})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(elements) != 1 || elements[0] != "File uploaded: cat.png" {
		t.Errorf("elements = %v, want placeholder", elements)
	}
	if vision.describeCalls != 0 {
		t.Errorf("vision called %d times with extraction disabled", vision.describeCalls)
	}
}

func TestExtractImageUsesVision(t *testing.T) {
	vision := &stubVision{describeText: "diagram of the ingestion pipeline"}
	e := &Extractor{Vision: vision}

	elements, err := e.Extract(context.Background(), "arch.png", "image/png", []byte("png-bytes"), schema.DefaultExtractConfig())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(elements) != 1 || elements[0] != "diagram of the ingestion pipeline" {
		t.Errorf("elements = %v, want vision description", elements)
	}
	if vision.lastMime != "image/png" {
		t.Errorf("vision mime = %q, want image/png", vision.lastMime)
	}
}

func TestExtractImageWithoutVisionFallsBack(t *testing.T) {
	e := &Extractor{}

	elements, err := e.Extract(context.Background(), "photo.jpg", "image/jpeg", []byte("jpeg"), schema.DefaultExtractConfig())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(elements) != 1 || elements[0] != "File uploaded: photo.jpg" {
		t.Errorf("elements = %v, want placeholder", elements)
	}
}

func TestExtractImageVisionError(t *testing.T) {
	vision := &stubVision{err: errors.New("quota exceeded")}
	e := &Extractor{Vision: vision}

	_, err := e.Extract(context.Background(), "photo.jpg", "image/jpeg", []byte("jpeg"), schema.DefaultExtractConfig())
	if err == nil {
		t.Fatal("expected error from vision failure")
	}
	if !strings.Contains(err.Error(), "photo.jpg") {
		t.Errorf("error %q should name the file", err)
	}
}

func TestExtractScannedPDFFallsBackToOCR(t *testing.T) {
	vision := &stubVision{ocrText: "INVOICE #42\nTotal: $100"}
	e := &Extractor{Vision: vision}

	// Not a parseable PDF, which is how a truncated or image-only scan
	// presents; OCR is the rescue path.
	elements, err := e.Extract(context.Background(), "scan.pdf", "application/pdf", []byte("%PDF-1.4 garbage"), schema.DefaultExtractConfig())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(elements) != 1 || elements[0] != "INVOICE #42\nTotal: $100" {
		t.Errorf("elements = %v, want OCR text", elements)
	}
	if vision.ocrCalls != 1 {
		t.Errorf("ocr calls = %d, want 1", vision.ocrCalls)
	}
	if vision.lastMime != "application/pdf" {
		t.Errorf("ocr mime = %q, want application/pdf", vision.lastMime)
	}
}

func TestExtractBrokenPDFWithoutOCR(t *testing.T) {
	e := &Extractor{}

	_, err := e.Extract(context.Background(), "scan.pdf", "application/pdf", []byte("%PDF-1.4 garbage"), schema.ExtractConfig{ExtractText: true, OCRIfNeeded: false})
	if err == nil {
		t.Fatal("expected error for unparseable pdf without ocr")
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		data        []byte
		want        string
	}{
		{
			name:        "declared type wins",
			filename:    "doc.bin",
			contentType: "application/pdf",
			want:        "application/pdf",
		},
		{
			name:        "declared type with parameters",
			filename:    "doc.txt",
			contentType: "text/plain; charset=utf-8",
			want:        "text/plain",
		},
		{
			name:        "octet-stream defers to extension",
			filename:    "paper.pdf",
			contentType: "application/octet-stream",
			want:        "application/pdf",
		},
		{
			name:     "extension only",
			filename: "photo.png",
			want:     "image/png",
		},
		{
			name:     "sniffed from content",
			filename: "mystery",
			data:     []byte("%PDF-1.7 ..."),
			want:     "application/pdf",
		},
		{
			name:     "nothing to go on",
			filename: "mystery",
			want:     "application/octet-stream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectContentType(tt.filename, tt.contentType, tt.data); got != tt.want {
				t.Errorf("DetectContentType() = %q, want %q", got, tt.want)
			}
		})
	}
}
