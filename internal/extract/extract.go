// Package extract turns uploaded files into indexable text elements. PDFs
// yield their selectable text page by page; images go through the vision
// provider; everything else indexes a filename placeholder so the record
// stays searchable by name.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/cortexdb/cortexdb/internal/schema"
)

// Vision produces text from binary documents: OCR for scans, a short
// description for photographs. Implementations may be absent; the extractor
// degrades to placeholders when Vision is nil.
type Vision interface {
	OCR(ctx context.Context, data []byte, mimeType string) (string, error)
	Describe(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Extractor dispatches uploads to the right text extraction strategy.
type Extractor struct {
	Vision Vision
}

// Extract returns the text elements of one uploaded file. The elements feed
// the element chunker, so page and description boundaries survive into
// chunking.
func (e *Extractor) Extract(ctx context.Context, filename, contentType string, data []byte, cfg schema.ExtractConfig) ([]string, error) {
	if !cfg.ExtractText {
		return []string{placeholder(filename)}, nil
	}

	switch ct := DetectContentType(filename, contentType, data); {
	case ct == "application/pdf":
		return e.extractPDF(ctx, filename, data, cfg)
	case strings.HasPrefix(ct, "image/"):
		return e.describeImage(ctx, filename, ct, data)
	default:
		return []string{placeholder(filename)}, nil
	}
}

// extractPDF pulls selectable text per page. A PDF without any selectable
// text (a scan) falls back to one whole-document OCR pass when the field
// allows it.
func (e *Extractor) extractPDF(ctx context.Context, filename string, data []byte, cfg schema.ExtractConfig) ([]string, error) {
	pages, err := pdfPages(data)
	if err != nil {
		if cfg.OCRIfNeeded && e.Vision != nil {
			return e.ocrDocument(ctx, filename, data)
		}
		return nil, fmt.Errorf("extract text from %s: %w", filename, err)
	}

	if len(pages) == 0 {
		if cfg.OCRIfNeeded && e.Vision != nil {
			return e.ocrDocument(ctx, filename, data)
		}
		return []string{placeholder(filename)}, nil
	}
	return pages, nil
}

func pdfPages(data []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single malformed page should not sink the document.
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return pages, nil
}

func (e *Extractor) ocrDocument(ctx context.Context, filename string, data []byte) ([]string, error) {
	text, err := e.Vision.OCR(ctx, data, "application/pdf")
	if err != nil {
		return nil, fmt.Errorf("ocr %s: %w", filename, err)
	}
	if text = strings.TrimSpace(text); text == "" {
		return []string{placeholder(filename)}, nil
	}
	return []string{text}, nil
}

func (e *Extractor) describeImage(ctx context.Context, filename, contentType string, data []byte) ([]string, error) {
	if e.Vision == nil {
		return []string{placeholder(filename)}, nil
	}
	text, err := e.Vision.Describe(ctx, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", filename, err)
	}
	if text = strings.TrimSpace(text); text == "" {
		return []string{placeholder(filename)}, nil
	}
	return []string{text}, nil
}

func placeholder(filename string) string {
	return fmt.Sprintf("File uploaded: %s", filename)
}

// DetectContentType resolves the effective MIME type of an upload: the
// declared type wins unless it is empty or the generic octet-stream, then
// the filename extension, then content sniffing.
func DetectContentType(filename, contentType string, data []byte) string {
	if ct := normalizeMime(contentType); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if ct := normalizeMime(mime.TypeByExtension(ext)); ct != "" {
			return ct
		}
	}
	if len(data) > 0 {
		return normalizeMime(http.DetectContentType(data))
	}
	return "application/octet-stream"
}

func normalizeMime(ct string) string {
	if ct == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(ct); err == nil {
		return parsed
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
