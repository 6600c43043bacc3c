package embed

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/cortexdb/cortexdb/internal/observability"
	"github.com/cortexdb/cortexdb/internal/retry"
)

// Defaults used when neither the provider row nor the configuration names a
// model.
const (
	DefaultGeminiModel = "text-embedding-004"
	DefaultVisionModel = "gemini-1.5-flash"
)

// Vision prompts. OCR asks for a verbatim transcript; Describe asks for a
// caption dense enough to index.
const (
	ocrPrompt      = "Extract all textual content from this document image. Respond with text only."
	describePrompt = "Provide a concise description of this image suitable for search indexing."
)

// GeminiConfig configures the Gemini embedder and vision client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	VisionModel string
	Retry       retry.Config
	Metrics     *observability.Metrics
}

// Gemini embeds text through the Gemini API and doubles as the vision
// provider for image description and document OCR.
type Gemini struct {
	client      *genai.Client
	model       string
	visionModel string
	retry       retry.Config
	metrics     *observability.Metrics
}

// NewGemini builds the client. Construction does not dial.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = DefaultVisionModel
	}
	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}

	return &Gemini{
		client:      client,
		model:       model,
		visionModel: visionModel,
		retry:       retryCfg,
		metrics:     cfg.Metrics,
	}, nil
}

// EmbedText implements Embedder.
func (g *Gemini) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder.
func (g *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: t}},
		}
	}

	start := time.Now()
	var resp *genai.EmbedContentResponse
	result := retry.Do(ctx, g.retry, func() error {
		var err error
		resp, err = g.client.Models.EmbedContent(ctx, g.model, contents, nil)
		return err
	})
	if result.Err != nil {
		g.observe("error", start)
		return nil, fmt.Errorf("gemini embeddings: %w", result.Err)
	}
	if len(resp.Embeddings) != len(texts) {
		g.observe("error", start)
		return nil, fmt.Errorf("gemini embeddings: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	g.observe("success", start)
	return out, nil
}

// Dim implements Embedder by embedding a probe text.
func (g *Gemini) Dim(ctx context.Context) (int, error) {
	vec, err := g.EmbedText(ctx, probeText)
	if err != nil {
		return 0, err
	}
	return len(vec), nil
}

// OCR transcribes a scanned document.
func (g *Gemini) OCR(ctx context.Context, data []byte, mimeType string) (string, error) {
	return g.generate(ctx, ocrPrompt, data, mimeType)
}

// Describe captions an image for indexing.
func (g *Gemini) Describe(ctx context.Context, data []byte, mimeType string) (string, error) {
	return g.generate(ctx, describePrompt, data, mimeType)
}

func (g *Gemini) generate(ctx context.Context, prompt string, data []byte, mimeType string) (string, error) {
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{Text: prompt},
			{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}},
		},
	}}

	var resp *genai.GenerateContentResponse
	result := retry.Do(ctx, g.retry, func() error {
		var err error
		resp, err = g.client.Models.GenerateContent(ctx, g.visionModel, contents, nil)
		return err
	})
	if result.Err != nil {
		return "", fmt.Errorf("gemini vision: %w", result.Err)
	}
	return resp.Text(), nil
}

func (g *Gemini) observe(status string, start time.Time) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordEmbedding("gemini", g.model, status, time.Since(start).Seconds(), 0)
}
