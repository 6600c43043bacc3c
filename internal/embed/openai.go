package embed

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cortexdb/cortexdb/internal/observability"
	"github.com/cortexdb/cortexdb/internal/retry"
)

// DefaultOpenAIModel is used when neither the provider row nor the
// configuration names a model.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Retry   retry.Config
	Metrics *observability.Metrics
}

// OpenAI embeds text through the OpenAI embeddings API. Also covers
// OpenAI-compatible endpoints via BaseURL.
type OpenAI struct {
	client  *openai.Client
	model   string
	retry   retry.Config
	metrics *observability.Metrics
}

// NewOpenAI builds the embedder. Construction does not dial.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}

	return &OpenAI{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		retry:   retryCfg,
		metrics: cfg.Metrics,
	}
}

// EmbedText implements Embedder.
func (o *OpenAI) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder. Results keep input order via the response
// index field.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	var resp openai.EmbeddingResponse
	result := retry.Do(ctx, o.retry, func() error {
		var err error
		resp, err = o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(o.model),
		})
		return err
	})
	if result.Err != nil {
		o.observe("error", start, 0)
		return nil, fmt.Errorf("openai embeddings: %w", result.Err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			o.observe("error", start, resp.Usage.TotalTokens)
			return nil, fmt.Errorf("openai embeddings: response index %d out of range for %d inputs", d.Index, len(texts))
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			o.observe("error", start, resp.Usage.TotalTokens)
			return nil, fmt.Errorf("openai embeddings: missing embedding for input %d", i)
		}
	}

	o.observe("success", start, resp.Usage.TotalTokens)
	return out, nil
}

// Dim implements Embedder by embedding a probe text.
func (o *OpenAI) Dim(ctx context.Context) (int, error) {
	vec, err := o.EmbedText(ctx, probeText)
	if err != nil {
		return 0, err
	}
	return len(vec), nil
}

func (o *OpenAI) observe(status string, start time.Time, tokens int) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordEmbedding("openai", o.model, status, time.Since(start).Seconds(), tokens)
}
