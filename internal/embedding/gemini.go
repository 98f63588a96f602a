package embedding

import (
	"context"
	"fmt"

	"github.com/kazane-dev/kiroku/pkg/utils"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiEmbedder produces embeddings through the Gemini embedContent API.
// Results are L2-normalized so cosine similarity reduces to a dot product,
// and cached by text hash.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dims   int
	cache  *Cache
	logger *zap.Logger
}

// NewGeminiEmbedder builds an embedder for the given model and output
// dimensionality. cacheSize bounds the LRU cache.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string, dims, cacheSize int, logger *zap.Logger) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiEmbedder{
		client: client,
		model:  model,
		dims:   dims,
		cache:  NewCache(cacheSize),
		logger: logger,
	}, nil
}

// Embed returns the embedding for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := Key(text)
	if v, ok := e.cache.Get(key); ok {
		return v, nil
	}

	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, vecs[0])
	return vecs[0], nil
}

// EmbedBatch embeds texts, calling the API only for cache misses. The batch
// is sent as one request.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := e.cache.Get(Key(t)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		e.cache.Set(Key(texts[i]), vecs[j])
	}
	e.logger.Debug("embedded batch",
		zap.Int("texts", len(texts)),
		zap.Int("cache_hits", len(texts)-len(missTexts)))
	return out, nil
}

// Dimensions returns the configured output dimensionality.
func (e *GeminiEmbedder) Dimensions() int { return e.dims }

func (e *GeminiEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	dims := int32(e.dims)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents,
		&genai.EmbedContentConfig{OutputDimensionality: &dims})
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed content: got %d embeddings for %d texts",
			len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("embed content: empty embedding at %d", i)
		}
		v := append([]float32(nil), emb.Values...)
		utils.NormalizeL2(v)
		vecs[i] = v
	}
	return vecs, nil
}
