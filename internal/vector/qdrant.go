package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kazane-dev/kiroku/internal/config"
)

// QdrantIndex is a minimal REST client to Qdrant. It assumes cosine distance
// and creates the collection on startup if missing.
type QdrantIndex struct {
	url        string
	apiKey     string
	collection string
	dimensions int
	client     *http.Client
}

// NewQdrantIndex connects to Qdrant and ensures the collection exists.
func NewQdrantIndex(ctx context.Context, cfg config.QdrantConfig, dimensions int) (*QdrantIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	q := &QdrantIndex{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimensions: dimensions,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
	// Qdrant returns 200 for an existing collection with the same schema.
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	if err := q.do(ctx, http.MethodPut, q.collectionURL(""), body, nil); err != nil {
		return nil, fmt.Errorf("ensure qdrant collection: %w", err)
	}
	return q, nil
}

// Upsert writes entries as points keyed by chunk id.
func (q *QdrantIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		payload := make(map[string]any, len(e.Payload))
		for k, v := range e.Payload {
			payload[k] = v
		}
		points[i] = map[string]any{
			"id":      e.ID,
			"vector":  e.Vector,
			"payload": payload,
		}
	}
	body := map[string]any{"points": points}
	return q.do(ctx, http.MethodPut, q.collectionURL("/points?wait=true"), body, nil)
}

// Query runs a similarity search with an exact-match payload filter.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var must []map[string]any
	for k, v := range filter {
		if v == "" {
			continue
		}
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": v},
		})
	}
	if len(must) > 0 {
		req["filter"] = map[string]any{"must": must}
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, q.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		payload := make(map[string]string, len(r.Payload))
		for k, v := range r.Payload {
			if s, ok := v.(string); ok {
				payload[k] = s
			}
		}
		matches = append(matches, Match{
			ID:      fmt.Sprintf("%v", r.ID),
			Score:   r.Score,
			Payload: payload,
		})
	}
	return matches, nil
}

// Delete removes points by id.
func (q *QdrantIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	return q.do(ctx, http.MethodPost, q.collectionURL("/points/delete?wait=true"), body, nil)
}

// Close is a no-op; the REST client holds no connection state.
func (q *QdrantIndex) Close(context.Context) error { return nil }

func (q *QdrantIndex) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", q.url, q.collection, suffix)
}

func (q *QdrantIndex) do(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal qdrant request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
