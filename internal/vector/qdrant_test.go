package vector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kazane-dev/kiroku/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configFor(backend string) config.VectorConfig {
	return config.VectorConfig{Backend: backend, Dimensions: 3}
}

func TestQdrantIndex_QueryWithFilter(t *testing.T) {
	var searchBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/collections/chunks/points/search":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&searchBody))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"result": []map[string]any{
					{"id": "c1", "score": 0.92, "payload": map[string]any{"text": "hit one", "user_id": "u1"}},
					{"id": "c2", "score": 0.81, "payload": map[string]any{"text": "hit two", "user_id": "u1"}},
				},
			})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	idx, err := NewQdrantIndex(context.Background(),
		config.QdrantConfig{URL: srv.URL, Collection: "chunks"}, 3)
	require.NoError(t, err)

	matches, err := idx.Query(context.Background(), []float32{1, 0, 0}, 5, Filter{"user_id": "u1"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "c1", matches[0].ID)
	assert.Equal(t, 0.92, matches[0].Score)
	assert.Equal(t, "hit one", matches[0].Payload["text"])

	// The filter must have been sent as an exact-match condition.
	filter, ok := searchBody["filter"].(map[string]any)
	require.True(t, ok, "search request should carry a filter")
	must := filter["must"].([]any)
	require.Len(t, must, 1)
	cond := must[0].(map[string]any)
	assert.Equal(t, "user_id", cond["key"])
}

func TestQdrantIndex_UpsertAndDelete(t *testing.T) {
	var upserted, deleted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
			if r.URL.Query().Get("wait") == "true" {
				t.Errorf("collection creation should not carry wait")
			}
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points":
			var body struct {
				Points []struct {
					ID string `json:"id"`
				} `json:"points"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Len(t, body.Points, 1)
			assert.Equal(t, "c1", body.Points[0].ID)
			upserted = true
		case r.Method == http.MethodPost && r.URL.Path == "/collections/chunks/points/delete":
			deleted = true
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	idx, err := NewQdrantIndex(context.Background(),
		config.QdrantConfig{URL: srv.URL, Collection: "chunks"}, 3)
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(context.Background(), []Entry{
		{ID: "c1", Vector: []float32{1, 0, 0}, Payload: map[string]string{"text": "x"}},
	}))
	require.NoError(t, idx.Delete(context.Background(), []string{"c1"}))
	assert.True(t, upserted)
	assert.True(t, deleted)
}

func TestQdrantIndex_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewQdrantIndex(context.Background(),
		config.QdrantConfig{URL: srv.URL, Collection: "chunks"}, 3)
	assert.Error(t, err)
}
