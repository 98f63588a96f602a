package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kazane-dev/kiroku/internal/config"
	"github.com/kazane-dev/kiroku/internal/embedding"
	"github.com/kazane-dev/kiroku/internal/genmodel"
	"github.com/kazane-dev/kiroku/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeGenerator records the last prompt and returns canned output.
type fakeGenerator struct {
	lastPrompt string
	genErr     error
	tokenErr   error
}

func (f *fakeGenerator) Generate(_ context.Context, _ genmodel.UseCase, prompt string) (string, error) {
	f.lastPrompt = prompt
	if f.genErr != nil {
		return "", f.genErr
	}
	return "the answer", nil
}

func (f *fakeGenerator) CountTokens(_ context.Context, text string) (int, error) {
	if f.tokenErr != nil {
		return 0, f.tokenErr
	}
	// One token per word keeps budgets easy to reason about.
	return len(strings.Fields(text)), nil
}

// scriptedIndex returns fixed matches regardless of the query vector.
type scriptedIndex struct {
	vector.Index
	matches    []vector.Match
	queryErr   error
	lastFilter vector.Filter
	lastTopK   int
}

func (s *scriptedIndex) Query(_ context.Context, _ []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	s.lastFilter = filter
	s.lastTopK = topK
	return s.matches, s.queryErr
}

func match(id string, score float64, text string) vector.Match {
	return vector.Match{ID: id, Score: score, Payload: map[string]string{
		"text":      text,
		"file_name": "doc.pdf",
		"user_id":   "u1",
	}}
}

func newOrchestrator(idx vector.Index, gen Generator, cfg config.RetrievalConfig) *Orchestrator {
	return New(embedding.NewMockEmbedder(8), idx, gen, cfg, zap.NewNop())
}

func defaultRetrieval() config.RetrievalConfig {
	return config.RetrievalConfig{TopK: 5, ScoreThreshold: 0.7, TokenBudget: 30000}
}

func TestAsk_FiltersByThreshold(t *testing.T) {
	idx := &scriptedIndex{matches: []vector.Match{
		match("c1", 0.9, "high relevance"),
		match("c2", 0.75, "medium relevance"),
		match("c3", 0.5, "low relevance"),
	}}
	gen := &fakeGenerator{}
	o := newOrchestrator(idx, gen, defaultRetrieval())

	ans, err := o.Ask(context.Background(), "u1", "what is relevant?", 0)
	require.NoError(t, err)
	assert.Equal(t, "the answer", ans.Text)
	assert.Equal(t, 2, ans.ContextChunks)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "c1", ans.Sources[0].ChunkID)
	assert.Equal(t, "c2", ans.Sources[1].ChunkID)

	assert.Contains(t, gen.lastPrompt, "high relevance")
	assert.Contains(t, gen.lastPrompt, "medium relevance")
	assert.NotContains(t, gen.lastPrompt, "low relevance")
	assert.Equal(t, "u1", idx.lastFilter["user_id"])
}

func TestAsk_TopKOverride(t *testing.T) {
	idx := &scriptedIndex{}
	gen := &fakeGenerator{}
	o := newOrchestrator(idx, gen, defaultRetrieval())

	_, err := o.Ask(context.Background(), "u1", "q", 12)
	require.NoError(t, err)
	assert.Equal(t, 12, idx.lastTopK)

	_, err = o.Ask(context.Background(), "u1", "q", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, idx.lastTopK)
}

func TestAsk_TokenBudgetTruncatesContext(t *testing.T) {
	idx := &scriptedIndex{matches: []vector.Match{
		match("c1", 0.95, strings.Repeat("alpha ", 6)),
		match("c2", 0.9, strings.Repeat("beta ", 6)),
		match("c3", 0.85, strings.Repeat("gamma ", 6)),
	}}
	gen := &fakeGenerator{}
	cfg := defaultRetrieval()
	cfg.TokenBudget = 16 // two 6-word chunks fit, a third would push past 16
	o := newOrchestrator(idx, gen, cfg)

	ans, err := o.Ask(context.Background(), "u1", "what is this", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, ans.ContextChunks)
	assert.NotContains(t, gen.lastPrompt, "gamma")
}

func TestAsk_QuestionNotChargedToBudget(t *testing.T) {
	idx := &scriptedIndex{matches: []vector.Match{
		match("c1", 0.95, strings.Repeat("alpha ", 6)),
		match("c2", 0.9, strings.Repeat("beta ", 6)),
	}}
	gen := &fakeGenerator{}
	cfg := defaultRetrieval()
	cfg.TokenBudget = 12 // exactly the two chunks, no headroom
	o := newOrchestrator(idx, gen, cfg)

	// A long question must not displace retrieved context.
	question := strings.TrimSpace(strings.Repeat("why ", 50))
	ans, err := o.Ask(context.Background(), "u1", question, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, ans.ContextChunks)
}

func TestAsk_RetrievalFailureDegradesGracefully(t *testing.T) {
	idx := &scriptedIndex{queryErr: errors.New("vector store down")}
	gen := &fakeGenerator{}
	o := newOrchestrator(idx, gen, defaultRetrieval())

	ans, err := o.Ask(context.Background(), "u1", "still answer me", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, ans.ContextChunks)
	assert.Empty(t, ans.Sources)
	// Without context the question goes through unwrapped.
	assert.Equal(t, "still answer me", gen.lastPrompt)
}

func TestAsk_NoMatchesAboveThreshold(t *testing.T) {
	idx := &scriptedIndex{matches: []vector.Match{match("c1", 0.2, "irrelevant")}}
	gen := &fakeGenerator{}
	o := newOrchestrator(idx, gen, defaultRetrieval())

	ans, err := o.Ask(context.Background(), "u1", "anything?", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, ans.ContextChunks)
	assert.Equal(t, "anything?", gen.lastPrompt)
}

func TestAsk_GenerationFailurePropagates(t *testing.T) {
	idx := &scriptedIndex{matches: []vector.Match{match("c1", 0.9, "context")}}
	gen := &fakeGenerator{genErr: errors.New("model exploded")}
	o := newOrchestrator(idx, gen, defaultRetrieval())

	_, err := o.Ask(context.Background(), "u1", "q", 0)
	require.Error(t, err)
	assert.ErrorContains(t, err, "generate answer")
}

func TestAsk_TokenCountFallback(t *testing.T) {
	idx := &scriptedIndex{matches: []vector.Match{match("c1", 0.9, strings.Repeat("x", 100))}}
	gen := &fakeGenerator{tokenErr: errors.New("count unavailable")}
	o := newOrchestrator(idx, gen, defaultRetrieval())

	// len/4 estimate keeps the chunk well under budget.
	ans, err := o.Ask(context.Background(), "u1", "q", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, ans.ContextChunks)
}
