// Package rag answers questions over the knowledge base: embed the query,
// retrieve similar chunks, assemble a token-bounded context, and generate.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/kazane-dev/kiroku/internal/config"
	"github.com/kazane-dev/kiroku/internal/embedding"
	"github.com/kazane-dev/kiroku/internal/genmodel"
	"github.com/kazane-dev/kiroku/internal/models"
	"github.com/kazane-dev/kiroku/internal/vector"
	"go.uber.org/zap"
)

// Generator is the slice of the model gateway the orchestrator needs.
type Generator interface {
	Generate(ctx context.Context, useCase genmodel.UseCase, prompt string) (string, error)
	CountTokens(ctx context.Context, text string) (int, error)
}

// Orchestrator runs the retrieval-augmented answer pipeline.
type Orchestrator struct {
	embedder  embedding.Embedder
	index     vector.Index
	generator Generator
	cfg       config.RetrievalConfig
	logger    *zap.Logger
}

// New creates an orchestrator.
func New(embedder embedding.Embedder, index vector.Index, generator Generator,
	cfg config.RetrievalConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		embedder:  embedder,
		index:     index,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Ask answers question for userID. topK overrides the configured neighbor
// count when positive. Retrieval failures degrade to generation without
// context; only a generation failure fails the call.
func (o *Orchestrator) Ask(ctx context.Context, userID, question string, topK int) (*models.Answer, error) {
	if topK <= 0 {
		topK = o.cfg.TopK
	}
	sources := o.retrieve(ctx, userID, question, topK)
	selected := o.assembleContext(ctx, sources)

	answer, err := o.generator.Generate(ctx, genmodel.UseCaseRAG, buildPrompt(question, selected))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &models.Answer{
		Text:          answer,
		Sources:       selected,
		ContextChunks: len(selected),
	}, nil
}

// retrieve embeds the question and returns chunks above the score threshold.
// Any failure here returns no sources instead of an error.
func (o *Orchestrator) retrieve(ctx context.Context, userID, question string, topK int) []models.RetrievalResult {
	vec, err := o.embedder.Embed(ctx, question)
	if err != nil {
		o.logger.Warn("query embedding failed, answering without context", zap.Error(err))
		return nil
	}

	matches, err := o.index.Query(ctx, vec, topK, vector.Filter{"user_id": userID})
	if err != nil {
		o.logger.Warn("similarity search failed, answering without context", zap.Error(err))
		return nil
	}

	results := make([]models.RetrievalResult, 0, len(matches))
	for _, m := range matches {
		if m.Score < o.cfg.ScoreThreshold {
			continue
		}
		results = append(results, models.RetrievalResult{
			ChunkID:  m.ID,
			Score:    m.Score,
			Text:     m.Payload["text"],
			FileName: m.Payload["file_name"],
		})
	}
	o.logger.Debug("retrieval complete",
		zap.Int("matches", len(matches)),
		zap.Int("above_threshold", len(results)))
	return results
}

// assembleContext keeps sources in score order until the token budget is
// spent. The budget covers the retrieved chunks only, not the question.
func (o *Orchestrator) assembleContext(ctx context.Context, sources []models.RetrievalResult) []models.RetrievalResult {
	if len(sources) == 0 {
		return nil
	}
	used := 0
	var selected []models.RetrievalResult
	for _, s := range sources {
		cost := o.countTokens(ctx, s.Text)
		if used+cost > o.cfg.TokenBudget {
			break
		}
		used += cost
		selected = append(selected, s)
	}
	return selected
}

// countTokens asks the model tokenizer, falling back to a bytes/4 estimate
// when the call fails.
func (o *Orchestrator) countTokens(ctx context.Context, text string) int {
	n, err := o.generator.CountTokens(ctx, text)
	if err != nil || n <= 0 {
		return len(text)/4 + 1
	}
	return n
}

func buildPrompt(question string, sources []models.RetrievalResult) string {
	if len(sources) == 0 {
		return question
	}
	var b strings.Builder
	b.WriteString("Answer the question using the context below. ")
	b.WriteString("If the context does not contain the answer, say so.\n\nContext:\n")
	for i, s := range sources {
		fmt.Fprintf(&b, "[%d] (%s)\n%s\n\n", i+1, s.FileName, s.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
