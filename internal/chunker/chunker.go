// Package chunker splits extracted text into overlapping bounded-length chunks.
package chunker

import (
	"regexp"
	"strings"
)

// sentenceBoundary marks the end of a sentence: terminal punctuation followed
// by whitespace.
var sentenceBoundary = regexp.MustCompile(`[.!?]+\s+`)

// Dynamic sizing floors keep chunk counts bounded for huge documents.
const (
	largeDocBytes    = 500 * 1024
	hugeDocBytes     = 1 << 20
	largeDocMinChunk = 8000
	hugeDocMinChunk  = 10000
)

// Chunker splits text into sentence-aligned chunks of at most maxLength
// characters, seeding each chunk after the first with an overlap tail from
// its predecessor. Chunk order is the externally observed contract: chunk
// index equals slice position.
type Chunker struct {
	maxLength int
	overlap   int
}

// New creates a chunker. overlap must be smaller than maxLength; values are
// clamped rather than rejected so a misconfigured caller still gets chunks.
func New(maxLength, overlap int) *Chunker {
	if maxLength <= 0 {
		maxLength = 5000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxLength {
		overlap = maxLength / 4
	}
	return &Chunker{maxLength: maxLength, overlap: overlap}
}

// EffectiveChunkSize returns the chunk size to use for a document of
// totalChars characters: the requested size, raised to a floor for large
// documents so huge inputs do not explode into thousands of chunks.
func EffectiveChunkSize(requested, totalChars int) int {
	size := requested
	switch {
	case totalChars > hugeDocBytes:
		if size < hugeDocMinChunk {
			size = hugeDocMinChunk
		}
	case totalChars > largeDocBytes:
		if size < largeDocMinChunk {
			size = largeDocMinChunk
		}
	}
	return size
}

// Chunk splits text into ordered chunks. Sentences are accumulated greedily;
// a sentence that alone exceeds maxLength falls back to word-level packing.
// Every chunk after the first starts with an overlap seed trimmed to the
// nearest sentence boundary inside the tail of the previous chunk.
func (c *Chunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var units []string
	for _, s := range splitSentences(text) {
		if len(s) > c.maxLength {
			// No sentence boundary to split on: degrade to words.
			units = append(units, splitWords(s, c.maxLength)...)
			continue
		}
		units = append(units, s)
	}

	var chunks []string
	cur := ""
	for _, u := range units {
		switch {
		case cur == "":
			cur = u
		case len(cur)+1+len(u) <= c.maxLength:
			cur = cur + " " + u
		default:
			chunks = append(chunks, cur)
			if seed := c.overlapSeed(cur); seed != "" {
				cur = seed + " " + u
			} else {
				cur = u
			}
		}
	}
	if cur != "" {
		chunks = append(chunks, cur)
	}
	return chunks
}

// overlapSeed returns the tail of the just-closed chunk used to seed the next
// one. The tail is trimmed to the first sentence boundary inside it so the
// seed starts cleanly; if the tail holds no boundary, the raw character tail
// is used. One character of the overlap budget is reserved for the joining
// space so seeded chunks never exceed maxLength+overlap.
func (c *Chunker) overlapSeed(chunk string) string {
	budget := c.overlap - 1
	if budget <= 0 {
		return ""
	}
	tail := chunk
	if len(tail) > budget {
		tail = tail[len(tail)-budget:]
	}
	if m := sentenceBoundary.FindStringIndex(tail); m != nil {
		if seed := strings.TrimSpace(tail[m[1]:]); seed != "" {
			return seed
		}
	}
	return strings.TrimSpace(tail)
}

// splitWords breaks an oversized sentence into word units. A single word
// longer than max (a URL, a base64 blob) is hard-split into max-sized pieces
// so no unit can exceed max on its own.
func splitWords(s string, max int) []string {
	var units []string
	for _, w := range strings.Fields(s) {
		for len(w) > max {
			units = append(units, w[:max])
			w = w[max:]
		}
		if w != "" {
			units = append(units, w)
		}
	}
	return units
}

// splitSentences splits text into trimmed sentence units, each keeping its
// terminal punctuation. Text after the last boundary forms the final unit.
func splitSentences(text string) []string {
	var sentences []string
	prev := 0
	for _, m := range sentenceBoundary.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[prev:m[1]]); s != "" {
			sentences = append(sentences, s)
		}
		prev = m[1]
	}
	if s := strings.TrimSpace(text[prev:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
