// Package chunk splits text into overlapping windows for embedding. The
// plain splitter works on whitespace tokens; the element chunker packs
// extractor output (paragraphs, tables rendered as text, list items) into
// budgeted chunks without breaking an element unless it alone exceeds the
// budget.
package chunk

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Defaults applied when a collection config leaves chunking unset.
const (
	DefaultSize    = 512
	DefaultOverlap = 50
)

// normalize clamps degenerate chunking parameters. An overlap at or above
// the window size collapses to size/4 so the window always advances.
func normalize(size, overlap int) (int, int) {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return size, overlap
}

// Split cuts text into windows of size whitespace tokens, each sliding by
// size-overlap. Empty input yields no chunks.
func Split(text string, size, overlap int) []string {
	size, overlap = normalize(size, overlap)

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(tokens) {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
		start = end - overlap
	}
	return chunks
}

// TokenCounter measures the embedding cost of a text fragment.
type TokenCounter interface {
	Count(text string) int
}

// Words counts whitespace-delimited tokens. It is the default counter and
// matches the unit Split windows by.
type Words struct{}

func (Words) Count(text string) int { return len(strings.Fields(text)) }

// Encoding counts tokens with a tiktoken encoding, giving budgets that line
// up with what the embedding provider actually bills.
type Encoding struct {
	enc *tiktoken.Tiktoken
}

// NewEncoding returns a counter for a named encoding such as cl100k_base.
func NewEncoding(name string) (*Encoding, error) {
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("chunk: get encoding %q: %w", name, err)
	}
	return &Encoding{enc: enc}, nil
}

func (e *Encoding) Count(text string) int { return len(e.enc.Encode(text, nil, nil)) }

// ElementChunker accumulates elements until the running token count would
// exceed Size, emits the chunk, and seeds the next one with the last Overlap
// whitespace tokens. Oversized elements fall back to Split.
type ElementChunker struct {
	Size    int
	Overlap int
	Counter TokenCounter
}

func (c ElementChunker) Split(elements []string) []string {
	size, overlap := normalize(c.Size, c.Overlap)
	counter := c.Counter
	if counter == nil {
		counter = Words{}
	}

	var chunks []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = nil
			currentTokens = 0
		}
	}

	for _, element := range elements {
		element = strings.TrimSpace(element)
		if element == "" {
			continue
		}
		tokens := counter.Count(element)

		if tokens > size {
			flush()
			chunks = append(chunks, Split(element, size, overlap)...)
			continue
		}

		if currentTokens+tokens > size && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			if overlap > 0 {
				words := strings.Fields(strings.Join(current, " "))
				if len(words) > overlap {
					words = words[len(words)-overlap:]
				}
				seed := strings.Join(words, " ")
				current = []string{seed}
				currentTokens = counter.Count(seed)
			} else {
				current = nil
				currentTokens = 0
			}
		}

		current = append(current, element)
		currentTokens += tokens
	}

	flush()
	return chunks
}

// SplitElements is ElementChunker with whitespace counting.
func SplitElements(elements []string, size, overlap int) []string {
	return ElementChunker{Size: size, Overlap: overlap}.Split(elements)
}
