// Package chunk splits extracted document text into bounded,
// overlapping chunks and derives their stable identities.
package chunk

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Config bounds the produced chunks.
type Config struct {
	MaxSize int // maximum chunk size in characters
	Overlap int // trailing context carried into the next chunk
}

// DefaultConfig returns the standard chunking parameters.
func DefaultConfig() Config {
	return Config{
		MaxSize: 1000,
		Overlap: 200,
	}
}

// Splitter produces sentence-aware chunks. Splitting is deterministic:
// the same text always yields the same chunk sequence.
type Splitter struct {
	cfg Config
}

// NewSplitter creates a splitter, falling back to defaults for
// non-positive parameters.
func NewSplitter(cfg Config) *Splitter {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap >= cfg.MaxSize {
		cfg.Overlap = cfg.MaxSize / 2
	}
	return &Splitter{cfg: cfg}
}

// Split breaks text into chunks of at most MaxSize characters,
// preferring sentence boundaries. Consecutive chunks share Overlap
// characters of trailing context. Empty or whitespace-only input
// produces no chunks.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		content := strings.TrimSpace(current.String())
		if content != "" {
			chunks = append(chunks, content)
		}
		current.Reset()
		if s.cfg.Overlap > 0 && content != "" {
			current.WriteString(tailOverlap(content, s.cfg.Overlap))
			current.WriteString(" ")
		}
	}

	for _, sentence := range splitSentences(text) {
		// A single oversized sentence gets hard character cuts.
		if len(sentence) > s.cfg.MaxSize {
			if current.Len() > 0 {
				flush()
				current.Reset()
			}
			chunks = append(chunks, forceSplit(sentence, s.cfg.MaxSize, s.cfg.Overlap)...)
			continue
		}

		if current.Len() > 0 && current.Len()+len(sentence) > s.cfg.MaxSize {
			flush()
			// The carried overlap plus the sentence must still fit;
			// trim the overlap when the sentence leaves it no room.
			if budget := s.cfg.MaxSize - len(sentence) - 1; current.Len() > budget {
				carried := strings.TrimSpace(current.String())
				current.Reset()
				if budget > 0 {
					current.WriteString(tailOverlap(carried, budget))
					current.WriteString(" ")
				}
			}
		}

		current.WriteString(sentence)
		current.WriteString(" ")
	}

	if content := strings.TrimSpace(current.String()); content != "" {
		// Skip a trailing chunk that is nothing but carried-over overlap.
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1], content) {
			chunks = append(chunks, content)
		}
	}

	return chunks
}

// SplitBlocks chunks each text block independently and concatenates the
// results in block order. No overlap is carried across block boundaries.
func (s *Splitter) SplitBlocks(blocks []string) []string {
	var chunks []string
	for _, block := range blocks {
		chunks = append(chunks, s.Split(block)...)
	}
	return chunks
}

// splitSentences splits text into sentences on terminal punctuation.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])

		if isSentenceEnd(runes[i]) {
			next := runeAt(runes, i+1)
			if next == 0 || unicode.IsSpace(next) || next == '"' || next == '\'' || next == ')' || next == ']' {
				sentence := strings.TrimSpace(current.String())
				if sentence != "" {
					sentences = append(sentences, sentence)
				}
				current.Reset()
			}
		}
	}

	if rest := strings.TrimSpace(current.String()); rest != "" {
		sentences = append(sentences, rest)
	}

	return sentences
}

// isSentenceEnd checks if a rune is a sentence ending punctuation
func isSentenceEnd(r rune) bool {
	return r == '。' || r == '！' || r == '？' || r == '.' || r == '!' || r == '?'
}

// runeAt safely returns a rune at index or 0 if out of bounds
func runeAt(runes []rune, i int) rune {
	if i < 0 || i >= len(runes) {
		return 0
	}
	return runes[i]
}

// tailOverlap returns the last size characters of text, preferring a
// word boundary so the overlap does not start mid-word.
func tailOverlap(text string, size int) string {
	if size <= 0 || text == "" {
		return ""
	}
	if size >= len(text) {
		return text
	}

	start := len(text) - size
	for start < len(text) && !utf8.RuneStart(text[start]) {
		start++
	}
	tail := text[start:]
	if firstSpace := strings.Index(tail, " "); firstSpace > 0 {
		return tail[firstSpace+1:]
	}
	return tail
}

// forceSplit cuts text into fixed-size pieces with overlap.
func forceSplit(text string, size, overlap int) []string {
	var chunks []string

	runes := []rune(text)
	start := 0
	for start < len(runes) {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
	}

	return chunks
}
