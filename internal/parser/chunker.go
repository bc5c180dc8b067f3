package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"outreach-mailer/internal/models"
)

// RecursiveChunker splits text on a list of separators, coarsest first,
// keeping every separator attached to the piece before it so the chunks can
// be stitched back into the exact input. Sizes are measured in runes.
type RecursiveChunker struct {
	Separators   []string
	ChunkSize    int
	ChunkOverlap int
}

var _ textsplitter.TextSplitter = RecursiveChunker{}

func NewRecursiveChunker(opts ...ChunkerOption) RecursiveChunker {
	c := RecursiveChunker{
		Separators:   models.DefaultSeparators,
		ChunkSize:    models.DefaultChunkSize,
		ChunkOverlap: models.DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

type ChunkerOption func(*RecursiveChunker)

func WithSeparators(seps []string) ChunkerOption {
	return func(c *RecursiveChunker) { c.Separators = seps }
}

func WithChunkSize(size int) ChunkerOption {
	return func(c *RecursiveChunker) { c.ChunkSize = size }
}

func WithChunkOverlap(overlap int) ChunkerOption {
	return func(c *RecursiveChunker) { c.ChunkOverlap = overlap }
}

// SplitText satisfies textsplitter.TextSplitter using the chunker's own size
// and overlap.
func (c RecursiveChunker) SplitText(text string) ([]string, error) {
	chunks, err := c.Chunk(models.Document{Content: text}, c.ChunkSize, c.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Content
	}
	return out, nil
}

// Chunk splits doc into chunks of at most maxSize runes, each repeating up to
// overlap runes from the end of the previous one. A piece that no separator
// can break is emitted whole even if it is larger than maxSize.
func (c RecursiveChunker) Chunk(doc models.Document, maxSize, overlap int) ([]models.Chunk, error) {
	if maxSize <= 0 {
		return nil, models.NewInputError("chunk size must be positive, got %d", maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, models.NewInputError("chunk overlap must be in [0, %d), got %d", maxSize, overlap)
	}
	if doc.Content == "" {
		return nil, nil
	}

	seps := c.Separators
	if len(seps) == 0 {
		seps = models.DefaultSeparators
	}

	pieces := splitRecursive(doc.Content, seps, maxSize)
	return mergePieces(doc, pieces, maxSize, overlap), nil
}

// splitRecursive breaks text into pieces no longer than maxSize where the
// separators allow it. Concatenating the result yields text unchanged.
func splitRecursive(text string, seps []string, maxSize int) []string {
	sep, rest := pickSeparator(text, seps)

	var parts []string
	if sep == "" {
		parts = make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
	} else {
		parts = strings.SplitAfter(text, sep)
	}

	var out []string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) <= maxSize || len(rest) == 0 {
			out = append(out, p)
			continue
		}
		out = append(out, splitRecursive(p, rest, maxSize)...)
	}
	return out
}

// pickSeparator returns the first separator present in text and the finer
// ones after it. The empty separator always matches.
func pickSeparator(text string, seps []string) (string, []string) {
	for i, s := range seps {
		if s == "" || strings.Contains(text, s) {
			return s, seps[i+1:]
		}
	}
	// nothing matched, the text stays whole
	return seps[len(seps)-1], nil
}

type piece struct {
	text string
	size int
}

func mergePieces(doc models.Document, parts []string, maxSize, overlap int) []models.Chunk {
	var (
		chunks  []models.Chunk
		current []piece
		total   int
		carried int // runes at the front of current repeated from the previous chunk
		fresh   int // pieces in current that no earlier chunk emitted
		pos     int // rune offset of the next unread piece
	)

	emit := func() {
		var b strings.Builder
		for _, p := range current {
			b.WriteString(p.text)
		}
		chunks = append(chunks, models.Chunk{
			Content:  b.String(),
			ChunkID:  len(chunks) + 1,
			Start:    pos - total,
			Overlap:  carried,
			Source:   doc.Source,
			Metadata: chunkMetadata(doc.Metadata, len(chunks)+1),
		})
	}

	for _, text := range parts {
		p := piece{text: text, size: utf8.RuneCountInString(text)}

		if fresh > 0 && total+p.size > maxSize {
			emit()
			for len(current) > 0 && (total > overlap || total+p.size > maxSize) {
				total -= current[0].size
				current = current[1:]
			}
			carried = total
			fresh = 0
		}

		current = append(current, p)
		total += p.size
		fresh++
		pos += p.size
	}

	if fresh > 0 {
		emit()
	}
	return chunks
}

func chunkMetadata(base map[string]any, id int) map[string]any {
	meta := make(map[string]any, len(base)+1)
	for k, v := range base {
		meta[k] = v
	}
	meta["chunk_id"] = id
	return meta
}

// Reassemble joins chunks back into the text they were cut from by dropping
// each chunk's overlap prefix.
func Reassemble(chunks []models.Chunk) string {
	var b strings.Builder
	for _, ch := range chunks {
		content := ch.Content
		if ch.Overlap > 0 {
			runes := []rune(content)
			if ch.Overlap >= len(runes) {
				continue
			}
			content = string(runes[ch.Overlap:])
		}
		b.WriteString(content)
	}
	return b.String()
}
