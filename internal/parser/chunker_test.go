package parser

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/documentloaders"

	"outreach-mailer/internal/models"
)

func randomText(r *rand.Rand, n int) string {
	words := []string{"acme", "road", "freight", "é", "teams", "ship", "日本", "plan", "\n", "\n\n", "  "}
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(words[r.Intn(len(words))])
		if r.Intn(3) > 0 {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func TestChunkSplitsLongTextWithinLimit(t *testing.T) {
	text := strings.Repeat("abcd ", 500)
	require.Equal(t, 2500, len(text))

	chunks, err := NewRecursiveChunker().Chunk(models.Document{Source: "p", Content: text}, 1000, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), 1000)
		assert.Equal(t, i+1, ch.ChunkID)
		assert.Equal(t, "p", ch.Source)
		assert.Equal(t, i+1, ch.Metadata["chunk_id"])
	}
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 1000, chunks[1].Start)
	assert.Equal(t, 2000, chunks[2].Start)
	assert.Equal(t, text, Reassemble(chunks))
}

func TestChunkEmptyDocument(t *testing.T) {
	chunks, err := NewRecursiveChunker().Chunk(models.Document{}, 1000, 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkShortDocumentIsOneChunk(t *testing.T) {
	chunks, err := NewRecursiveChunker().Chunk(models.Document{Content: "  Acme helps teams.\n"}, 1000, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "  Acme helps teams.\n", chunks[0].Content)
}

func TestChunkRejectsBadSizes(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecursiveChunker().Chunk(models.Document{Content: "x"}, tt.size, tt.overlap)
			require.ErrorIs(t, err, models.ErrInput)
		})
	}
}

func TestChunkReassemblesExactly(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	tests := []struct {
		size    int
		overlap int
	}{
		{1000, 0},
		{100, 0},
		{100, 30},
		{17, 5},
		{5, 4},
	}
	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			text := randomText(r, r.Intn(3000))
			chunks, err := NewRecursiveChunker().Chunk(models.Document{Content: text}, tt.size, tt.overlap)
			require.NoError(t, err)
			require.Equal(t, text, Reassemble(chunks), "size=%d overlap=%d", tt.size, tt.overlap)

			runes := []rune(text)
			for _, ch := range chunks {
				n := utf8.RuneCountInString(ch.Content)
				assert.LessOrEqual(t, n, tt.size)
				assert.LessOrEqual(t, ch.Overlap, tt.overlap)
				assert.Equal(t, string(runes[ch.Start:ch.Start+n]), ch.Content)
			}
		}
	}
}

func TestChunkOverlapRepeatsPreviousTail(t *testing.T) {
	text := strings.Repeat("word ", 100)
	chunks, err := NewRecursiveChunker().Chunk(models.Document{Content: text}, 50, 10)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Content
		cur := chunks[i].Content
		require.Equal(t, 10, chunks[i].Overlap)
		assert.True(t, strings.HasSuffix(prev, string([]rune(cur)[:chunks[i].Overlap])))
	}
	assert.Equal(t, text, Reassemble(chunks))
}

func TestChunkIsDeterministic(t *testing.T) {
	text := randomText(rand.New(rand.NewSource(7)), 5000)
	c := NewRecursiveChunker()
	first, err := c.Chunk(models.Document{Content: text}, 300, 20)
	require.NoError(t, err)
	second, err := c.Chunk(models.Document{Content: text}, 300, 20)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChunkWithoutCharacterFallbackKeepsLongTokens(t *testing.T) {
	long := strings.Repeat("x", 40)
	text := "short " + long + " tail"
	c := NewRecursiveChunker(WithSeparators([]string{"\n", " "}))

	chunks, err := c.Chunk(models.Document{Content: text}, 10, 0)
	require.NoError(t, err)

	var found bool
	for _, ch := range chunks {
		if strings.Contains(ch.Content, long) {
			found = true
		} else {
			assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), 10)
		}
	}
	assert.True(t, found)
	assert.Equal(t, text, Reassemble(chunks))
}

func TestChunkPrefersParagraphBoundaries(t *testing.T) {
	para := strings.Repeat("a", 30)
	text := para + "\n\n" + para + "\n\n" + para
	chunks, err := NewRecursiveChunker().Chunk(models.Document{Content: text}, 40, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, para+"\n\n", chunks[0].Content)
	assert.Equal(t, para, chunks[2].Content)
}

func TestChunkerAsTextSplitter(t *testing.T) {
	c := NewRecursiveChunker(WithChunkSize(20), WithChunkOverlap(0))
	docs, err := documentloaders.NewText(strings.NewReader(strings.Repeat("go is fun ", 10))).LoadAndSplit(t.Context(), c)
	require.NoError(t, err)
	require.NotEmpty(t, docs)

	var b strings.Builder
	for _, d := range docs {
		assert.LessOrEqual(t, utf8.RuneCountInString(d.PageContent), 20)
		b.WriteString(d.PageContent)
	}
	assert.Equal(t, strings.Repeat("go is fun ", 10), b.String())
}
