package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach-mailer/internal/models"
	"outreach-mailer/internal/parser"
)

// fakeCompleter answers map prompts with a numbered summary and combine
// prompts with a canned email.
type fakeCompleter struct {
	mu         sync.Mutex
	mapCalls   int
	combines   []string
	failOnMap  int
	maxDelay   time.Duration
	summarize  func(chunk string) string
	concurrent atomic.Int32
	peak       atomic.Int32
}

var chunkRe = regexp.MustCompile(`(?s)exclude it from your summary\.\n\n    (.*) \n    $`)

func (f *fakeCompleter) Complete(ctx context.Context, prompt string, _ float64) (string, error) {
	n := f.concurrent.Add(1)
	defer f.concurrent.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.maxDelay > 0 {
		d := time.Duration(rand.Int63n(int64(f.maxDelay)))
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", models.ErrCancelled, ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.Contains(prompt, "% COMBINE PROMPT") {
		f.combines = append(f.combines, prompt)
		return "We love that RapidRoad helps teams ship freight. We can help you do routing by analytics at Acme.", nil
	}

	f.mapCalls++
	if f.failOnMap > 0 && f.mapCalls == f.failOnMap {
		return "", fmt.Errorf("%w: unavailable (status 503)", models.ErrUpstream)
	}
	chunk := prompt
	if m := chunkRe.FindStringSubmatch(prompt); m != nil {
		chunk = m[1]
	}
	if f.summarize != nil {
		return f.summarize(chunk), nil
	}
	return "summary:" + firstWord(chunk), nil
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func baseRequest(prospect string) models.GenerationRequest {
	return models.GenerationRequest{
		ProspectInfo: prospect,
		ProspectName: "RapidRoad",
		CompanyInfo:  "Acme builds analytics dashboards for logistics teams.",
		CompanyName:  "Acme",
		SalesRep:     "Greg",
		Temperature:  0.5,
	}
}

func numberedText(paragraphs int) string {
	var parts []string
	for i := 0; i < paragraphs; i++ {
		parts = append(parts, fmt.Sprintf("p%03d %s", i, strings.Repeat("x", 600)))
	}
	return strings.Join(parts, "\n\n")
}

func newTestGenerator(llm Completer, opts Options) *Generator {
	return New(parser.NewRecursiveChunker(), llm, opts)
}

func defaultOptions() Options {
	return Options{ChunkSize: 1000, MapConcurrency: 4, MaxCombineChars: 12000, MaxReduceDepth: 3}
}

func TestGenerateEmail(t *testing.T) {
	llm := &fakeCompleter{}
	gen := newTestGenerator(llm, defaultOptions())

	res, err := gen.GenerateEmail(t.Context(), baseRequest("RapidRoad is a freight platform that helps teams ship."))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Email, "We love that RapidRoad helps teams"))
	assert.Contains(t, res.Email, "Acme")
	assert.Equal(t, 1, res.ChunkCount)
	assert.Equal(t, 0, res.ReduceRounds)
	assert.Equal(t, []string{"summary:RapidRoad"}, res.Summaries)
	assert.Empty(t, res.Reduced)

	require.Len(t, llm.combines, 1)
	assert.Contains(t, llm.combines[0], "from Greg, a sales rep at Acme to RapidRoad")
	assert.Contains(t, llm.combines[0], "Acme builds analytics dashboards")
	assert.Contains(t, llm.combines[0], "summary:RapidRoad")
}

func TestGenerateEmailRejectsEmptyProspect(t *testing.T) {
	for _, info := range []string{"", "   \n\t"} {
		llm := &fakeCompleter{}
		gen := newTestGenerator(llm, defaultOptions())

		_, err := gen.GenerateEmail(t.Context(), baseRequest(info))
		require.ErrorIs(t, err, models.ErrInput)
		assert.Zero(t, llm.mapCalls)
		assert.Empty(t, llm.combines)
	}
}

func TestGenerateEmailRejectsMissingNames(t *testing.T) {
	req := baseRequest("text")
	req.SalesRep = " "
	_, err := newTestGenerator(&fakeCompleter{}, defaultOptions()).GenerateEmail(t.Context(), req)
	require.ErrorIs(t, err, models.ErrInput)
	assert.Contains(t, err.Error(), "sales_rep")
}

func TestGenerateEmailKeepsChunkOrder(t *testing.T) {
	llm := &fakeCompleter{maxDelay: 5 * time.Millisecond}
	opts := defaultOptions()
	opts.MapConcurrency = 8
	opts.MaxCombineChars = 100000
	gen := newTestGenerator(llm, opts)

	res, err := gen.GenerateEmail(t.Context(), baseRequest(numberedText(20)))
	require.NoError(t, err)
	require.Equal(t, 20, res.ChunkCount)
	for i, s := range res.Summaries {
		assert.Equal(t, fmt.Sprintf("summary:p%03d", i), s)
	}
	assert.LessOrEqual(t, llm.peak.Load(), int32(8))

	require.Len(t, llm.combines, 1)
	joined := strings.Join(res.Summaries, "\n")
	assert.Contains(t, llm.combines[0], joined)
}

func TestGenerateEmailRespectsConcurrencyLimit(t *testing.T) {
	llm := &fakeCompleter{maxDelay: 3 * time.Millisecond}
	opts := defaultOptions()
	opts.MapConcurrency = 2
	gen := newTestGenerator(llm, opts)

	_, err := gen.GenerateEmail(t.Context(), baseRequest(numberedText(10)))
	require.NoError(t, err)
	assert.LessOrEqual(t, llm.peak.Load(), int32(2))
}

func TestGenerateEmailMapFailureAbortsRun(t *testing.T) {
	llm := &fakeCompleter{failOnMap: 2}
	opts := defaultOptions()
	opts.MapConcurrency = 1
	gen := newTestGenerator(llm, opts)

	res, err := gen.GenerateEmail(t.Context(), baseRequest(numberedText(3)))
	require.Nil(t, res)
	require.ErrorIs(t, err, models.ErrUpstream)
	assert.Empty(t, llm.combines)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StateMapping, stageErr.Stage)
}

func TestGenerateEmailReducesLargeSummaries(t *testing.T) {
	llm := &fakeCompleter{summarize: func(chunk string) string {
		if strings.HasPrefix(chunk, "long:") {
			return "short"
		}
		return "long:" + strings.Repeat("s", 400)
	}}
	opts := defaultOptions()
	opts.MaxCombineChars = 2000
	gen := newTestGenerator(llm, opts)

	res, err := gen.GenerateEmail(t.Context(), baseRequest(numberedText(10)))
	require.NoError(t, err)
	assert.Equal(t, 1, res.ReduceRounds)
	assert.Equal(t, 10, res.ChunkCount)
	require.Len(t, res.Summaries, res.ChunkCount)
	for _, s := range res.Summaries {
		assert.True(t, strings.HasPrefix(s, "long:"), s)
	}
	require.NotEmpty(t, res.Reduced)
	for _, s := range res.Reduced {
		assert.Equal(t, "short", s)
	}
	require.Len(t, llm.combines, 1)
	assert.NotContains(t, llm.combines[0], "long:")
}

func TestGenerateEmailBudgetExceeded(t *testing.T) {
	llm := &fakeCompleter{summarize: func(string) string { return strings.Repeat("z", 900) }}
	opts := defaultOptions()
	opts.MaxCombineChars = 1500
	opts.MaxReduceDepth = 2
	gen := newTestGenerator(llm, opts)

	_, err := gen.GenerateEmail(t.Context(), baseRequest(numberedText(4)))
	require.ErrorIs(t, err, models.ErrBudgetExceeded)
	assert.Empty(t, llm.combines)
}

func TestGenerateEmailCancelled(t *testing.T) {
	llm := &fakeCompleter{maxDelay: 50 * time.Millisecond}
	gen := newTestGenerator(llm, defaultOptions())

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := gen.GenerateEmail(ctx, baseRequest(numberedText(40)))
	require.ErrorIs(t, err, models.ErrCancelled)
	assert.Empty(t, llm.combines)
}

func TestGenerateEmailCombineFailure(t *testing.T) {
	gen := newTestGenerator(completerFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "% COMBINE PROMPT") {
			return "", errors.New("combine down")
		}
		return "ok", nil
	}), defaultOptions())

	_, err := gen.GenerateEmail(t.Context(), baseRequest("RapidRoad"))
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StateCombining, stageErr.Stage)
}

type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string, _ float64) (string, error) {
	return f(ctx, prompt)
}

func TestGenerateEmailLogsMapProgress(t *testing.T) {
	var buf bytes.Buffer
	prev, prevLevel := log.Logger, zerolog.GlobalLevel()
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	opts := defaultOptions()
	opts.MapConcurrency = 1
	_, err := newTestGenerator(&fakeCompleter{}, opts).GenerateEmail(t.Context(), baseRequest(numberedText(3)))
	require.NoError(t, err)

	var done []int
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry struct {
			Message string `json:"message"`
			Done    int    `json:"done"`
			Total   int    `json:"total"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry.Message != "Mapped chunk" {
			continue
		}
		assert.Equal(t, 3, entry.Total)
		done = append(done, entry.Done)
	}
	assert.Equal(t, []int{1, 2, 3}, done)
}
