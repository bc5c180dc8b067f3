package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"outreach-mailer/internal/config"
	"outreach-mailer/internal/helper"
	"outreach-mailer/internal/models"
	"outreach-mailer/internal/prompt"
)

type Chunker interface {
	Chunk(doc models.Document, maxSize, overlap int) ([]models.Chunk, error)
}

type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float64) (string, error)
}

type Options struct {
	ChunkSize      int
	ChunkOverlap   int
	MapConcurrency int
	// MaxCombineChars bounds the joined summaries handed to the combine
	// prompt. Zero disables the bound.
	MaxCombineChars int
	MaxReduceDepth  int
}

func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		ChunkSize:       cfg.ChunkSize,
		ChunkOverlap:    cfg.ChunkOverlap,
		MapConcurrency:  cfg.MapConcurrency,
		MaxCombineChars: cfg.MaxCombineChars,
		MaxReduceDepth:  cfg.MaxReduceDepth,
	}
}

// Generator runs the map-reduce pipeline: summarize every chunk of the
// prospect text, then write one email from the joined summaries.
type Generator struct {
	chunker     Chunker
	llm         Completer
	mapTmpl     prompt.Template
	combineTmpl prompt.Template
	opts        Options
}

func New(chunker Chunker, llm Completer, opts Options) *Generator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = models.DefaultChunkSize
	}
	if opts.MapConcurrency < 1 {
		opts.MapConcurrency = 1
	}
	return &Generator{
		chunker:     chunker,
		llm:         llm,
		mapTmpl:     prompt.MapTemplate(),
		combineTmpl: prompt.CombineTemplate(),
		opts:        opts,
	}
}

// WithTemplates swaps the map and combine prompts.
func (g *Generator) WithTemplates(mapTmpl, combineTmpl prompt.Template) *Generator {
	cp := *g
	cp.mapTmpl = mapTmpl
	cp.combineTmpl = combineTmpl
	return &cp
}

// GenerateEmail produces the email for req. Either the whole pipeline
// succeeds or an error is returned; partial summaries are never surfaced.
func (g *Generator) GenerateEmail(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	requestID := helper.RequestIDFromContext(ctx)
	logger := log.With().Str("request_id", requestID).Str("prospect", req.ProspectName).Logger()
	run := &pipelineRun{logger: logger, state: StateIdle, started: time.Now()}

	if err := req.Validate(); err != nil {
		run.transition(StateFailed)
		return nil, err
	}

	run.transition(StateChunking)
	doc := models.NewDocument(models.ProspectInfoName, req.ProspectInfo, nil)
	chunks, err := g.chunker.Chunk(doc, g.opts.ChunkSize, g.opts.ChunkOverlap)
	if err != nil {
		return nil, run.fail(err)
	}
	if len(chunks) == 0 {
		return nil, run.fail(models.NewInputError("prospect_info produced no chunks"))
	}
	run.logger.Debug().Int("chunks", len(chunks)).Msg("Chunked prospect info")

	run.transition(StateMapping)
	summaries, err := g.mapChunks(ctx, run.logger, chunks, req)
	if err != nil {
		return nil, run.fail(err)
	}
	aggregate := strings.Join(summaries, models.SummarySeparator)

	var reduced []string
	rounds := 0
	for g.opts.MaxCombineChars > 0 && utf8.RuneCountInString(aggregate) > g.opts.MaxCombineChars {
		if rounds >= g.opts.MaxReduceDepth {
			return nil, run.fail(fmt.Errorf("%w: %d chars after %d rounds, limit %d",
				models.ErrBudgetExceeded, utf8.RuneCountInString(aggregate), rounds, g.opts.MaxCombineChars))
		}
		rounds++
		run.logger.Info().Int("round", rounds).Int("chars", utf8.RuneCountInString(aggregate)).Msg("Summaries exceed combine budget, reducing")

		reduceDoc := models.NewDocument(fmt.Sprintf("summaries-%d", rounds), aggregate, nil)
		reduceChunks, err := g.chunker.Chunk(reduceDoc, g.opts.ChunkSize, g.opts.ChunkOverlap)
		if err != nil {
			return nil, run.fail(err)
		}
		reduced, err = g.mapChunks(ctx, run.logger, reduceChunks, req)
		if err != nil {
			return nil, run.fail(err)
		}
		aggregate = strings.Join(reduced, models.SummarySeparator)
	}

	run.transition(StateCombining)
	combinePrompt, err := g.combineTmpl.Render(map[string]string{
		"company":             req.CompanyName,
		"company_information": req.CompanyInfo,
		"sales_rep":           req.SalesRep,
		"prospect":            req.ProspectName,
		"text":                aggregate,
	})
	if err != nil {
		return nil, run.fail(err)
	}
	email, err := g.llm.Complete(ctx, combinePrompt, req.Temperature)
	if err != nil {
		return nil, run.fail(cancelled(ctx, err))
	}

	run.transition(StateDone)
	return &models.GenerationResult{
		Email:        email,
		Summaries:    summaries,
		Reduced:      reduced,
		ChunkCount:   len(chunks),
		ReduceRounds: rounds,
	}, nil
}

// mapChunks summarizes every chunk, at most MapConcurrency at a time. The
// result keeps chunk order regardless of completion order.
func (g *Generator) mapChunks(ctx context.Context, logger zerolog.Logger, chunks []models.Chunk, req models.GenerationRequest) ([]string, error) {
	prompts := make([]string, len(chunks))
	for i, ch := range chunks {
		p, err := g.mapTmpl.Render(map[string]string{
			"text":     ch.Content,
			"prospect": req.ProspectName,
		})
		if err != nil {
			return nil, err
		}
		prompts[i] = p
	}

	results := make([]string, len(chunks))
	var done atomic.Int32
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.MapConcurrency)
	for i := range prompts {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			out, err := g.llm.Complete(egCtx, prompts[i], req.Temperature)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", chunks[i].ChunkID, err)
			}
			results[i] = out
			logger.Debug().
				Int("chunk", chunks[i].ChunkID).
				Int32("done", done.Add(1)).
				Int("total", len(chunks)).
				Msg("Mapped chunk")
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, cancelled(ctx, err)
	}
	return results, nil
}

// cancelled maps a failure caused by the caller giving up to ErrCancelled.
func cancelled(ctx context.Context, err error) error {
	if ctx.Err() == nil || errors.Is(err, models.ErrCancelled) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrCancelled, ctx.Err())
}

type pipelineRun struct {
	logger  zerolog.Logger
	state   State
	started time.Time
}

func (r *pipelineRun) transition(next State) {
	r.logger.Debug().Str("from", r.state.String()).Str("to", next.String()).Dur("elapsed", time.Since(r.started)).Msg("Pipeline state")
	if next == StateDone {
		r.logger.Info().Dur("elapsed", time.Since(r.started)).Msg("Email generated")
	}
	r.state = next
}

func (r *pipelineRun) fail(err error) error {
	stage := r.state
	r.transition(StateFailed)
	r.logger.Error().Err(err).Str("stage", stage.String()).Msg("Email generation failed")
	return &StageError{Stage: stage, Err: err}
}
