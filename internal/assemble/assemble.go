// Package assemble turns document text into one ordered QuestionSet by running the
// generator and parser over every chunk.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/smartexam/internal/chunk"
	"github.com/pavelanni/smartexam/internal/model"
	"github.com/pavelanni/smartexam/internal/parse"
)

// ErrEmptyAssembly means no question survived across all chunks.
var ErrEmptyAssembly = errors.New("failed to produce an assessment")

// ErrNoSummarizer is returned by Summarize on an Assembler built without one.
var ErrNoSummarizer = errors.New("no summarizer configured")

// Generator returns raw model output for one chunk.
type Generator interface {
	Generate(ctx context.Context, chunk string) (string, error)
}

// Summarizer condenses a document that is too long to chunk directly.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// WarningKind classifies a non-fatal pipeline problem.
type WarningKind string

const (
	WarnGeneration WarningKind = "generation_failure"
	WarnParse      WarningKind = "parse_failure"
	WarnSchema     WarningKind = "schema_violation"
	WarnDuplicate  WarningKind = "duplicate"
	WarnSummarize  WarningKind = "summarize_failure"
)

// Warning is surfaced to the caller for every chunk or record that was skipped.
// Chunk is -1 for document-level warnings.
type Warning struct {
	Chunk   int         `json:"chunk"`
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
	Raw     string      `json:"raw,omitempty"`
}

// Report is the outcome of an assembly.
type Report struct {
	Questions  model.QuestionSet `json:"questions"`
	Warnings   []Warning         `json:"warnings,omitempty"`
	Chunks     int               `json:"chunks"`
	Summarized bool              `json:"summarized"`
}

// Options tunes the pipeline.
type Options struct {
	MaxChunkSize       int
	SummarizeThreshold int // 0 disables summarization
	Timeout            time.Duration
	Concurrency        int
	Parse              parse.Options
	Dedup              parse.DedupPolicy
}

// DefaultOptions mirrors the limits the service ships with.
func DefaultOptions() Options {
	return Options{
		MaxChunkSize:       chunk.DefaultMaxSize,
		SummarizeThreshold: 3000,
		Timeout:            2 * time.Minute,
		Concurrency:        1,
		Parse:              parse.DefaultOptions(),
		Dedup:              parse.DedupOff,
	}
}

// OptionsFromConfig builds Options from the runtime configuration.
func OptionsFromConfig(cfg model.ExamConfig) (Options, error) {
	policy, err := parse.ParseDedupPolicy(cfg.Dedup)
	if err != nil {
		return Options{}, err
	}
	opts := DefaultOptions()
	if cfg.MaxChunkSize > 0 {
		opts.MaxChunkSize = cfg.MaxChunkSize
	}
	if cfg.SummarizeThreshold >= 0 {
		opts.SummarizeThreshold = cfg.SummarizeThreshold
	}
	if cfg.GenerationTimeout > 0 {
		opts.Timeout = cfg.GenerationTimeout
	}
	if cfg.Concurrency > 0 {
		opts.Concurrency = cfg.Concurrency
	}
	opts.Parse.RequireAnswerInChoices = cfg.RequireAnswerInChoices
	opts.Dedup = policy
	return opts, nil
}

// Assembler orchestrates chunker, generator and parser.
type Assembler struct {
	gen  Generator
	sum  Summarizer
	opts Options
}

// New creates an Assembler. sum may be nil, which disables summarization.
func New(gen Generator, sum Summarizer, opts Options) *Assembler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Assembler{gen: gen, sum: sum, opts: opts}
}

// FromText summarizes text if it is too long, chunks it and assembles the result.
func (a *Assembler) FromText(ctx context.Context, text string) (*Report, error) {
	prepared, warn, summarized := a.prepare(ctx, text)
	chunks := chunk.Split(prepared, a.opts.MaxChunkSize)
	slog.Info("document chunked", "chars", utf8.RuneCountInString(prepared), "chunks", len(chunks), "summarized", summarized)

	rep, err := a.Assemble(ctx, chunks)
	if rep != nil {
		rep.Summarized = summarized
		if warn != nil {
			rep.Warnings = append([]Warning{*warn}, rep.Warnings...)
		}
	}
	return rep, err
}

// prepare replaces an over-long document with its summary. A failed summary is a
// warning; the original text is chunked instead.
func (a *Assembler) prepare(ctx context.Context, text string) (string, *Warning, bool) {
	if a.sum == nil || a.opts.SummarizeThreshold <= 0 || utf8.RuneCountInString(text) <= a.opts.SummarizeThreshold {
		return text, nil, false
	}

	summary, err := a.Summarize(ctx, text)
	if err != nil {
		slog.Warn("summarization failed, chunking original text", "error", err)
		return text, &Warning{Chunk: -1, Kind: WarnSummarize, Message: err.Error()}, false
	}
	return summary, nil, true
}

// Summarize condenses text in one summarizer call bounded by the per-call timeout. A
// blank summary is an error.
func (a *Assembler) Summarize(ctx context.Context, text string) (string, error) {
	if a.sum == nil {
		return "", ErrNoSummarizer
	}
	callCtx, cancel := a.callContext(ctx)
	defer cancel()
	summary, err := a.sum.Summarize(callCtx, text)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	if strings.TrimSpace(summary) == "" {
		return "", errors.New("summarize: empty summary")
	}
	return summary, nil
}

type chunkResult struct {
	questions model.QuestionSet
	warnings  []Warning
}

// Assemble generates and parses every chunk and concatenates the questions in chunk
// order. A chunk that fails contributes nothing; the others are kept. When nothing
// survives the report is still returned alongside ErrEmptyAssembly.
func (a *Assembler) Assemble(ctx context.Context, chunks []string) (*Report, error) {
	results := make([]chunkResult, len(chunks))

	var g errgroup.Group
	g.SetLimit(a.opts.Concurrency)
	for i, c := range chunks {
		g.Go(func() error {
			results[i] = a.processChunk(ctx, i, c)
			return nil
		})
	}
	_ = g.Wait()

	rep := &Report{Chunks: len(chunks)}
	dedup := parse.NewDeduper(a.opts.Dedup)
	for i, r := range results {
		rep.Warnings = append(rep.Warnings, r.warnings...)
		kept, dropped := dedup.Filter(r.questions)
		for _, d := range dropped {
			rep.Warnings = append(rep.Warnings, Warning{
				Chunk:   i,
				Kind:    WarnDuplicate,
				Message: fmt.Sprintf("question %q repeats question %d", d.Question.Prompt, d.Of+1),
			})
		}
		rep.Questions = append(rep.Questions, kept...)
	}

	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("assemble: %w", err)
	}
	if len(rep.Questions) == 0 {
		slog.Warn("assembly produced no questions", "chunks", len(chunks), "warnings", len(rep.Warnings))
		return rep, ErrEmptyAssembly
	}
	slog.Info("assembly complete", "chunks", len(chunks), "questions", len(rep.Questions), "warnings", len(rep.Warnings))
	return rep, nil
}

func (a *Assembler) processChunk(ctx context.Context, i int, c string) chunkResult {
	callCtx, cancel := a.callContext(ctx)
	defer cancel()

	raw, err := a.gen.Generate(callCtx, c)
	if err != nil {
		slog.Warn("generation failed, skipping chunk", "chunk", i, "error", err)
		return chunkResult{warnings: []Warning{{Chunk: i, Kind: WarnGeneration, Message: err.Error()}}}
	}

	res, err := parse.Parse(raw, a.opts.Parse)
	if err != nil {
		var fe *parse.FailureError
		if errors.As(err, &fe) {
			slog.Warn("could not parse generated questions, skipping chunk", "chunk", i, "error", err)
			return chunkResult{warnings: []Warning{{Chunk: i, Kind: WarnParse, Message: err.Error(), Raw: fe.Raw}}}
		}
		return chunkResult{warnings: []Warning{{Chunk: i, Kind: WarnParse, Message: err.Error(), Raw: raw}}}
	}

	out := chunkResult{questions: res.Questions}
	for _, v := range res.Violations {
		slog.Debug("dropping invalid question record", "chunk", i, "index", v.Index, "reason", v.Reason)
		out.warnings = append(out.warnings, Warning{
			Chunk:   i,
			Kind:    WarnSchema,
			Message: fmt.Sprintf("record %d: %s", v.Index, v.Reason),
			Raw:     string(v.Record),
		})
	}
	return out
}

func (a *Assembler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.opts.Timeout > 0 {
		return context.WithTimeout(ctx, a.opts.Timeout)
	}
	return context.WithCancel(ctx)
}
