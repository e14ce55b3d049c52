package assemble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/smartexam/internal/parse"
)

// scriptedGenerator answers each chunk with a canned response. Chunks listed in fail
// return an error; delay makes early chunks finish last under concurrency.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies map[string]string
	fail    map[string]bool
	delay   map[string]time.Duration
	calls   []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, c string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, c)
	d := g.delay[c]
	g.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.fail[c] {
		return "", errors.New("upstream unavailable")
	}
	return g.replies[c], nil
}

func questionsJSON(prompts ...string) string {
	var parts []string
	for _, p := range prompts {
		parts = append(parts, fmt.Sprintf(`{"question": %q, "choices": ["yes", "no"], "correct_answer": "yes", "explanation": "because"}`, p))
	}
	return "Here are the questions:\n[" + strings.Join(parts, ",") + "]\nDone."
}

func prompts(t *testing.T, rep *Report) []string {
	t.Helper()
	var out []string
	for _, q := range rep.Questions {
		out = append(out, q.Prompt)
	}
	return out
}

func TestAssembleOrderAndSkips(t *testing.T) {
	gen := &scriptedGenerator{
		replies: map[string]string{
			"c1": questionsJSON("q1a", "q1b"),
			"c2": "Sorry, I can't produce JSON today.",
			"c3": questionsJSON("q3a"),
			"c5": questionsJSON("q5a", "q5b"),
		},
		fail: map[string]bool{"c4": true},
	}
	a := New(gen, nil, DefaultOptions())

	rep, err := a.Assemble(context.Background(), []string{"c1", "c2", "c3", "c4", "c5"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	want := []string{"q1a", "q1b", "q3a", "q5a", "q5b"}
	if got := prompts(t, rep); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("questions = %v, want %v", got, want)
	}
	if rep.Chunks != 5 {
		t.Errorf("expected 5 chunks, got %d", rep.Chunks)
	}
	if len(rep.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %+v", rep.Warnings)
	}
	if rep.Warnings[0].Chunk != 1 || rep.Warnings[0].Kind != WarnParse || rep.Warnings[0].Raw == "" {
		t.Errorf("unexpected parse warning %+v", rep.Warnings[0])
	}
	if rep.Warnings[1].Chunk != 3 || rep.Warnings[1].Kind != WarnGeneration {
		t.Errorf("unexpected generation warning %+v", rep.Warnings[1])
	}
}

func TestAssembleConcurrentKeepsChunkOrder(t *testing.T) {
	gen := &scriptedGenerator{
		replies: map[string]string{
			"c1": questionsJSON("first"),
			"c2": questionsJSON("second"),
			"c3": questionsJSON("third"),
		},
		delay: map[string]time.Duration{"c1": 60 * time.Millisecond, "c2": 30 * time.Millisecond},
	}
	opts := DefaultOptions()
	opts.Concurrency = 3
	a := New(gen, nil, opts)

	rep, err := a.Assemble(context.Background(), []string{"c1", "c2", "c3"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := strings.Join(prompts(t, rep), ","); got != "first,second,third" {
		t.Errorf("order = %s", got)
	}
}

func TestAssembleTimeout(t *testing.T) {
	gen := &scriptedGenerator{
		replies: map[string]string{"slow": questionsJSON("never"), "fast": questionsJSON("kept")},
		delay:   map[string]time.Duration{"slow": time.Second},
	}
	opts := DefaultOptions()
	opts.Timeout = 20 * time.Millisecond
	a := New(gen, nil, opts)

	rep, err := a.Assemble(context.Background(), []string{"slow", "fast"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := strings.Join(prompts(t, rep), ","); got != "kept" {
		t.Errorf("questions = %s", got)
	}
	if len(rep.Warnings) != 1 || rep.Warnings[0].Kind != WarnGeneration {
		t.Fatalf("expected one generation warning, got %+v", rep.Warnings)
	}
	if !strings.Contains(rep.Warnings[0].Message, "deadline") {
		t.Errorf("expected deadline message, got %q", rep.Warnings[0].Message)
	}
}

func TestAssembleEmpty(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string]string{"c1": "no json"}, fail: map[string]bool{"c2": true}}
	a := New(gen, nil, DefaultOptions())

	rep, err := a.Assemble(context.Background(), []string{"c1", "c2"})
	if !errors.Is(err, ErrEmptyAssembly) {
		t.Fatalf("expected ErrEmptyAssembly, got %v", err)
	}
	if rep == nil || len(rep.Warnings) != 2 {
		t.Errorf("report should still carry the warnings, got %+v", rep)
	}

	rep, err = a.Assemble(context.Background(), nil)
	if !errors.Is(err, ErrEmptyAssembly) || rep.Chunks != 0 {
		t.Errorf("no chunks should be an empty assembly, got %v", err)
	}
}

func TestAssembleSchemaViolationsDropRecords(t *testing.T) {
	raw := `[{"question": "good", "choices": ["a", "b"], "correct_answer": "a"},
	         {"question": "bad", "choices": ["a", "b"], "correct_answer": "z"}]`
	gen := &scriptedGenerator{replies: map[string]string{"c1": raw}}
	a := New(gen, nil, DefaultOptions())

	rep, err := a.Assemble(context.Background(), []string{"c1"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(rep.Questions) != 1 || rep.Questions[0].Prompt != "good" {
		t.Errorf("expected only the valid record, got %+v", rep.Questions)
	}
	if len(rep.Warnings) != 1 || rep.Warnings[0].Kind != WarnSchema {
		t.Errorf("expected one schema warning, got %+v", rep.Warnings)
	}
}

func TestAssembleDedup(t *testing.T) {
	gen := &scriptedGenerator{replies: map[string]string{
		"c1": questionsJSON("What is ATP?", "What is DNA?"),
		"c2": questionsJSON("what is ATP?", "What is RNA?"),
	}}
	opts := DefaultOptions()
	opts.Dedup = parse.DedupExact
	a := New(gen, nil, opts)

	rep, err := a.Assemble(context.Background(), []string{"c1", "c2"})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := strings.Join(prompts(t, rep), ","); got != "What is ATP?,What is DNA?,What is RNA?" {
		t.Errorf("questions = %s", got)
	}
	if len(rep.Warnings) != 1 || rep.Warnings[0].Kind != WarnDuplicate || rep.Warnings[0].Chunk != 1 {
		t.Errorf("expected one duplicate warning on chunk 1, got %+v", rep.Warnings)
	}
}

type fakeSummarizer struct {
	out   string
	err   error
	calls int
}

func (s *fakeSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	s.calls++
	return s.out, s.err
}

// echoGenerator turns every chunk into one question whose prompt is the chunk.
type echoGenerator struct{ chunks []string }

func (g *echoGenerator) Generate(ctx context.Context, c string) (string, error) {
	g.chunks = append(g.chunks, c)
	return questionsJSON(c), nil
}

func TestFromText(t *testing.T) {
	long := strings.Repeat("Cells divide by mitosis. ", 10)

	t.Run("short text is not summarized", func(t *testing.T) {
		sum := &fakeSummarizer{out: "unused"}
		gen := &echoGenerator{}
		opts := DefaultOptions()
		opts.SummarizeThreshold = 1000
		opts.MaxChunkSize = 60
		rep, err := New(gen, sum, opts).FromText(context.Background(), long)
		if err != nil {
			t.Fatalf("FromText: %v", err)
		}
		if sum.calls != 0 || rep.Summarized {
			t.Error("short text should not be summarized")
		}
		if rep.Chunks != len(gen.chunks) || rep.Chunks < 2 {
			t.Errorf("expected several chunks, got %d", rep.Chunks)
		}
	})

	t.Run("long text is summarized", func(t *testing.T) {
		sum := &fakeSummarizer{out: "Mitosis splits cells. Meiosis makes gametes."}
		gen := &echoGenerator{}
		opts := DefaultOptions()
		opts.SummarizeThreshold = 50
		rep, err := New(gen, sum, opts).FromText(context.Background(), long)
		if err != nil {
			t.Fatalf("FromText: %v", err)
		}
		if sum.calls != 1 || !rep.Summarized {
			t.Error("long text should be summarized once")
		}
		if len(gen.chunks) != 1 || gen.chunks[0] != "Mitosis splits cells. Meiosis makes gametes. " {
			t.Errorf("generator should see the summary, got %q", gen.chunks)
		}
	})

	t.Run("summary failure falls back to original", func(t *testing.T) {
		sum := &fakeSummarizer{err: errors.New("rate limited")}
		gen := &echoGenerator{}
		opts := DefaultOptions()
		opts.SummarizeThreshold = 50
		rep, err := New(gen, sum, opts).FromText(context.Background(), long)
		if err != nil {
			t.Fatalf("FromText: %v", err)
		}
		if rep.Summarized {
			t.Error("report should not claim a summary")
		}
		if len(rep.Warnings) == 0 || rep.Warnings[0].Kind != WarnSummarize || rep.Warnings[0].Chunk != -1 {
			t.Errorf("expected leading summarize warning, got %+v", rep.Warnings)
		}
		if len(rep.Questions) == 0 {
			t.Error("original text should still produce questions")
		}
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := New(&echoGenerator{}, nil, DefaultOptions()).FromText(context.Background(), "")
		if !errors.Is(err, ErrEmptyAssembly) {
			t.Errorf("expected ErrEmptyAssembly, got %v", err)
		}
	})
}

func TestAssembleCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &scriptedGenerator{
		replies: map[string]string{"c1": questionsJSON("q")},
		delay:   map[string]time.Duration{"c1": time.Second},
	}
	_, err := New(gen, nil, DefaultOptions()).Assemble(ctx, []string{"c1"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		sum     Summarizer
		want    string
		wantErr error
	}{
		{"summary", &fakeSummarizer{out: "- Cells divide."}, "- Cells divide.", nil},
		{"no summarizer", nil, "", ErrNoSummarizer},
		{"blank summary", &fakeSummarizer{out: "  \n"}, "", nil},
		{"upstream error", &fakeSummarizer{err: context.DeadlineExceeded}, "", context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(&echoGenerator{}, tt.sum, DefaultOptions()).Summarize(context.Background(), "Cells divide by mitosis.")
			if tt.want != "" {
				if err != nil || got != tt.want {
					t.Fatalf("Summarize = %q, %v; want %q", got, err, tt.want)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected an error, got summary %q", got)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
