package extract_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"rmqmeta/internal/entity"
	"rmqmeta/internal/extract"
	"rmqmeta/internal/services"
)

type fakeBackend struct {
	name  string
	text  string
	err   error
	delay time.Duration
	panic bool
}

func (f fakeBackend) Name() string { return f.name }

func (f fakeBackend) ExtractText(ctx context.Context, _ string) (string, error) {
	if f.panic {
		panic("corrupt object stream")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

// capitalTagger labels capitalized words PERSON and everything else O.
type capitalTagger struct {
	calls atomic.Int32
	err   error
}

func (c *capitalTagger) Tag(_ context.Context, text string) ([]entity.Token, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	var tokens []entity.Token
	for _, word := range strings.Fields(text) {
		label := entity.Outside
		if word[0] >= 'A' && word[0] <= 'Z' {
			label = "PERSON"
		}
		tokens = append(tokens, entity.Token{Text: word, Label: label})
	}
	return tokens, nil
}

func TestRunnerIsolatesBackendFailures(t *testing.T) {
	backends := []extract.TextExtractor{
		fakeBackend{name: "a", err: extract.ErrEncrypted},
		fakeBackend{name: "b", text: "met Ada Lovelace today"},
		fakeBackend{name: "c", panic: true},
	}
	runner := extract.NewRunner(backends, &capitalTagger{}, []string{"PERSON"})

	results := runner.Run(context.Background(), "doc.pdf")
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Success || !errors.Is(results[0].Err, extract.ErrEncrypted) {
		t.Fatalf("unexpected first result %+v", results[0])
	}
	if !results[1].Success || len(results[1].Phrases) != 1 || results[1].Phrases[0].Text != "Ada Lovelace" {
		t.Fatalf("unexpected second result %+v", results[1])
	}
	if results[2].Success || results[2].Err == nil {
		t.Fatalf("panic should become a failure: %+v", results[2])
	}
	if !extract.Succeeded(results) {
		t.Fatal("expected overall success")
	}
}

func TestRunnerEmptyTextIsSuccess(t *testing.T) {
	runner := extract.NewRunner([]extract.TextExtractor{fakeBackend{name: "a"}}, &capitalTagger{}, []string{"PERSON"})
	results := runner.Run(context.Background(), "doc.pdf")
	if !results[0].Success || len(results[0].Phrases) != 0 {
		t.Fatalf("expected success with no phrases, got %+v", results[0])
	}
}

func TestRunnerTimeoutFailsOnlySlowBackend(t *testing.T) {
	backends := []extract.TextExtractor{
		fakeBackend{name: "slow", text: "Never", delay: time.Second},
		fakeBackend{name: "fast", text: "Quick"},
	}
	runner := extract.NewRunner(backends, &capitalTagger{}, []string{"PERSON"}, extract.WithTimeout(20*time.Millisecond))
	results := runner.Run(context.Background(), "doc.pdf")
	if results[0].Success || !errors.Is(results[0].Err, services.ErrTimeout) {
		t.Fatalf("expected timeout failure, got %+v", results[0])
	}
	if !results[1].Success {
		t.Fatalf("fast backend should succeed: %+v", results[1])
	}
}

func TestRunnerConcurrentKeepsBackendOrder(t *testing.T) {
	backends := []extract.TextExtractor{
		fakeBackend{name: "first", text: "Alpha", delay: 40 * time.Millisecond},
		fakeBackend{name: "second", text: "Beta", delay: 10 * time.Millisecond},
		fakeBackend{name: "third", text: "Gamma"},
	}
	var observed atomic.Int32
	runner := extract.NewRunner(backends, &capitalTagger{}, []string{"PERSON"},
		extract.WithConcurrency(true),
		extract.WithObserver(func(extract.Result) { observed.Add(1) }),
	)
	results := runner.Run(context.Background(), "doc.pdf")
	for i, want := range []string{"first", "second", "third"} {
		if results[i].Backend != want {
			t.Fatalf("result %d backend %q want %q", i, results[i].Backend, want)
		}
	}
	if observed.Load() != 3 {
		t.Fatalf("observer called %d times", observed.Load())
	}
}

func TestRunnerTaggerFailureFailsBackend(t *testing.T) {
	runner := extract.NewRunner([]extract.TextExtractor{fakeBackend{name: "a", text: "x"}}, &capitalTagger{err: errors.New("java missing")}, nil)
	results := runner.Run(context.Background(), "doc.pdf")
	if results[0].Success || !errors.Is(results[0].Err, services.ErrExternalTool) {
		t.Fatalf("expected tagger failure, got %+v", results[0])
	}
	if extract.Succeeded(results) {
		t.Fatal("no backend should succeed")
	}
}
