package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rmqmeta/internal/entity"
	"rmqmeta/internal/logging"
	"rmqmeta/internal/services"
)

// Runner executes every backend against a document and tags its text.
type Runner struct {
	backends   []TextExtractor
	tagger     Tagger
	allowed    map[string]struct{}
	timeout    time.Duration
	concurrent bool
	logger     *slog.Logger
	observe    func(Result)
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithTimeout bounds each backend, including tagging of its text.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = d }
}

// WithConcurrency runs the backends in parallel. Results keep backend order.
func WithConcurrency(enabled bool) RunnerOption {
	return func(r *Runner) { r.concurrent = enabled }
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logging.NewComponentLogger(logger, "extract") }
}

// WithObserver is called once per finished backend.
func WithObserver(fn func(Result)) RunnerOption {
	return func(r *Runner) { r.observe = fn }
}

// NewRunner builds a runner. tokenTypes limits the entity types merged into
// phrases.
func NewRunner(backends []TextExtractor, tagger Tagger, tokenTypes []string, opts ...RunnerOption) *Runner {
	r := &Runner{
		backends: backends,
		tagger:   tagger,
		allowed:  entity.AllowSet(tokenTypes),
		logger:   logging.NewComponentLogger(nil, "extract"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the backends against path and returns one result per backend
// in backend order regardless of completion order.
func (r *Runner) Run(ctx context.Context, path string) []Result {
	results := make([]Result, len(r.backends))
	if !r.concurrent {
		for i, backend := range r.backends {
			results[i] = r.runOne(ctx, backend, path)
		}
		return results
	}

	var group errgroup.Group
	group.SetLimit(len(r.backends))
	for i, backend := range r.backends {
		group.Go(func() error {
			results[i] = r.runOne(ctx, backend, path)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (r *Runner) runOne(ctx context.Context, backend TextExtractor, path string) Result {
	start := time.Now()
	logger := logging.WithContext(ctx, r.logger).With(logging.String(logging.FieldBackend, backend.Name()))

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	phrases, err := r.extractAndTag(runCtx, backend, path)
	result := Result{Backend: backend.Name(), Duration: time.Since(start)}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = services.Wrap(services.ErrTimeout, "extract", backend.Name(), fmt.Sprintf("exceeded %s", r.timeout), err)
		}
		result.Err = err
		logging.WarnWithContext(logger, "extraction backend failed", "extraction_backend_failed",
			logging.Error(err),
			logging.Duration("duration", result.Duration),
			logging.String(logging.FieldErrorHint, "other backends may still succeed; inspect the document"),
			logging.String(logging.FieldImpact, "backend excluded from metadata"),
		)
	} else {
		result.Success = true
		result.Phrases = phrases
		logger.Info("extraction backend succeeded",
			logging.Int("phrases", len(phrases)),
			logging.Duration("duration", result.Duration),
			logging.String(logging.FieldEventType, "extraction_backend_succeeded"),
		)
	}
	if r.observe != nil {
		r.observe(result)
	}
	return result
}

type extraction struct {
	phrases []entity.Phrase
	err     error
}

// extractAndTag runs in a goroutine so in-process backends that ignore the
// context still honour the deadline. A timed out goroutine finishes in the
// background and its output is discarded.
func (r *Runner) extractAndTag(ctx context.Context, backend TextExtractor, path string) ([]entity.Phrase, error) {
	done := make(chan extraction, 1)
	go func() {
		var out extraction
		defer func() {
			if rec := recover(); rec != nil {
				out = extraction{err: fmt.Errorf("%s: panic: %v", backend.Name(), rec)}
			}
			done <- out
		}()
		text, err := backend.ExtractText(ctx, path)
		if err != nil {
			out.err = err
			return
		}
		tokens, err := r.tagger.Tag(ctx, text)
		if err != nil {
			out.err = services.Wrap(services.ErrExternalTool, "extract", backend.Name(), "tag text", err)
			return
		}
		out.phrases = entity.Merge(tokens, r.allowed)
	}()

	select {
	case out := <-done:
		return out.phrases, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
