package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"rmqmeta/internal/dispatch"
	"rmqmeta/internal/docstore"
	"rmqmeta/internal/extract"
	"rmqmeta/internal/fileutil"
	"rmqmeta/internal/logging"
	"rmqmeta/internal/metadata"
	"rmqmeta/internal/notifications"
	"rmqmeta/internal/quarantine"
	"rmqmeta/internal/services"
)

// Message is one inbound queue message.
type Message struct {
	ID          string
	Exchange    string
	RoutingKey  string
	Body        []byte
	Redelivered bool
}

// Outcome records how one message was processed.
type Outcome struct {
	MessageID   string
	RoutingKey  string
	Redelivered bool
	State       State
	Route       string
	Document    string
	ArchivePath string
	Record      *metadata.Record
	Results     []extract.Result
	Quarantine  *quarantine.Entry
	Err         error
	Started     time.Time
	Stages      map[string]time.Duration
	Duration    time.Duration
}

// Dispatcher routes and materializes a message body.
type Dispatcher interface {
	Dispatch(ctx context.Context, routingKey string, body []byte) (*dispatch.Result, error)
}

// Extractor runs the text extraction backends over a document.
type Extractor interface {
	Run(ctx context.Context, path string) []extract.Result
}

// Sink preserves failed message bodies.
type Sink interface {
	Put(ctx context.Context, routingKey string, body []byte, cause error) (*quarantine.Entry, error)
}

// Controller runs the pipeline for one message at a time.
type Controller struct {
	dispatcher Dispatcher
	extractor  Extractor
	store      docstore.Store
	sink       Sink
	notifier   notifications.Service
	logger     *slog.Logger
	now        func() time.Time
	observers  []func(*Outcome)
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithObserver registers fn to receive every finished outcome.
func WithObserver(fn func(*Outcome)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// WithNotifier alerts on stored records that could not be rolled back.
func WithNotifier(n notifications.Service) Option {
	return func(c *Controller) { c.notifier = n }
}

// NewController wires the pipeline collaborators.
func NewController(dispatcher Dispatcher, extractor Extractor, store docstore.Store, sink Sink, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		dispatcher: dispatcher,
		extractor:  extractor,
		store:      store,
		sink:       sink,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process runs msg to a terminal state. The returned error is non-nil only
// when a failed message could not be quarantined.
func (c *Controller) Process(ctx context.Context, msg Message) (*Outcome, error) {
	ctx = services.WithMessageID(ctx, msg.ID)
	ctx = services.WithRoutingKey(ctx, msg.RoutingKey)
	ctx = services.WithExchange(ctx, msg.Exchange)
	out := &Outcome{
		MessageID:   msg.ID,
		RoutingKey:  msg.RoutingKey,
		Redelivered: msg.Redelivered,
		State:       StateReceived,
		Started:     c.now(),
		Stages:      make(map[string]time.Duration, 4),
	}
	logger := logging.WithContext(ctx, c.logger)
	if msg.Redelivered {
		logger.Info("processing redelivered message", logging.Bool("redelivered", true))
	}

	err := c.run(ctx, msg, out)
	out.Duration = c.now().Sub(out.Started)
	if err != nil {
		out.Err = err
		entry, qerr := c.sink.Put(services.WithStage(ctx, string(out.State)), msg.RoutingKey, msg.Body, err)
		out.Quarantine = entry
		c.notify(out)
		if qerr != nil {
			return out, qerr
		}
		return out, nil
	}

	logger.Info("document relocated",
		logging.String("path", out.Document),
		logging.String("record_id", out.Record.ID),
		logging.Int("entities", out.Record.EntityCount()),
		logging.Duration("duration", out.Duration),
		logging.String(logging.FieldEventType, "message_processed"),
	)
	c.notify(out)
	return out, nil
}

func (c *Controller) run(ctx context.Context, msg Message, out *Outcome) error {
	logger := logging.WithContext(ctx, c.logger)

	start := time.Now()
	res, err := c.dispatcher.Dispatch(ctx, msg.RoutingKey, msg.Body)
	out.Stages["dispatch"] = time.Since(start)
	if res != nil {
		out.Route = res.Route.Queue
		out.ArchivePath = res.ArchivePath
	}
	if err != nil {
		if errors.Is(err, services.ErrRouting) {
			out.State = StateUnrouted
		} else {
			out.State = StateMaterializeFailed
		}
		return err
	}
	out.State = StateMaterialized
	doc := res.Document
	logger.Debug("document materialized", logging.String("path", doc.Path), logging.String(logging.FieldStage, string(out.State)))

	start = time.Now()
	out.Results = c.extractor.Run(services.WithStage(ctx, "extract"), doc.Path)
	out.Stages["extract"] = time.Since(start)
	if !extract.Succeeded(out.Results) {
		c.discard(logger, doc.Path)
		out.State = StateExtractionFailed
		return services.Wrap(services.ErrExtraction, "pipeline", "extract", "every backend failed", backendErrors(out.Results))
	}

	rec := metadata.New(doc.Name, res.Route.Directory, c.now())
	for _, result := range out.Results {
		if result.Success {
			rec.Fold(result.Phrases)
		}
	}
	out.State = StateExtracted

	start = time.Now()
	err = c.store.Insert(services.WithStage(ctx, "persist"), rec)
	out.Stages["persist"] = time.Since(start)
	if err != nil {
		c.discard(logger, doc.Path)
		out.State = StatePersistedFailed
		return services.Wrap(services.ErrPersistence, "pipeline", "insert record", c.store.Backend(), err)
	}
	out.State = StatePersisted
	out.Record = rec

	start = time.Now()
	dst := filepath.Join(res.Route.Directory, doc.Name)
	err = fileutil.Move(doc.Path, dst)
	out.Stages["relocate"] = time.Since(start)
	if err != nil {
		c.rollback(ctx, logger, rec)
		out.Record = nil
		c.discard(logger, doc.Path)
		out.State = StateRelocationFailed
		return services.Wrap(services.ErrRelocation, "pipeline", "move document", dst, err)
	}
	out.State = StateRelocated
	out.Document = dst
	return nil
}

// rollback removes a record whose document never reached its directory.
func (c *Controller) rollback(ctx context.Context, logger *slog.Logger, rec *metadata.Record) {
	// The message context may already be cancelled by shutdown; the delete
	// still has to run.
	delCtx := context.WithoutCancel(ctx)
	err := c.store.Delete(delCtx, rec.ID)
	if err == nil {
		logger.Info("stored record rolled back", logging.String("record_id", rec.ID))
		return
	}
	logger.Error("stored record could not be rolled back",
		logging.String("record_id", rec.ID),
		logging.String("backend", c.store.Backend()),
		logging.Error(err),
		logging.Alert("record_orphaned"),
		logging.String(logging.FieldEventType, "record_orphaned"),
		logging.String(logging.FieldErrorHint, "delete the record manually before reprocessing the quarantined body"),
	)
	if c.notifier == nil {
		return
	}
	exchange, _ := services.ExchangeFromContext(ctx)
	routingKey, _ := services.RoutingKeyFromContext(ctx)
	if nerr := c.notifier.Publish(delCtx, notifications.EventRecordOrphaned, notifications.Payload{
		"recordID":   rec.ID,
		"backend":    c.store.Backend(),
		"exchange":   exchange,
		"routingKey": routingKey,
		"error":      err,
	}); nerr != nil {
		logging.WarnWithContext(logger, "orphaned record alert failed", "alert_failed", logging.Error(nerr))
	}
}

func (c *Controller) discard(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(logger, "failed to remove materialized document", "cleanup_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the file from tmp_dir manually"),
		)
	}
}

func (c *Controller) notify(out *Outcome) {
	for _, fn := range c.observers {
		fn(out)
	}
}

func backendErrors(results []extract.Result) error {
	errs := make([]error, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Backend, r.Err))
		}
	}
	return errors.Join(errs...)
}
