package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/v0xg/formfill/internal/ai"
	"github.com/v0xg/formfill/internal/form"
)

// Scraper snapshots the fillable fields of the page
type Scraper interface {
	Scrape(ctx context.Context) ([]form.FieldDescriptor, error)
}

// Writer applies values to the page and reports how many landed
type Writer interface {
	ApplyValues(ctx context.Context, values []form.FilledValue) (int, error)
}

// Submitter finds the submit control and watches for errors after activating it
type Submitter interface {
	FindSubmit(ctx context.Context) (form.SubmitControl, bool, error)
	SubmitAndObserve(ctx context.Context, ctl form.SubmitControl, window time.Duration) (string, error)
}

// Snapshotter saves a picture of the page under name and returns its path
type Snapshotter interface {
	Snapshot(ctx context.Context, name string) (string, error)
}

// Components are the collaborators of one fill
type Components struct {
	Scraper   Scraper
	Requester ai.Requester
	Writer    Writer
	Submitter Submitter

	// Snapshots is optional
	Snapshots Snapshotter
}

// Config bounds the retry loop
type Config struct {
	MaxAttempts   int
	ObserveWindow time.Duration
}

// DefaultConfig returns the standard bounds
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, ObserveWindow: 5 * time.Second}
}

// Orchestrator drives scrape, request, write, submit and observe in a bounded
// retry loop.
type Orchestrator struct {
	cfg    Config
	c      Components
	logger *zap.Logger
	newID  func() string
}

// New creates an orchestrator
func New(cfg Config, c Components, logger *zap.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.ObserveWindow <= 0 {
		cfg.ObserveWindow = def.ObserveWindow
	}
	return &Orchestrator{
		cfg:    cfg,
		c:      c,
		logger: logger.Named("orchestrator"),
		newID:  uuid.NewString,
	}
}

// Run fills and submits the form, retrying on detected errors, and returns
// the single terminal result.
func (o *Orchestrator) Run(ctx context.Context) Result {
	runID := o.newID()
	ctx = ai.WithRunID(ctx, runID)
	log := o.logger.With(zap.String("run_id", runID))

	var last AttemptResult
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		alog := log.With(zap.Int("attempt", attempt))
		alog.Info("Starting attempt", zap.Int("max_attempts", o.cfg.MaxAttempts))

		last = o.attempt(ctx, alog)
		switch last.Outcome {
		case OutcomeSuccess:
			res := successResult(last, attempt)
			res.RunID = runID
			alog.Info("Fill finished", zap.Int("fields_filled", last.FilledCount), zap.Bool("submitted", last.Submitted))
			return res
		case OutcomeFatalFailure:
			alog.Warn("Fill aborted", zap.Error(last.Err))
			return Result{
				Status:       StatusError,
				FieldsFilled: last.FilledCount,
				Message:      fmt.Sprintf("Fill aborted: %v", last.Err),
				Attempts:     attempt,
				RunID:        runID,
			}
		}

		alog.Warn("Attempt failed", zap.String("diagnostic", last.Diagnostic), zap.Error(last.Err))
		o.snapshot(ctx, alog, runID, attempt)
	}

	log.Error("Attempts exhausted", zap.Int("attempts", o.cfg.MaxAttempts), zap.Error(last.Err))
	return Result{
		Status:       StatusError,
		FieldsFilled: last.FilledCount,
		Message:      exhaustedMessage(last, o.cfg.MaxAttempts),
		Attempts:     o.cfg.MaxAttempts,
		RunID:        runID,
	}
}

func (o *Orchestrator) attempt(ctx context.Context, log *zap.Logger) AttemptResult {
	fields, err := o.c.Scraper.Scrape(ctx)
	if err != nil {
		return failed(ctx, 0, fmt.Errorf("scrape fields: %w", err))
	}
	if len(fields) == 0 {
		return failed(ctx, 0, form.ErrNoFieldsFound)
	}
	log.Debug("Scraped fields", zap.Int("fields", len(fields)))

	values, err := o.c.Requester.RequestValues(ctx, fields)
	if err != nil {
		return failed(ctx, 0, fmt.Errorf("request values: %w", err))
	}

	filled, err := o.c.Writer.ApplyValues(ctx, values)
	if err != nil {
		return failed(ctx, filled, fmt.Errorf("apply values: %w", err))
	}
	log.Debug("Applied values", zap.Int("filled", filled), zap.Int("values", len(values)))

	ctl, found, err := o.c.Submitter.FindSubmit(ctx)
	if err != nil {
		return failed(ctx, filled, fmt.Errorf("find submit control: %w", err))
	}
	if !found {
		// Nothing to verify against
		return AttemptResult{Outcome: OutcomeSuccess, FilledCount: filled}
	}

	text, err := o.c.Submitter.SubmitAndObserve(ctx, ctl, o.cfg.ObserveWindow)
	if err != nil {
		return failed(ctx, filled, fmt.Errorf("submit: %w", err))
	}
	if text != "" {
		return AttemptResult{
			Outcome:     OutcomeRetryableFailure,
			FilledCount: filled,
			Diagnostic:  text,
			Err:         &form.PageValidationError{Text: text},
		}
	}
	return AttemptResult{Outcome: OutcomeSuccess, FilledCount: filled, Submitted: true}
}

func (o *Orchestrator) snapshot(ctx context.Context, log *zap.Logger, runID string, attempt int) {
	if o.c.Snapshots == nil || ctx.Err() != nil {
		return
	}
	name := fmt.Sprintf("%s-attempt-%d", shortID(runID), attempt)
	path, err := o.c.Snapshots.Snapshot(ctx, name)
	if err != nil {
		log.Warn("Failed to save snapshot", zap.Error(err))
		return
	}
	log.Info("Saved failure snapshot", zap.String("path", path))
}

// failed classifies an attempt error. Only cancellation of the run is fatal.
func failed(ctx context.Context, filled int, err error) AttemptResult {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return AttemptResult{Outcome: OutcomeFatalFailure, FilledCount: filled, Diagnostic: ctxErr.Error(), Err: ctxErr}
	}
	return AttemptResult{Outcome: OutcomeRetryableFailure, FilledCount: filled, Diagnostic: err.Error(), Err: err}
}

func successResult(a AttemptResult, attempt int) Result {
	res := Result{Status: StatusSuccess, FieldsFilled: a.FilledCount, Attempts: attempt}
	if a.Submitted {
		res.Message = fmt.Sprintf("Form submitted successfully after %d attempt(s).", attempt)
	} else {
		res.Message = fmt.Sprintf("Filled %d field(s); no submit button found.", a.FilledCount)
	}
	return res
}

func exhaustedMessage(last AttemptResult, attempts int) string {
	var pageErr *form.PageValidationError
	if errors.As(last.Err, &pageErr) {
		return fmt.Sprintf("Failed after %d attempts. Last error: %s", attempts, pageErr.Text)
	}
	if last.Err != nil {
		return last.Err.Error()
	}
	return fmt.Sprintf("Failed after %d attempts.", attempts)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
