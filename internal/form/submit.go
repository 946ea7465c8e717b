package form

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Control selectors in priority order
var submitSelectors = []string{
	`button[type="submit"]`,
	`button:not([type])`,
	`input[type="submit"]`,
	`[role="button"]`,
}

// Submitter finds and activates the submit control and watches the page for
// validation errors afterwards.
type Submitter struct {
	page     Evaluator
	timing   Timing
	logger   *zap.Logger
	newToken func() string
}

// NewSubmitter creates a submitter working on page
func NewSubmitter(page Evaluator, timing Timing, logger *zap.Logger) *Submitter {
	return &Submitter{
		page:   page,
		timing: timing.withDefaults(),
		logger: logger.Named("submitter"),
		newToken: func() string {
			return "__formfill_watch_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

// FindSubmit returns the first visible control, by selector priority, whose
// text carries an affirmative action word.
func (s *Submitter) FindSubmit(ctx context.Context) (SubmitControl, bool, error) {
	var candidates []SubmitControl
	if err := s.page.Evaluate(ctx, submitCandidatesJS, &candidates, submitSelectors); err != nil {
		return SubmitControl{}, false, fmt.Errorf("list submit candidates: %w", err)
	}
	for _, c := range candidates {
		if matchesSubmitWord(c.Text) {
			s.logger.Debug("Found submit control", zap.String("selector", c.Selector), zap.String("text", c.Text))
			return c, true, nil
		}
	}
	return SubmitControl{}, false, nil
}

// Bound on each page call made while submitting
const stepTimeout = 5 * time.Second

// SubmitAndObserve activates ctl and watches for newly inserted error text
// for at most window, counted from activation. It returns the first error
// text seen, or "". Only the caller's cancellation or a failure to start the
// watch or activate the control is reported as an error.
func (s *Submitter) SubmitAndObserve(ctx context.Context, ctl SubmitControl, window time.Duration) (string, error) {
	startCtx, cancelStart := context.WithTimeout(ctx, stepTimeout)
	watch, err := startWatch(startCtx, s.page, s.newToken(), s.timing.PollInterval, s.logger)
	cancelStart()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("start error watch: %w", err)
	}

	var activated bool
	activateCtx, cancelActivate := context.WithTimeout(ctx, stepTimeout)
	err = s.page.Evaluate(activateCtx, activateJS, &activated, ctl.Selector, ctl.Index)
	cancelActivate()
	if err != nil {
		watch.stop(ctx)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("activate submit control: %w", err)
	}
	if !activated {
		watch.stop(ctx)
		return "", fmt.Errorf("submit control %q disappeared before activation", ctl.Text)
	}
	s.logger.Debug("Activated submit control", zap.String("text", ctl.Text))

	return watch.wait(ctx, window)
}
