package form

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// compositeDriver runs the expand-then-read protocol for non-native dropdowns
type compositeDriver struct {
	page   Evaluator
	timing Timing
	logger *zap.Logger
}

// open expands the widget and waits for its option panel. static is true
// when options were already showing, in which case nothing was pressed.
func (d *compositeDriver) open(ctx context.Context, name string) (options []string, static bool, err error) {
	if err := d.page.Evaluate(ctx, panelOptionsJS, &options, name); err != nil {
		return nil, false, fmt.Errorf("read option panel: %w", err)
	}
	if len(options) > 0 {
		return options, true, nil
	}

	var found bool
	if err := d.page.Evaluate(ctx, expandCompositeJS, &found, name); err != nil {
		return nil, false, fmt.Errorf("expand dropdown: %w", err)
	}
	if !found {
		return nil, false, ErrUnresolvedTarget
	}

	options, appeared, err := d.poll(ctx, name, func(opts []string) bool { return len(opts) > 0 })
	if err != nil {
		return nil, false, err
	}
	if !appeared {
		d.logger.Warn("Option panel did not appear", zap.String("field", name), zap.Duration("timeout", d.timing.WidgetTimeout))
	}
	return options, false, nil
}

// close collapses the widget and waits until its panel is gone
func (d *compositeDriver) close(ctx context.Context, name string) error {
	var remaining int
	if err := d.page.Evaluate(ctx, collapseCompositeJS, &remaining, name); err != nil {
		return fmt.Errorf("collapse dropdown: %w", err)
	}
	if remaining == 0 {
		return nil
	}
	gone := func(opts []string) bool { return len(opts) == 0 }
	_, closed, err := d.poll(ctx, name, gone)
	if err != nil || closed {
		return err
	}

	// Some widgets only close when their host is pressed again
	var found bool
	if err := d.page.Evaluate(ctx, toggleCompositeJS, &found, name); err != nil {
		return fmt.Errorf("collapse dropdown: %w", err)
	}
	if found {
		if _, closed, err = d.poll(ctx, name, gone); err != nil {
			return err
		}
	}
	if !closed {
		d.logger.Warn("Option panel still open after collapse", zap.String("field", name))
	}
	return nil
}

// poll re-reads the option panel until done holds or the widget timeout
// passes. On timeout the last read is returned with ok=false.
func (d *compositeDriver) poll(ctx context.Context, name string, done func([]string) bool) ([]string, bool, error) {
	deadline := time.NewTimer(d.timing.WidgetTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(d.timing.PollInterval)
	defer ticker.Stop()

	for {
		var options []string
		if err := d.page.Evaluate(ctx, panelOptionsJS, &options, name); err != nil {
			return nil, false, fmt.Errorf("read option panel: %w", err)
		}
		if done(options) {
			return options, true, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-deadline.C:
			return options, false, nil
		case <-ticker.C:
		}
	}
}

// pause sleeps for d unless ctx ends first
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
