package form

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// writeFunc applies one value to a resolved target using a widget-specific
// protocol. applied is false when the target offered nothing to write.
type writeFunc func(ctx context.Context, name, value string, t target) (applied bool, err error)

// Writer applies generated values back onto the live document
type Writer struct {
	page       Evaluator
	widgets    *compositeDriver
	timing     Timing
	logger     *zap.Logger
	strategies map[Widget]writeFunc
}

// NewWriter creates a writer working on page
func NewWriter(page Evaluator, timing Timing, logger *zap.Logger) *Writer {
	timing = timing.withDefaults()
	logger = logger.Named("writer")
	w := &Writer{
		page:    page,
		widgets: &compositeDriver{page: page, timing: timing, logger: logger},
		timing:  timing,
		logger:  logger,
	}
	w.strategies = map[Widget]writeFunc{
		WidgetSelect:    w.writeSelect,
		WidgetComposite: w.writeComposite,
		WidgetRadio:     w.writeRadio,
		WidgetCheckbox:  w.writeCheckbox,
		WidgetText:      w.writeText,
		WidgetOther:     w.writeText,
	}
	return w
}

// ApplyValues writes each value to the control its name resolves to and
// returns how many were applied. Unresolvable targets are logged and skipped;
// the only error returned is the context's.
func (w *Writer) ApplyValues(ctx context.Context, values []FilledValue) (int, error) {
	filled := 0
	for _, v := range values {
		if err := ctx.Err(); err != nil {
			return filled, err
		}
		if v.Name == "" {
			continue
		}
		log := w.logger.With(zap.String("field", v.Name))

		var t target
		if err := w.page.Evaluate(ctx, inspectTargetJS, &t, v.Name); err != nil {
			if ctx.Err() != nil {
				return filled, ctx.Err()
			}
			log.Warn("Could not inspect form target", zap.Error(err))
			continue
		}
		if !t.Found {
			log.Warn("Skipping value", zap.Error(ErrUnresolvedTarget))
			continue
		}

		write, ok := w.strategies[t.Widget]
		if !ok {
			write = w.writeText
		}
		applied, err := write(ctx, v.Name, v.Value, t)
		if err != nil {
			if ctx.Err() != nil {
				return filled, ctx.Err()
			}
			log.Warn("Failed to apply value", zap.String("widget", string(t.Widget)), zap.Error(err))
			continue
		}
		if !applied {
			log.Warn("Skipping value", zap.String("widget", string(t.Widget)), zap.String("value", v.Value), zap.Error(ErrUnresolvedTarget))
			continue
		}
		filled++
		log.Debug("Applied value", zap.String("widget", string(t.Widget)))
	}
	return filled, nil
}

func (w *Writer) writeSelect(ctx context.Context, name, value string, t target) (bool, error) {
	var choices []option
	for _, opt := range t.Options {
		if !isPlaceholderOption(opt) {
			choices = append(choices, opt)
		}
	}
	if len(choices) == 0 {
		return false, nil
	}

	texts := make([]string, len(choices))
	for i, c := range choices {
		texts[i] = c.Text
	}
	idx := MatchOption(texts, value)
	if idx < 0 {
		w.logger.Debug("No option matches, using first valid option",
			zap.String("field", name), zap.String("value", value), zap.String("option", texts[0]))
		idx = 0
	}

	var ok bool
	if err := w.page.Evaluate(ctx, setSelectJS, &ok, name, choices[idx].Value); err != nil {
		return false, fmt.Errorf("set select value: %w", err)
	}
	return ok, nil
}

func (w *Writer) writeComposite(ctx context.Context, name, value string, _ target) (bool, error) {
	texts, static, err := w.widgets.open(ctx, name)
	if err != nil {
		return false, err
	}

	var choices []int
	var labels []string
	for i, t := range texts {
		if !isPlaceholderText(t) {
			choices = append(choices, i)
			labels = append(labels, t)
		}
	}

	chosen := false
	if len(choices) > 0 {
		idx := MatchOption(labels, value)
		if idx < 0 {
			w.logger.Debug("No dropdown option matches, using first option",
				zap.String("field", name), zap.String("value", value), zap.String("option", labels[0]))
			idx = 0
		}
		if err := w.page.Evaluate(ctx, choosePanelOptionJS, &chosen, name, choices[idx]); err != nil {
			return false, fmt.Errorf("choose dropdown option: %w", err)
		}
	}

	if !static {
		if err := w.widgets.close(ctx, name); err != nil {
			return false, err
		}
	}
	if err := pause(ctx, w.timing.SettleDelay); err != nil {
		return false, err
	}
	return chosen, nil
}

func (w *Writer) writeRadio(ctx context.Context, name, value string, t target) (bool, error) {
	idx := MatchOption(t.Members, value)
	if idx < 0 {
		return false, nil
	}
	var ok bool
	if err := w.page.Evaluate(ctx, checkRadioJS, &ok, name, idx); err != nil {
		return false, fmt.Errorf("check radio: %w", err)
	}
	return ok, nil
}

func (w *Writer) writeCheckbox(ctx context.Context, name, value string, _ target) (bool, error) {
	var ok bool
	if err := w.page.Evaluate(ctx, setCheckedJS, &ok, name, IsTruthy(value)); err != nil {
		return false, fmt.Errorf("set checkbox: %w", err)
	}
	return ok, nil
}

func (w *Writer) writeText(ctx context.Context, name, value string, _ target) (bool, error) {
	var ok bool
	if err := w.page.Evaluate(ctx, setTextJS, &ok, name, value); err != nil {
		return false, fmt.Errorf("set value: %w", err)
	}
	return ok, nil
}
