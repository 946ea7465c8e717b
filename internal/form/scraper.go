package form

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Scraper turns the live document into an ordered list of field descriptors
type Scraper struct {
	page    Evaluator
	widgets *compositeDriver
	logger  *zap.Logger
}

// NewScraper creates a scraper working on page
func NewScraper(page Evaluator, timing Timing, logger *zap.Logger) *Scraper {
	logger = logger.Named("scraper")
	return &Scraper{
		page:    page,
		widgets: &compositeDriver{page: page, timing: timing.withDefaults(), logger: logger},
		logger:  logger,
	}
}

// Scrape takes a fresh snapshot of the fillable controls on the page.
// Every call rescans the document; nothing is cached between calls.
func (s *Scraper) Scrape(ctx context.Context) ([]FieldDescriptor, error) {
	var controls []rawControl
	if err := s.page.Evaluate(ctx, collectControlsJS, &controls); err != nil {
		return nil, fmt.Errorf("collect form controls: %w", err)
	}

	fields := make([]FieldDescriptor, 0, len(controls))
	index := make(map[string]int, len(controls))

	for _, c := range controls {
		if !c.Visible {
			continue
		}

		name := identifier(c)
		if name == "" {
			s.logger.Warn("Skipping field without formcontrolname, name, id or label",
				zap.String("widget", string(c.Widget)), zap.String("placeholder", c.Placeholder))
			continue
		}

		field := describe(c, name)
		i, seen := index[name]
		if !seen {
			index[name] = len(fields)
			fields = append(fields, field)
			continue
		}

		existing := &fields[i]
		switch {
		case existing.Kind == KindRadio && field.Kind == KindRadio:
			existing.Options = appendDistinct(existing.Options, c.Label)
		case field.Kind.Enumerable() && !existing.Kind.Enumerable():
			s.logger.Debug("Enumerable control supersedes plain duplicate", zap.String("field", name))
			fields[i] = field
		default:
			s.logger.Debug("Dropping duplicate control", zap.String("field", name), zap.String("widget", string(c.Widget)))
		}
	}

	for i := range fields {
		if !fields[i].Composite {
			continue
		}
		options, err := s.readComposite(ctx, fields[i].Name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("Could not read dropdown options", zap.String("field", fields[i].Name), zap.Error(err))
			continue
		}
		fields[i].Options = options
	}

	s.logger.Debug("Scraped form", zap.Int("controls", len(controls)), zap.Int("fields", len(fields)))
	return fields, nil
}

// readComposite expands a dropdown, reads its options and collapses it again
func (s *Scraper) readComposite(ctx context.Context, name string) ([]string, error) {
	texts, static, err := s.widgets.open(ctx, name)
	if err != nil {
		return nil, err
	}
	if !static {
		if err := s.widgets.close(ctx, name); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("Could not collapse dropdown", zap.String("field", name), zap.Error(err))
		}
	}

	var options []string
	for _, t := range texts {
		if !isPlaceholderText(t) {
			options = appendDistinct(options, t)
		}
	}
	return options, nil
}

// identifier resolves formcontrolname, then name, then id, then the label slug
func identifier(c rawControl) string {
	for _, candidate := range []string{c.FormControlName, c.Name, c.ID, c.Slug} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func describe(c rawControl, name string) FieldDescriptor {
	f := FieldDescriptor{
		Name:        name,
		Kind:        c.Widget.Kind(),
		Label:       c.Label,
		Placeholder: c.Placeholder,
		Composite:   c.Widget == WidgetComposite,
	}
	if f.Label == "" {
		f.Label = name
	}

	switch c.Widget {
	case WidgetSelect:
		for _, opt := range c.Options {
			if !isPlaceholderOption(opt) {
				f.Options = appendDistinct(f.Options, opt.Text)
			}
		}
	case WidgetRadio:
		f.Options = appendDistinct(nil, c.Label)
	}
	return f
}

func appendDistinct(list []string, s string) []string {
	if s == "" {
		return list
	}
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
