package form

import (
	"context"
	"time"
)

// Evaluator runs a JavaScript function expression in the live page and
// decodes its JSON result into result (which may be nil).
type Evaluator interface {
	Evaluate(ctx context.Context, script string, result any, args ...any) error
}

// Kind classifies a field for the data generator
type Kind string

const (
	KindText     Kind = "text"
	KindSelect   Kind = "select"
	KindRadio    Kind = "radio"
	KindCheckbox Kind = "checkbox"
	KindOther    Kind = "other"
)

// Enumerable reports whether fields of this kind carry an option list
func (k Kind) Enumerable() bool {
	return k == KindSelect || k == KindRadio
}

// FieldDescriptor represents one fillable form input discovered on a page
type FieldDescriptor struct {
	Name        string   `json:"name"`
	Kind        Kind     `json:"kind"`
	Label       string   `json:"label"`
	Placeholder string   `json:"placeholder,omitempty"`
	Options     []string `json:"options,omitempty"`

	// Composite is set for non-native dropdown widgets
	Composite bool `json:"-"`
}

// FilledValue is a generated value for a single field
type FilledValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Widget is the concrete control found at write time
type Widget string

const (
	WidgetText      Widget = "text"
	WidgetSelect    Widget = "select"
	WidgetComposite Widget = "composite"
	WidgetRadio     Widget = "radio"
	WidgetCheckbox  Widget = "checkbox"
	WidgetOther     Widget = "other"
)

// Kind maps the widget to the kind reported to the data generator
func (w Widget) Kind() Kind {
	switch w {
	case WidgetText:
		return KindText
	case WidgetSelect, WidgetComposite:
		return KindSelect
	case WidgetRadio:
		return KindRadio
	case WidgetCheckbox:
		return KindCheckbox
	default:
		return KindOther
	}
}

// Timing bounds every wait the scraper, writer and submitter perform
type Timing struct {
	WidgetTimeout time.Duration // option panel open/close
	SettleDelay   time.Duration // pause after a composite selection
	PollInterval  time.Duration // DOM polling cadence
}

// DefaultTiming returns the timing used when none is configured
func DefaultTiming() Timing {
	return Timing{
		WidgetTimeout: 2 * time.Second,
		SettleDelay:   300 * time.Millisecond,
		PollInterval:  100 * time.Millisecond,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.WidgetTimeout <= 0 {
		t.WidgetTimeout = d.WidgetTimeout
	}
	if t.SettleDelay < 0 {
		t.SettleDelay = 0
	}
	if t.PollInterval <= 0 {
		t.PollInterval = d.PollInterval
	}
	return t
}

// option is a native <option> as seen from the page
type option struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

// rawControl is what the collect script reports for each candidate element
type rawControl struct {
	FormControlName string   `json:"formControlName"`
	Name            string   `json:"name"`
	ID              string   `json:"id"`
	Slug            string   `json:"slug"`
	Label           string   `json:"label"`
	Placeholder     string   `json:"placeholder"`
	Visible         bool     `json:"visible"`
	Widget          Widget   `json:"widget"`
	Options         []option `json:"options"`
}

// target is what the inspect script reports for a name at write time
type target struct {
	Found   bool     `json:"found"`
	Widget  Widget   `json:"widget"`
	Options []option `json:"options"`
	Members []string `json:"members"`
}

// SubmitControl identifies the submit candidate picked on the page
type SubmitControl struct {
	Selector string `json:"selector"`
	Index    int    `json:"index"`
	Text     string `json:"text"`
}
