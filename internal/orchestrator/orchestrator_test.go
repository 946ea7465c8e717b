package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/v0xg/formfill/internal/ai"
	"github.com/v0xg/formfill/internal/form"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var twoFields = []form.FieldDescriptor{
	{Name: "email", Kind: form.KindText, Label: "Email"},
	{Name: "state", Kind: form.KindSelect, Label: "State", Options: []string{"CA", "NY"}},
}

type fakeScraper struct {
	calls  int
	fields []form.FieldDescriptor
	errs   []error
}

func (f *fakeScraper) Scrape(context.Context) ([]form.FieldDescriptor, error) {
	f.calls++
	if len(f.errs) >= f.calls && f.errs[f.calls-1] != nil {
		return nil, f.errs[f.calls-1]
	}
	return f.fields, nil
}

type fakeRequester struct {
	calls int
	err   error
	runID string
}

func (f *fakeRequester) RequestValues(ctx context.Context, fields []form.FieldDescriptor) ([]form.FilledValue, error) {
	f.calls++
	f.runID = ai.RunIDFromContext(ctx)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]form.FilledValue, len(fields))
	for i, fd := range fields {
		out[i] = form.FilledValue{Name: fd.Name, Value: "v"}
	}
	return out, nil
}

type fakeWriter struct {
	calls  int
	filled int
}

func (f *fakeWriter) ApplyValues(_ context.Context, values []form.FilledValue) (int, error) {
	f.calls++
	if f.filled > 0 {
		return f.filled, nil
	}
	return len(values), nil
}

type fakeSubmitter struct {
	found    bool
	findErr  error
	errors   []string // page error text per submit; "" means clean
	submits  int
	windows  []time.Duration
	observed func(ctx context.Context) error
}

func (f *fakeSubmitter) FindSubmit(context.Context) (form.SubmitControl, bool, error) {
	if f.findErr != nil {
		return form.SubmitControl{}, false, f.findErr
	}
	return form.SubmitControl{Selector: "button", Text: "Submit"}, f.found, nil
}

func (f *fakeSubmitter) SubmitAndObserve(ctx context.Context, _ form.SubmitControl, window time.Duration) (string, error) {
	f.submits++
	f.windows = append(f.windows, window)
	if f.observed != nil {
		if err := f.observed(ctx); err != nil {
			return "", err
		}
	}
	if f.submits <= len(f.errors) {
		return f.errors[f.submits-1], nil
	}
	return "", nil
}

type fakeSnapshots struct {
	names []string
}

func (f *fakeSnapshots) Snapshot(_ context.Context, name string) (string, error) {
	f.names = append(f.names, name)
	return "/tmp/" + name + ".png", nil
}

type rig struct {
	scraper   *fakeScraper
	requester *fakeRequester
	writer    *fakeWriter
	submitter *fakeSubmitter
	snapshots *fakeSnapshots
	logs      *observer.ObservedLogs
}

func newRig() *rig {
	return &rig{
		scraper:   &fakeScraper{fields: twoFields},
		requester: &fakeRequester{},
		writer:    &fakeWriter{},
		submitter: &fakeSubmitter{found: true},
		snapshots: &fakeSnapshots{},
	}
}

func (r *rig) orchestrator(cfg Config) *Orchestrator {
	core, logs := observer.New(zap.DebugLevel)
	r.logs = logs
	o := New(cfg, Components{
		Scraper:   r.scraper,
		Requester: r.requester,
		Writer:    r.writer,
		Submitter: r.submitter,
		Snapshots: r.snapshots,
	}, zap.New(core))
	o.newID = func() string { return "0123456789abcdef" }
	return o
}

func TestRun_SuccessOnFirstAttempt(t *testing.T) {
	r := newRig()
	res := r.orchestrator(Config{MaxAttempts: 3, ObserveWindow: time.Second}).Run(context.Background())

	assert.Equal(t, Result{
		Status:       StatusSuccess,
		FieldsFilled: 2,
		Message:      "Form submitted successfully after 1 attempt(s).",
		Attempts:     1,
		RunID:        "0123456789abcdef",
	}, res)
	assert.True(t, res.OK())
	assert.Equal(t, []time.Duration{time.Second}, r.submitter.windows)
	assert.Equal(t, "0123456789abcdef", r.requester.runID)
	assert.Empty(t, r.snapshots.names)
}

func TestRun_RetryBound(t *testing.T) {
	r := newRig()
	r.submitter.errors = []string{"Email is invalid", "Phone is required", "Zip must be 5 digits"}

	res := r.orchestrator(Config{MaxAttempts: 3}).Run(context.Background())

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "Failed after 3 attempts. Last error: Zip must be 5 digits", res.Message)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 2, res.FieldsFilled)
	assert.Equal(t, 3, r.scraper.calls, "every attempt rescrapes")
	assert.Equal(t, 3, r.requester.calls)
	assert.Equal(t, 3, r.writer.calls)
	assert.Equal(t, 3, r.submitter.submits)
	assert.Equal(t, []string{"01234567-attempt-1", "01234567-attempt-2", "01234567-attempt-3"}, r.snapshots.names)
}

func TestRun_SuccessAfterRetry(t *testing.T) {
	r := newRig()
	r.submitter.errors = []string{"Please enter a valid email", ""}

	res := r.orchestrator(Config{MaxAttempts: 3}).Run(context.Background())

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "Form submitted successfully after 2 attempt(s).", res.Message)
	assert.Equal(t, 2, r.scraper.calls)
	assert.Equal(t, 1, r.logs.FilterMessage("Attempt failed").Len())
}

func TestRun_NoSubmitControl(t *testing.T) {
	r := newRig()
	r.submitter.found = false
	r.writer.filled = 1

	res := r.orchestrator(Config{}).Run(context.Background())

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 1, res.FieldsFilled)
	assert.Equal(t, "Filled 1 field(s); no submit button found.", res.Message)
	assert.Equal(t, 1, r.scraper.calls)
	assert.Zero(t, r.submitter.submits, "no observation without a submit control")
}

func TestRun_ZeroFieldsSkipsRequester(t *testing.T) {
	r := newRig()
	r.scraper.fields = nil

	res := r.orchestrator(Config{MaxAttempts: 2}).Run(context.Background())

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, form.ErrNoFieldsFound.Error(), res.Message)
	assert.Equal(t, 2, r.scraper.calls)
	assert.Zero(t, r.requester.calls)
	assert.Zero(t, r.writer.calls)
}

func TestRun_NonFinalErrorIsSwallowed(t *testing.T) {
	r := newRig()
	r.scraper.errs = []error{errors.New("execution context was destroyed")}

	res := r.orchestrator(Config{MaxAttempts: 2}).Run(context.Background())

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 2, r.scraper.calls)
	assert.Equal(t, 1, r.requester.calls)
}

func TestRun_FinalErrorSurfaces(t *testing.T) {
	r := newRig()
	r.requester.err = &ai.TransportError{Provider: "gemini", StatusCode: 403, Err: errors.New("denied")}

	res := r.orchestrator(Config{MaxAttempts: 2}).Run(context.Background())

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "Is your API key correct?")
	assert.Equal(t, 2, r.requester.calls, "auth failures are retried like any attempt error")
}

func TestRun_MissingCredentialMessage(t *testing.T) {
	r := newRig()
	r.requester.err = ai.ErrMissingCredential

	res := r.orchestrator(Config{MaxAttempts: 1}).Run(context.Background())

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, ai.ErrMissingCredential.Error())
	assert.Zero(t, r.writer.calls)
}

func TestRun_CancellationIsFatal(t *testing.T) {
	r := newRig()
	ctx, cancel := context.WithCancel(context.Background())
	r.submitter.observed = func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	}

	res := r.orchestrator(Config{MaxAttempts: 3}).Run(ctx)

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, res.Message, context.Canceled.Error())
	assert.Equal(t, 1, r.scraper.calls)
	assert.Empty(t, r.snapshots.names)
}

func TestRun_DefaultsApply(t *testing.T) {
	r := newRig()
	r.submitter.errors = []string{"error", "error", "error", "error"}

	res := r.orchestrator(Config{}).Run(context.Background())

	require.Equal(t, StatusError, res.Status)
	assert.Equal(t, 3, r.submitter.submits)
	assert.Equal(t, 5*time.Second, r.submitter.windows[0])
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "retryableFailure", OutcomeRetryableFailure.String())
	assert.Equal(t, "fatalFailure", OutcomeFatalFailure.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
