package browser

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	// A closed browser's connection reader and launch guard exit with the
	// browser process, not with Close.
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("github.com/go-rod/rod/lib/cdp.(*Client).consumeMessages"),
		goleak.IgnoreAnyFunction("github.com/ysmood/leakless.(*Launcher).serve.func1"),
	)
}

// readyPage reports zero visible controls until ready polls have passed
type readyPage struct {
	ready  int32
	polls  atomic.Int32
	failOn error
}

func (p *readyPage) Evaluate(ctx context.Context, script string, result any, _ ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch script {
	case frameworkJS:
		return json.Unmarshal([]byte(`"react"`), result)
	case visibleControlsJS:
		if p.failOn != nil {
			return p.failOn
		}
		n := p.polls.Add(1)
		count := 0
		if n > p.ready {
			count = 3
		}
		*(result.(*int)) = count
		return nil
	}
	return errors.New("unexpected script")
}

func TestCallExpression(t *testing.T) {
	expr, err := callExpression("(name, index) => name + index", []any{"country", 2})
	require.NoError(t, err)
	assert.Equal(t, `((name, index) => name + index).apply(null, ["country",2])`, expr)

	expr, err = callExpression("  () => 1\n", nil)
	require.NoError(t, err)
	assert.Equal(t, `(() => 1).apply(null, [])`, expr)

	_, err = callExpression("() => 1", []any{make(chan int)})
	assert.Error(t, err)
}

func TestDecodeResult(t *testing.T) {
	var n int
	require.NoError(t, decodeResult([]byte("42"), &n))
	assert.Equal(t, 42, n)

	names := []string{"keep"}
	for _, raw := range []string{"", "null", "undefined", "  "} {
		require.NoError(t, decodeResult([]byte(raw), &names), raw)
	}
	assert.Equal(t, []string{"keep"}, names, "absent values leave the target untouched")

	require.NoError(t, decodeResult([]byte(`{"a":1}`), nil))
	assert.Error(t, decodeResult([]byte(`{"a":`), &n))
}

func TestWaitReady_ReturnsOnceControlsAppear(t *testing.T) {
	page := &readyPage{ready: 2}
	start := time.Now()

	err := waitReady(context.Background(), page, 5*time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.polls.Load())
	assert.GreaterOrEqual(t, time.Since(start), 2*readyPoll+readySettle)
}

func TestWaitReady_TimeoutIsNotAnError(t *testing.T) {
	page := &readyPage{ready: 1000}

	err := waitReady(context.Background(), page, 500*time.Millisecond, zaptest.NewLogger(t))
	assert.NoError(t, err)
	assert.Less(t, page.polls.Load(), int32(10))
}

func TestWaitReady_ProbeErrorsKeepPolling(t *testing.T) {
	page := &readyPage{failOn: errors.New("execution context was destroyed")}

	err := waitReady(context.Background(), page, 300*time.Millisecond, zaptest.NewLogger(t))
	assert.NoError(t, err)
}

func TestWaitReady_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(250*time.Millisecond, cancel)

	err := waitReady(ctx, &readyPage{ready: 1000}, 5*time.Second, zaptest.NewLogger(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen_RejectsBadInput(t *testing.T) {
	_, err := Open(context.Background(), "", Options{}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "URL is required")

	_, err = Open(context.Background(), "https://example.com", Options{Driver: "selenium"}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, `unknown browser driver "selenium"`)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{Width: 640}.withDefaults()
	assert.Equal(t, DriverRod, o.Driver)
	assert.Equal(t, 640, o.Width)
	assert.Equal(t, 800, o.Height)
	assert.Equal(t, 30*time.Second, o.NavigationTimeout)
	assert.Equal(t, 5*time.Second, o.IdleTimeout)
	assert.Equal(t, 10*time.Second, o.ReadyTimeout)
	assert.Equal(t, 15*time.Second, o.EvalTimeout)
}

func TestWithCaller(t *testing.T) {
	type key struct{}
	base := context.WithValue(context.Background(), key{}, "tab")
	caller, cancelCaller := context.WithCancel(context.Background())

	ctx, cancel := withCaller(base, caller)
	defer cancel()
	assert.Equal(t, "tab", ctx.Value(key{}))
	assert.NoError(t, ctx.Err())

	cancelCaller()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("caller cancellation did not propagate")
	}

	deadlineCaller, cancelDeadline := context.WithTimeout(context.Background(), time.Minute)
	defer cancelDeadline()
	ctx2, cancel2 := withCaller(base, deadlineCaller)
	defer cancel2()
	want, _ := deadlineCaller.Deadline()
	got, ok := ctx2.Deadline()
	require.True(t, ok)
	assert.Equal(t, want, got)
}
