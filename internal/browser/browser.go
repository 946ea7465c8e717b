package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/v0xg/formfill/internal/form"
)

const (
	DriverRod      = "rod"
	DriverChromedp = "chromedp"
)

// ErrNoPage is returned when connecting to a browser that has no open tab
// and no URL was given.
var ErrNoPage = errors.New("browser has no open page")

// Options configures how the browser is launched or attached
type Options struct {
	Driver     string
	Headless   bool
	Width      int
	Height     int
	ProfileDir string // Chrome/Chromium profile for authenticated sessions
	Bin        string
	ConnectURL string // DevTools websocket of a running browser

	NavigationTimeout time.Duration
	IdleTimeout       time.Duration
	ReadyTimeout      time.Duration
	EvalTimeout       time.Duration // bound on every single script call
}

func (o Options) withDefaults() Options {
	if o.Driver == "" {
		o.Driver = DriverRod
	}
	if o.Width <= 0 {
		o.Width = 1280
	}
	if o.Height <= 0 {
		o.Height = 800
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 30 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 5 * time.Second
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 10 * time.Second
	}
	if o.EvalTimeout <= 0 {
		o.EvalTimeout = 15 * time.Second
	}
	return o
}

// Session is one controlled tab
type Session interface {
	form.Evaluator
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Open launches (or attaches to) a browser and returns a session on the
// form page. With ConnectURL set and url empty, the first open tab is used
// as is; otherwise url is loaded and the page is given time to render.
func Open(ctx context.Context, url string, opts Options, logger *zap.Logger) (Session, error) {
	opts = opts.withDefaults()
	if url == "" && opts.ConnectURL == "" {
		return nil, errors.New("a URL is required unless connecting to a running browser")
	}
	logger = logger.Named("browser")

	var (
		s   Session
		err error
	)
	switch opts.Driver {
	case DriverRod:
		s, err = openRod(ctx, opts, logger)
	case DriverChromedp:
		s, err = openChromedp(ctx, opts, logger)
	default:
		return nil, fmt.Errorf("unknown browser driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	if url != "" {
		if err := s.Navigate(ctx, url); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	if err := waitReady(ctx, s, opts.ReadyTimeout, logger); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

const visibleControlsJS = `() => {
	let visible = 0;
	document.querySelectorAll('input:not([type="hidden"]), select, textarea, [role="combobox"], button, [role="button"]').forEach(el => {
		if (el.getClientRects().length > 0) visible++;
	});
	return visible;
}`

const frameworkJS = `() => {
	if (window.__REACT_DEVTOOLS_GLOBAL_HOOK__ || document.querySelector('[data-reactroot]') || document.querySelector('#__next')) return 'react';
	if (window.__VUE__ || document.querySelector('[data-v-app]')) return 'vue';
	if (window.ng || document.querySelector('[ng-version]') || document.querySelector('app-root')) return 'angular';
	if (document.querySelector('[class*="svelte-"]')) return 'svelte';
	return '';
}`

const (
	readyPoll   = 200 * time.Millisecond
	readySettle = 300 * time.Millisecond
)

// waitReady polls until visible form controls appear, then lets client-side
// rendering settle. Giving up after timeout is not an error: the scraper
// reports an empty form on its own.
func waitReady(ctx context.Context, page form.Evaluator, timeout time.Duration, logger *zap.Logger) error {
	var framework string
	if err := page.Evaluate(ctx, frameworkJS, &framework); err == nil && framework != "" {
		logger.Debug("Detected client-side framework", zap.String("framework", framework))
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(readyPoll)
	defer ticker.Stop()

	for {
		var count int
		if err := page.Evaluate(ctx, visibleControlsJS, &count); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Debug("Readiness probe failed", zap.Error(err))
		}
		if count > 0 {
			return sleep(ctx, readySettle)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			logger.Warn("No visible form controls before timeout", zap.Duration("timeout", timeout))
			return nil
		case <-ticker.C:
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// callExpression turns a function expression and its arguments into a
// single self-invoking expression.
func callExpression(script string, args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encoding script arguments: %w", err)
	}
	return "(" + strings.TrimSpace(script) + ").apply(null, " + string(encoded) + ")", nil
}

// decodeResult unmarshals a raw JSON page value. Undefined and null leave
// result untouched.
func decodeResult(raw []byte, result any) error {
	if result == nil {
		return nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" || trimmed == "undefined" {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("decoding page result: %w", err)
	}
	return nil
}

// withCaller returns a context derived from base that is also cancelled
// when caller is. Values come from base.
func withCaller(base, caller context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(base)
	if deadline, ok := caller.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithDeadline(ctx, deadline)
		prev := cancel
		cancel = func() { cancelDeadline(); prev() }
	}
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
