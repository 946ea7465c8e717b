package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// chromedpSession drives a tab through chromedp. All work runs on tab, a
// context that carries the chromedp target.
type chromedpSession struct {
	tab      context.Context
	cancels  []context.CancelFunc // innermost first
	launched bool
	attached bool // reusing a tab the user opened
	opts     Options
	logger   *zap.Logger
}

func openChromedp(ctx context.Context, opts Options, logger *zap.Logger) (*chromedpSession, error) {
	s := &chromedpSession{opts: opts, logger: logger}

	if opts.ConnectURL == "" {
		allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", opts.Headless),
			chromedp.WindowSize(opts.Width, opts.Height),
		)
		if opts.Bin != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(opts.Bin))
		}
		if opts.ProfileDir != "" {
			allocOpts = append(allocOpts, chromedp.UserDataDir(opts.ProfileDir))
		}
		allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
		tab, cancelTab := chromedp.NewContext(allocCtx)
		s.tab, s.cancels, s.launched = tab, []context.CancelFunc{cancelTab, cancelAlloc}, true

		if err := s.run(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("launching browser: %w", err)
		}
		s.dismissDialogs()
		logger.Debug("Launched browser", zap.Bool("headless", opts.Headless))
		return s, nil
	}

	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(context.Background(), opts.ConnectURL)
	probe, cancelProbe := chromedp.NewContext(allocCtx)
	s.cancels = []context.CancelFunc{cancelProbe, cancelAlloc}

	targets, err := chromedp.Targets(probe)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	var tabOpts []chromedp.ContextOption
	for _, t := range targets {
		if t.Type == "page" {
			tabOpts = append(tabOpts, chromedp.WithTargetID(t.TargetID))
			s.attached = true
			break
		}
	}
	if !s.attached {
		_ = s.Close()
		return nil, ErrNoPage
	}

	tab, cancelTab := chromedp.NewContext(probe, tabOpts...)
	s.tab = tab
	s.cancels = append([]context.CancelFunc{cancelTab}, s.cancels...)
	if err := s.run(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("attaching to page: %w", err)
	}
	s.dismissDialogs()
	return s, nil
}

// dismissDialogs accepts alert, confirm and beforeunload dialogs as they
// open. A pending dialog blocks every script call on the page.
func (s *chromedpSession) dismissDialogs() {
	chromedp.ListenTarget(s.tab, func(ev any) {
		e, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok {
			return
		}
		s.logger.Warn("Dismissing page dialog", zap.String("type", string(e.Type)), zap.String("message", e.Message))
		go func() {
			if err := chromedp.Run(s.tab, page.HandleJavaScriptDialog(true)); err != nil && s.tab.Err() == nil {
				s.logger.Debug("Handling dialog failed", zap.Error(err))
			}
		}()
	})
}

// run executes actions on the tab, bounded by the caller's context
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := withCaller(s.tab, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.opts.NavigationTimeout)
	defer cancel()

	if err := s.run(navCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("navigating to %s: %w", url, err)
	}

	s.logger.Info("Page loaded", zap.String("url", url))
	return nil
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func (s *chromedpSession) Evaluate(ctx context.Context, script string, result any, args ...any) error {
	expr, err := callExpression(script, args)
	if err != nil {
		return err
	}
	evalCtx, cancel := context.WithTimeout(ctx, s.opts.EvalTimeout)
	defer cancel()

	var raw []byte
	if err := s.run(evalCtx, chromedp.Evaluate(expr, &raw, awaitPromise)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("evaluating script: %w", err)
	}
	return decodeResult(raw, result)
}

func (s *chromedpSession) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return buf, nil
}

// Close shuts down a launched browser or a tab this session opened.
// Cancelling an attached tab's context would close the user's tab, so an
// attached session is simply abandoned.
func (s *chromedpSession) Close() error {
	if s.attached && s.tab != nil {
		return nil
	}
	var err error
	if s.launched && s.tab != nil {
		err = chromedp.Cancel(s.tab)
	}
	for _, cancel := range s.cancels {
		cancel()
	}
	return err
}
