package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// rodSession drives a tab through go-rod
type rodSession struct {
	browser     *rod.Browser
	page        *rod.Page
	launcher    *launcher.Launcher // nil when attached to a running browser
	conn        *cdp.WebSocket
	stopDialogs context.CancelFunc
	opts        Options
	logger      *zap.Logger
}

func openRod(ctx context.Context, opts Options, logger *zap.Logger) (*rodSession, error) {
	s := &rodSession{opts: opts, logger: logger}

	controlURL := opts.ConnectURL
	if controlURL != "" {
		u, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", controlURL, err)
		}
		controlURL = u
	} else {
		bin := opts.Bin
		if bin == "" {
			bin, _ = launcher.LookPath()
		}
		l := launcher.New().Bin(bin).Headless(opts.Headless).Context(ctx)
		if opts.ProfileDir != "" {
			l = l.UserDataDir(opts.ProfileDir)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launching browser: %w", err)
		}
		s.launcher = l
		controlURL = u
		logger.Debug("Launched browser", zap.String("bin", bin), zap.Bool("headless", opts.Headless))
	}

	// Own the websocket so an attached session can drop it without
	// closing the user's browser.
	s.conn = &cdp.WebSocket{}
	if err := s.conn.Connect(ctx, controlURL, nil); err != nil {
		s.cleanupLauncher()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	s.browser = rod.New().Client(cdp.New().Start(s.conn))
	if err := s.browser.Connect(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	page, err := s.initialPage()
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.page = page
	s.dismissDialogs()
	return s, nil
}

// dismissDialogs accepts alert, confirm and beforeunload dialogs as they
// open. A pending dialog blocks every script call on the page.
func (s *rodSession) dismissDialogs() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopDialogs = cancel
	page := s.page.Context(ctx)
	wait := page.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		s.logger.Warn("Dismissing page dialog", zap.String("type", string(e.Type)), zap.String("message", e.Message))
		go func() {
			if err := (proto.PageHandleJavaScriptDialog{Accept: true}).Call(page); err != nil && ctx.Err() == nil {
				s.logger.Debug("Handling dialog failed", zap.Error(err))
			}
		}()
	})
	go wait()
}

// initialPage opens a fresh tab when launching and reuses the first tab
// when attached.
func (s *rodSession) initialPage() (*rod.Page, error) {
	if s.launcher == nil {
		pages, err := s.browser.Pages()
		if err != nil {
			return nil, fmt.Errorf("listing pages: %w", err)
		}
		if page := pages.First(); page != nil {
			return page, nil
		}
		return nil, ErrNoPage
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.opts.Width,
		Height:            s.opts.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("setting viewport: %w", err)
	}
	return page, nil
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	page := s.page.Context(ctx).Timeout(s.opts.NavigationTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for %s to load: %w", url, err)
	}

	// Persistent connections (websockets, polling) never go idle
	s.page.Context(ctx).Timeout(s.opts.IdleTimeout).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.Info("Page loaded", zap.String("url", url))
	return nil
}

func (s *rodSession) Evaluate(ctx context.Context, script string, result any, args ...any) error {
	evalCtx, cancel := context.WithTimeout(ctx, s.opts.EvalTimeout)
	defer cancel()

	res, err := s.page.Context(evalCtx).Evaluate(rod.Eval(script, args...).ByPromise())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("evaluating script: %w", err)
	}
	if result == nil {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("reading script result: %w", err)
	}
	return decodeResult(raw, result)
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("capturing screenshot: %w", err)
	}
	return data, nil
}

// Close releases what this session created. An attached browser and its
// tabs are left running; only the connection to them is dropped.
func (s *rodSession) Close() error {
	if s.stopDialogs != nil {
		s.stopDialogs()
	}
	if s.launcher == nil {
		if s.conn == nil {
			return nil
		}
		return s.conn.Close()
	}
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	s.cleanupLauncher()
	_ = s.conn.Close()
	return err
}

func (s *rodSession) cleanupLauncher() {
	if s.launcher == nil {
		return
	}
	s.launcher.Kill()
	if s.opts.ProfileDir == "" {
		s.launcher.Cleanup()
	}
}
