package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/v0xg/formfill/internal/ai"
	"github.com/v0xg/formfill/internal/browser"
	"github.com/v0xg/formfill/internal/capture"
	"github.com/v0xg/formfill/internal/config"
	"github.com/v0xg/formfill/internal/form"
	"github.com/v0xg/formfill/internal/observability"
	"github.com/v0xg/formfill/internal/orchestrator"
	"github.com/v0xg/formfill/internal/store"
)

// Delay between timeline frames, in 100ths of a second
const timelineFrameDelay = 150

var (
	headful bool
	jsonOut bool
)

func newFillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fill [url]",
		Short: "Fill and submit the form on a page",
		Long: `Fill opens url (or, with --connect, the current tab of a running browser),
fills every visible field with generated data and submits the form. When
the page shows a validation error the form is filled again, up to
--attempts times.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runFill,
	}

	flags := cmd.Flags()
	flags.String("provider", "", "AI provider: gemini, claude, openai (default gemini)")
	flags.String("model", "", "Specific model override")
	flags.String("driver", "", "Browser driver: rod, chromedp (default rod)")
	flags.String("connect", "", "DevTools websocket URL of a running browser")
	flags.String("profile", "", "Chrome/Chromium profile directory for authenticated sessions (close browser first)")
	flags.Int("attempts", 0, "Maximum fill attempts (default 3)")
	flags.String("capture-dir", "", "Save a screenshot of every failed attempt here")
	flags.BoolVar(&headful, "headful", false, "Show the browser window")
	flags.BoolVar(&jsonOut, "json", false, "Print the result as JSON")

	for flag, key := range map[string]string{
		"provider":    "llm.provider",
		"model":       "llm.model",
		"driver":      "browser.driver",
		"connect":     "browser.connect_url",
		"profile":     "browser.profile_dir",
		"attempts":    "fill.max_attempts",
		"capture-dir": "capture.dir",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}

func runFill(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	var url string
	if len(args) > 0 {
		url = args[0]
	}
	if headful {
		cfg.Browser.Headless = false
	}

	fail := func(err error) error {
		printResult(cmd.OutOrStdout(), orchestrator.Result{Status: orchestrator.StatusError, Message: err.Error()})
		return errFillFailed
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fail(err)
	}
	requester, err := newRequester(cfg.LLM, st, cfg.Store.RecordExchange, logger)
	if err != nil {
		return fail(err)
	}

	logger.Info("Opening form", zap.String("url", url), zap.String("driver", cfg.Browser.Driver))
	session, err := browser.Open(ctx, url, browserOptions(cfg.Browser), logger)
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("Closing browser failed", zap.Error(err))
		}
	}()

	timing := form.Timing{
		WidgetTimeout: cfg.Fill.WidgetTimeout,
		SettleDelay:   cfg.Fill.SettleDelay,
		PollInterval:  cfg.Fill.PollInterval,
	}
	components := orchestrator.Components{
		Scraper:   form.NewScraper(session, timing, logger),
		Requester: requester,
		Writer:    form.NewWriter(session, timing, logger),
		Submitter: form.NewSubmitter(session, timing, logger),
	}

	var snaps *capture.Snapshotter
	if cfg.Capture.Dir != "" {
		snaps, err = capture.New(session, capture.Options{Dir: cfg.Capture.Dir, MaxWidth: uint(cfg.Capture.MaxWidth)}, logger)
		if err != nil {
			return fail(err)
		}
		components.Snapshots = snaps
	}

	result := orchestrator.New(orchestrator.Config{
		MaxAttempts:   cfg.Fill.MaxAttempts,
		ObserveWindow: cfg.Fill.ObserveWindow,
	}, components, logger).Run(ctx)

	if snaps != nil && cfg.Capture.Timeline && snaps.Frames() > 0 {
		path, size, err := snaps.WriteTimeline(result.RunID, timelineFrameDelay)
		if err != nil {
			logger.Warn("Writing timeline failed", zap.Error(err))
		} else {
			logger.Info("Saved failure timeline", zap.String("path", path), zap.Int64("bytes", size))
		}
	}

	printResult(cmd.OutOrStdout(), result)
	if !result.OK() {
		return errFillFailed
	}
	return nil
}

func newRequester(llm config.LLMConfig, st *store.Store, record bool, logger *zap.Logger) (ai.Requester, error) {
	opts := ai.Options{
		Provider:    llm.Provider,
		Model:       llm.Model,
		BaseURL:     llm.Endpoint,
		Timeout:     llm.Timeout,
		MaxTokens:   llm.MaxTokens,
		Temperature: llm.Temperature,
		Credentials: ai.ChainCredentials(ai.StaticCredential(llm.APIKey), ai.EnvCredentials(), st),
	}
	if record {
		opts.Recorder = st
	}
	return ai.NewProvider(opts, logger)
}

func browserOptions(b config.BrowserConfig) browser.Options {
	return browser.Options{
		Driver:            b.Driver,
		Headless:          b.Headless,
		Width:             b.Width,
		Height:            b.Height,
		ProfileDir:        b.ProfileDir,
		Bin:               b.Bin,
		ConnectURL:        b.ConnectURL,
		NavigationTimeout: b.NavigationTimeout,
		IdleTimeout:       b.IdleTimeout,
		ReadyTimeout:      b.ReadyTimeout,
		EvalTimeout:       b.EvalTimeout,
	}
}

func printResult(w io.Writer, result orchestrator.Result) {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}
	if result.OK() {
		fmt.Fprintf(w, "✓ %s\n", result.Message)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", result.Message)
}
