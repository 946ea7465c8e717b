package form

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// errorWatch is a bounded subscription to the page's mutation stream.
// The page buffers inserted text under token; the watch drains it.
type errorWatch struct {
	page     Evaluator
	token    string
	interval time.Duration
	logger   *zap.Logger
}

func startWatch(ctx context.Context, page Evaluator, token string, interval time.Duration, logger *zap.Logger) (*errorWatch, error) {
	if err := page.Evaluate(ctx, watchStartJS, nil, token); err != nil {
		return nil, err
	}
	return &errorWatch{page: page, token: token, interval: interval, logger: logger}, nil
}

// wait collects inserted text until an error-looking node shows up or window
// elapses, then unsubscribes. The window ending is never an error; only ctx
// being done is.
func (w *errorWatch) wait(ctx context.Context, window time.Duration) (string, error) {
	windowCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.stop(context.WithoutCancel(ctx))
			return "", ctx.Err()
		case <-windowCtx.Done():
			if ctx.Err() != nil {
				w.stop(context.WithoutCancel(ctx))
				return "", ctx.Err()
			}
			return w.stop(ctx), nil
		case <-ticker.C:
			if text, ok := w.drain(windowCtx); ok {
				w.stop(ctx)
				return text, nil
			}
		}
	}
}

func (w *errorWatch) drain(ctx context.Context) (string, bool) {
	var texts []string
	if err := w.page.Evaluate(ctx, watchDrainJS, &texts, w.token); err != nil {
		// The page may have navigated away after submit.
		w.logger.Debug("Error watch drain failed", zap.Error(err))
		return "", false
	}
	return firstErrorText(texts)
}

// stop disconnects the observer and scans what was still buffered
func (w *errorWatch) stop(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	var texts []string
	if err := w.page.Evaluate(ctx, watchStopJS, &texts, w.token); err != nil {
		w.logger.Debug("Error watch stop failed", zap.Error(err))
		return ""
	}
	text, _ := firstErrorText(texts)
	return text
}

func firstErrorText(texts []string) (string, bool) {
	for _, t := range texts {
		if text, ok := errorText(t); ok {
			return text, true
		}
	}
	return "", false
}
