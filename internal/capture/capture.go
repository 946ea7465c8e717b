package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/mitchellh/go-homedir"
	"github.com/nfnt/resize"
	"go.uber.org/zap"
)

// DefaultMaxWidth bounds saved snapshots
const DefaultMaxWidth = 800

// Screenshotter returns a PNG of the current viewport
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Options configures snapshot output
type Options struct {
	Dir      string
	MaxWidth uint
}

// Snapshotter saves downscaled page pictures after failed attempts and keeps
// them so the whole run can be written out as one animation.
type Snapshotter struct {
	page   Screenshotter
	dir    string
	width  uint
	logger *zap.Logger

	mu     sync.Mutex
	frames []image.Image
}

// New creates a snapshotter writing into opts.Dir
func New(page Screenshotter, opts Options, logger *zap.Logger) (*Snapshotter, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("snapshot directory is required")
	}
	dir, err := homedir.Expand(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("expand snapshot dir: %w", err)
	}
	if opts.MaxWidth == 0 {
		opts.MaxWidth = DefaultMaxWidth
	}
	return &Snapshotter{
		page:   page,
		dir:    dir,
		width:  opts.MaxWidth,
		logger: logger.Named("capture"),
	}, nil
}

// Snapshot writes <dir>/<name>.png and returns its path
func (s *Snapshotter) Snapshot(ctx context.Context, name string) (string, error) {
	data, err := s.page.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("take screenshot: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode screenshot: %w", err)
	}
	img = fit(img, s.width)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(s.dir, name+".png")
	if err := writePNG(path, img); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.frames = append(s.frames, img)
	s.mu.Unlock()

	s.logger.Debug("Saved snapshot", zap.String("path", path), zap.Int("width", img.Bounds().Dx()))
	return path, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	return nil
}

// Frames returns how many snapshots were taken
func (s *Snapshotter) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// WriteTimeline writes every snapshot so far as one animated GIF at
// <dir>/<name>.gif. It returns "" when there is nothing to write.
func (s *Snapshotter) WriteTimeline(name string, frameDelay int) (string, int64, error) {
	s.mu.Lock()
	frames := append([]image.Image(nil), s.frames...)
	s.mu.Unlock()

	if len(frames) == 0 {
		return "", 0, nil
	}
	path := filepath.Join(s.dir, name+".gif")
	size, err := writeGIF(frames, path, frameDelay, s.width)
	if err != nil {
		return "", 0, err
	}
	return path, size, nil
}

// fit shrinks img to maxWidth keeping the aspect ratio. Narrower images are
// returned unchanged.
func fit(img image.Image, maxWidth uint) image.Image {
	if maxWidth == 0 || uint(img.Bounds().Dx()) <= maxWidth {
		return img
	}
	return resize.Resize(maxWidth, 0, img, resize.Lanczos3)
}
