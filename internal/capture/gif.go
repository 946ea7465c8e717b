package capture

import (
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"os"
	"sort"

	"github.com/nfnt/resize"
)

// writeGIF encodes frames as a looping GIF. Frames are scaled to the size of
// the first one; delay is in 100ths of a second.
func writeGIF(frames []image.Image, outputPath string, delay int, maxWidth uint) (int64, error) {
	if delay <= 0 {
		delay = 150
	}

	first := fit(frames[0], maxWidth)
	bounds := first.Bounds()
	width, height := uint(bounds.Dx()), uint(bounds.Dy())

	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(frames)),
		Delay:     make([]int, len(frames)),
		LoopCount: 0,
	}
	palette := generatePalette(first)

	for i, frame := range frames {
		if b := frame.Bounds(); uint(b.Dx()) != width || uint(b.Dy()) != height {
			frame = resize.Resize(width, height, frame, resize.Lanczos3)
		}
		paletted := image.NewPaletted(image.Rect(0, 0, int(width), int(height)), palette)
		draw.FloydSteinberg.Draw(paletted, paletted.Bounds(), frame, frame.Bounds().Min)
		g.Image[i] = paletted
		g.Delay[i] = delay
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return 0, err
	}
	if err := gif.EncodeAll(f, g); err != nil {
		_ = f.Close()
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// generatePalette picks the 255 most frequent sampled colors plus transparency
func generatePalette(img image.Image) color.Palette {
	bounds := img.Bounds()
	counts := make(map[color.RGBA]int)

	const step = 4
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, a := img.At(x, y).RGBA()
			counts[color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: uint8(a >> 8)}]++
		}
	}

	colors := make([]color.RGBA, 0, len(counts))
	for c := range counts {
		colors = append(colors, c)
	}
	sort.Slice(colors, func(i, j int) bool {
		if counts[colors[i]] != counts[colors[j]] {
			return counts[colors[i]] > counts[colors[j]]
		}
		// stable order between equally frequent colors
		ci, cj := colors[i], colors[j]
		return uint32(ci.R)<<24|uint32(ci.G)<<16|uint32(ci.B)<<8|uint32(ci.A) <
			uint32(cj.R)<<24|uint32(cj.G)<<16|uint32(cj.B)<<8|uint32(cj.A)
	})

	palette := make(color.Palette, 0, 256)
	palette = append(palette, color.RGBA{0, 0, 0, 0})
	for _, c := range colors {
		if len(palette) == 256 {
			break
		}
		palette = append(palette, c)
	}
	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{gray, gray, gray, 255})
	}
	return palette
}
