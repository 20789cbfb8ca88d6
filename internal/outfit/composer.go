package outfit

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nfnt/resize"
)

const (
	// gridThreshold is the item count above which the layout switches from
	// a single outfit column to a two-column grid.
	gridThreshold = 4

	minCanvasSide = 64
	maxCanvasSide = 4096
)

// Options controls how an outfit image is composed
type Options struct {
	Width      int
	Height     int
	Background string // hex color, e.g. "#f5f5f5"
	Gradient   bool   // fade the background towards white at the bottom
	Margin     int    // pixels around each garment cell
}

// DefaultOptions returns the options used when a request leaves them unset
func DefaultOptions() Options {
	return Options{
		Width:      768,
		Height:     1024,
		Background: "#f5f5f5",
		Margin:     16,
	}
}

// Composer lays out garment cutouts on a shared canvas to produce a single
// outfit image.
type Composer struct{}

func NewComposer() *Composer {
	return &Composer{}
}

// Compose renders the given garment cutouts into one PNG using the options.
// Items are placed top to bottom in wear order (the order given), one column
// for up to four garments and a two-column grid beyond that.
func (c *Composer) Compose(cutouts [][]byte, opts Options) ([]byte, error) {
	start := time.Now()

	if len(cutouts) == 0 {
		return nil, fmt.Errorf("at least one garment image is required")
	}
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	bg, err := parseHexColor(opts.Background)
	if err != nil {
		return nil, err
	}

	garments := make([]image.Image, 0, len(cutouts))
	for i, data := range cutouts {
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode garment %d: %w", i, err)
		}
		garments = append(garments, img)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	if opts.Gradient {
		fillVerticalGradient(canvas, bg, color.RGBA{255, 255, 255, 255})
	} else {
		draw.Draw(canvas, canvas.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)
	}

	cols := 1
	if len(garments) > gridThreshold {
		cols = 2
	}
	rows := (len(garments) + cols - 1) / cols

	cellW := opts.Width / cols
	cellH := opts.Height / rows

	for i, garment := range garments {
		col := i % cols
		row := i / cols
		cell := image.Rect(col*cellW, row*cellH, (col+1)*cellW, (row+1)*cellH)
		drawGarmentInCell(canvas, garment, cell, opts.Margin)
	}

	var buf bytes.Buffer
	buf.Grow(opts.Width * opts.Height)
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode outfit PNG: %w", err)
	}

	slog.Info("outfit composed",
		"garment_count", len(garments),
		"width", opts.Width,
		"height", opts.Height,
		"columns", cols,
		"duration_ms", time.Since(start).Milliseconds(),
		"output_size_bytes", buf.Len())

	return buf.Bytes(), nil
}

// drawGarmentInCell scales the garment to fit the cell minus margins and
// alpha-composites it centered in the cell.
func drawGarmentInCell(canvas *image.RGBA, garment image.Image, cell image.Rectangle, margin int) {
	inner := cell.Inset(margin)
	if inner.Dx() <= 0 || inner.Dy() <= 0 {
		inner = cell
	}

	scaled := resize.Thumbnail(uint(inner.Dx()), uint(inner.Dy()), garment, resize.Lanczos3)

	sb := scaled.Bounds()
	offsetX := inner.Min.X + (inner.Dx()-sb.Dx())/2
	offsetY := inner.Min.Y + (inner.Dy()-sb.Dy())/2
	target := image.Rect(offsetX, offsetY, offsetX+sb.Dx(), offsetY+sb.Dy())

	draw.Draw(canvas, target, scaled, sb.Min, draw.Over)
}

// fillVerticalGradient fills the canvas with a top-to-bottom linear blend
func fillVerticalGradient(canvas *image.RGBA, top, bottom color.RGBA) {
	bounds := canvas.Bounds()
	h := bounds.Dy()
	for y := 0; y < h; y++ {
		t := float64(y) / float64(h-1)
		line := color.RGBA{
			R: lerp8(top.R, bottom.R, t),
			G: lerp8(top.G, bottom.G, t),
			B: lerp8(top.B, bottom.B, t),
			A: 255,
		}
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			canvas.SetRGBA(x, y, line)
		}
	}
}

func lerp8(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1.0-t) + float64(b)*t + 0.5)
}

func validateOptions(opts Options) error {
	if opts.Width < minCanvasSide || opts.Width > maxCanvasSide {
		return fmt.Errorf("width must be in [%d,%d], got %d", minCanvasSide, maxCanvasSide, opts.Width)
	}
	if opts.Height < minCanvasSide || opts.Height > maxCanvasSide {
		return fmt.Errorf("height must be in [%d,%d], got %d", minCanvasSide, maxCanvasSide, opts.Height)
	}
	if opts.Margin < 0 {
		return fmt.Errorf("margin must be non-negative, got %d", opts.Margin)
	}
	return nil
}

// parseHexColor parses "#rgb" and "#rrggbb" color strings
func parseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	case 6:
	default:
		return color.RGBA{}, fmt.Errorf("invalid background color %q", s)
	}

	val, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid background color %q: %w", s, err)
	}
	return color.RGBA{
		R: uint8(val >> 16),
		G: uint8(val >> 8),
		B: uint8(val),
		A: 255,
	}, nil
}
