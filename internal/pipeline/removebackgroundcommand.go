package pipeline

import (
	"fmt"
	"image"
	"log/slog"
)

// RemoveBackgroundParams represents typed parameters for background removal
type RemoveBackgroundParams struct {
	// Tolerance is the maximum RGB color distance from the sampled
	// background color for a pixel to count as background (0-255).
	Tolerance int
	// Feather is the radius in pixels over which the resulting alpha mask
	// edge is softened.
	Feather int
}

// NewRemoveBackgroundParamsFromMap creates RemoveBackgroundParams from a generic map
func NewRemoveBackgroundParamsFromMap(params map[string]any) (*RemoveBackgroundParams, error) {
	tolerance := GetIntParam(params, "tolerance", 24)
	if tolerance < 0 || tolerance > 255 {
		return nil, fmt.Errorf("tolerance must be in [0,255], got %d", tolerance)
	}
	feather := GetIntParam(params, "feather", 2)
	if feather < 0 {
		return nil, fmt.Errorf("feather must be non-negative, got %d", feather)
	}
	return &RemoveBackgroundParams{
		Tolerance: tolerance,
		Feather:   feather,
	}, nil
}

// RemoveBackgroundCommand separates the garment subject from the photo
// background. The background color is estimated from border pixels and all
// border-connected regions within the tolerance are flood-filled and turned
// transparent. Images that already carry a meaningful alpha channel pass
// through unchanged.
type RemoveBackgroundCommand struct {
	name   string
	params *RemoveBackgroundParams
}

// NewRemoveBackgroundCommand creates a new background removal command from configuration parameters
func NewRemoveBackgroundCommand(params map[string]any) (Command, error) {
	typedParams, err := NewRemoveBackgroundParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &RemoveBackgroundCommand{
		name:   "RemoveBackgroundCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *RemoveBackgroundCommand) Name() string {
	return c.name
}

// Execute removes the border-connected background and writes the result as PNG with alpha
func (c *RemoveBackgroundCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := decodePNG(imageData)
	if err != nil {
		slog.Error("RemoveBackgroundCommand: failed to decode PNG image", "error", err)
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}

	src := toNRGBA(img)
	if hasUsefulAlpha(src) {
		slog.Debug("RemoveBackgroundCommand: image already has alpha; skipping")
		return imageData, nil
	}

	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w < 3 || h < 3 {
		return nil, fmt.Errorf("image too small for background removal: %dx%d", w, h)
	}

	bg := sampleBorderColor(src)
	slog.Debug("RemoveBackgroundCommand: background estimated",
		"r", bg[0], "g", bg[1], "b", bg[2],
		"tolerance", c.params.Tolerance)

	mask := floodFillBackground(src, bg, c.params.Tolerance)
	if c.params.Feather > 0 {
		mask = boxBlurMask(mask, w, h, c.params.Feather)
	}

	for i, m := range mask {
		src.Pix[i*4+3] = 255 - m
	}

	out, err := encodePNG(src)
	if err != nil {
		slog.Error("RemoveBackgroundCommand: failed to encode result", "error", err)
		return nil, fmt.Errorf("failed to encode PNG image: %w", err)
	}

	slog.Debug("RemoveBackgroundCommand: complete",
		"output_size_bytes", len(out))

	return out, nil
}

// GetParams returns the typed parameters
func (c *RemoveBackgroundCommand) GetParams() *RemoveBackgroundParams {
	return c.params
}

// sampleBorderColor averages the outermost one-pixel frame of the image.
// Clothing product shots have near-uniform backgrounds, so the border mean
// is a robust estimate.
func sampleBorderColor(img *image.NRGBA) [3]int {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	var sumR, sumG, sumB, n int

	add := func(x, y int) {
		i := y*img.Stride + x*4
		sumR += int(img.Pix[i])
		sumG += int(img.Pix[i+1])
		sumB += int(img.Pix[i+2])
		n++
	}

	for x := 0; x < w; x++ {
		add(x, 0)
		add(x, h-1)
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		add(w-1, y)
	}

	return [3]int{sumR / n, sumG / n, sumB / n}
}

// colorDistance is the Chebyshev distance between a pixel and the reference
// color, cheap and adequate for near-uniform backgrounds.
func colorDistance(img *image.NRGBA, x, y int, ref [3]int) int {
	i := y*img.Stride + x*4
	d := absInt(int(img.Pix[i]) - ref[0])
	if g := absInt(int(img.Pix[i+1]) - ref[1]); g > d {
		d = g
	}
	if b := absInt(int(img.Pix[i+2]) - ref[2]); b > d {
		d = b
	}
	return d
}

// floodFillBackground marks every border-connected pixel within tolerance of
// the background color. Returns a per-pixel mask where 255 means background.
// Interior regions matching the background color (e.g. inside a shirt collar)
// are deliberately not reached, as they are not connected to the border.
func floodFillBackground(img *image.NRGBA, bg [3]int, tolerance int) []uint8 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	mask := make([]uint8, w*h)
	queue := make([]int, 0, 2*(w+h))

	push := func(x, y int) {
		idx := y*w + x
		if mask[idx] != 0 {
			return
		}
		if colorDistance(img, x, y, bg) > tolerance {
			return
		}
		mask[idx] = 255
		queue = append(queue, idx)
	}

	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for len(queue) > 0 {
		idx := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := idx%w, idx/w

		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}

	return mask
}

// boxBlurMask softens the mask edge with a separable box blur of the given
// radius so the cutout does not have a hard aliased outline.
func boxBlurMask(mask []uint8, w, h, radius int) []uint8 {
	horizontal := make([]uint8, len(mask))
	parallelFor(h, func(y int) {
		row := y * w
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for dx := -radius; dx <= radius; dx++ {
				sx := clampInt(x+dx, 0, w-1)
				sum += int(mask[row+sx])
				n++
			}
			horizontal[row+x] = uint8(sum / n)
		}
	})

	out := make([]uint8, len(mask))
	parallelFor(h, func(y int) {
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for dy := -radius; dy <= radius; dy++ {
				sy := clampInt(y+dy, 0, h-1)
				sum += int(horizontal[sy*w+x])
				n++
			}
			out[y*w+x] = uint8(sum / n)
		}
	})

	return out
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func init() {
	// Register the command in the default registry
	if err := DefaultRegistry.Register("RemoveBackgroundCommand", NewRemoveBackgroundCommand); err != nil {
		panic(fmt.Sprintf("failed to register RemoveBackgroundCommand: %v", err))
	}
}
