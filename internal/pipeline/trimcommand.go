package pipeline

import (
	"fmt"
	"image"
	"log/slog"
)

// TrimParams represents typed parameters for trim command
type TrimParams struct {
	// Threshold is the minimum alpha (normalized 0-1) for a pixel to count
	// as part of the subject.
	Threshold float64
	// Margin is the number of transparent pixels kept around the subject.
	Margin int
}

// NewTrimParamsFromMap creates TrimParams from a generic map
func NewTrimParamsFromMap(params map[string]any) (*TrimParams, error) {
	threshold := GetFloatParam(params, "threshold", 0.8)
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be in [0,1], got %f", threshold)
	}
	margin := GetIntParam(params, "margin", 0)
	if margin < 0 {
		return nil, fmt.Errorf("margin must be non-negative, got %d", margin)
	}
	return &TrimParams{
		Threshold: threshold,
		Margin:    margin,
	}, nil
}

// TrimCommand crops the image to the bounding box of its opaque subject
type TrimCommand struct {
	name   string
	params *TrimParams
}

// NewTrimCommand creates a new trim command from configuration parameters
func NewTrimCommand(params map[string]any) (Command, error) {
	typedParams, err := NewTrimParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &TrimCommand{
		name:   "TrimCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *TrimCommand) Name() string {
	return c.name
}

// Execute crops the image to its foreground alpha bounding box
func (c *TrimCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := decodePNG(imageData)
	if err != nil {
		slog.Error("TrimCommand: failed to decode PNG image", "error", err)
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}

	src := toNRGBA(img)
	bounds := src.Bounds()

	bbox, found := alphaBBox(src, c.params.Threshold)
	if !found {
		// Fully transparent image: nothing to trim against
		slog.Debug("TrimCommand: no foreground found; returning original")
		return imageData, nil
	}

	if c.params.Margin > 0 {
		bbox = image.Rect(
			clampInt(bbox.Min.X-c.params.Margin, 0, bounds.Dx()),
			clampInt(bbox.Min.Y-c.params.Margin, 0, bounds.Dy()),
			clampInt(bbox.Max.X+c.params.Margin, 0, bounds.Dx()),
			clampInt(bbox.Max.Y+c.params.Margin, 0, bounds.Dy()),
		)
	}

	if bbox == bounds {
		slog.Debug("TrimCommand: subject fills the frame; returning original")
		return imageData, nil
	}

	slog.Debug("TrimCommand: cropping to subject",
		"x0", bbox.Min.X, "y0", bbox.Min.Y,
		"width", bbox.Dx(), "height", bbox.Dy())

	cropped := src.SubImage(bbox)

	out, err := encodePNG(cropped)
	if err != nil {
		slog.Error("TrimCommand: failed to encode trimmed image", "error", err)
		return nil, fmt.Errorf("failed to encode trimmed PNG image: %w", err)
	}

	return out, nil
}

// GetParams returns the typed parameters
func (c *TrimCommand) GetParams() *TrimParams {
	return c.params
}

func init() {
	// Register the command in the default registry
	if err := DefaultRegistry.Register("TrimCommand", NewTrimCommand); err != nil {
		panic(fmt.Sprintf("failed to register TrimCommand: %v", err))
	}
}
