package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/nfnt/resize"
)

// ScaleParams represents typed parameters for scale command
type ScaleParams struct {
	MaxWidth  int
	MaxHeight int
}

// NewScaleParamsFromMap creates ScaleParams from a generic map
func NewScaleParamsFromMap(params map[string]any) (*ScaleParams, error) {
	if err := ValidateRequiredParams(params, []string{"maxWidth", "maxHeight"}); err != nil {
		return nil, err
	}

	maxWidth := GetIntParam(params, "maxWidth", 0)
	maxHeight := GetIntParam(params, "maxHeight", 0)

	if maxWidth <= 0 {
		return nil, fmt.Errorf("maxWidth must be positive, got %d", maxWidth)
	}
	if maxHeight <= 0 {
		return nil, fmt.Errorf("maxHeight must be positive, got %d", maxHeight)
	}

	return &ScaleParams{
		MaxWidth:  maxWidth,
		MaxHeight: maxHeight,
	}, nil
}

// ScaleCommand shrinks images to fit within a bounding box while preserving
// aspect ratio. Images already inside the box are passed through; the command
// never upscales.
type ScaleCommand struct {
	name   string
	params *ScaleParams
}

// NewScaleCommand creates a new scale command from configuration parameters
func NewScaleCommand(params map[string]any) (Command, error) {
	typedParams, err := NewScaleParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &ScaleCommand{
		name:   "ScaleCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *ScaleCommand) Name() string {
	return c.name
}

// Execute scales the image down to fit the configured bounding box
func (c *ScaleCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := decodePNG(imageData)
	if err != nil {
		slog.Error("ScaleCommand: failed to decode PNG image", "error", err)
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= c.params.MaxWidth && height <= c.params.MaxHeight {
		slog.Debug("ScaleCommand: image already within bounds; skipping",
			"width", width, "height", height)
		return imageData, nil
	}

	scaled := resize.Thumbnail(uint(c.params.MaxWidth), uint(c.params.MaxHeight), img, resize.Lanczos3)

	slog.Debug("ScaleCommand: scaled image",
		"original_width", width,
		"original_height", height,
		"scaled_width", scaled.Bounds().Dx(),
		"scaled_height", scaled.Bounds().Dy())

	out, err := encodePNG(scaled)
	if err != nil {
		slog.Error("ScaleCommand: failed to encode scaled image", "error", err)
		return nil, fmt.Errorf("failed to encode scaled PNG image: %w", err)
	}

	return out, nil
}

// GetParams returns the typed parameters
func (c *ScaleCommand) GetParams() *ScaleParams {
	return c.params
}

func init() {
	// Register the command in the default registry
	if err := DefaultRegistry.Register("ScaleCommand", NewScaleCommand); err != nil {
		panic(fmt.Sprintf("failed to register ScaleCommand: %v", err))
	}
}
