package pipeline

import (
	"image"
	"image/color"
	"testing"
)

func TestNewRemoveBackgroundCommand_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{
			name:   "Negative tolerance",
			params: map[string]any{"tolerance": -1},
		},
		{
			name:   "Tolerance above 255",
			params: map[string]any{"tolerance": 300},
		},
		{
			name:   "Negative feather",
			params: map[string]any{"feather": -2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRemoveBackgroundCommand(tt.params)
			if err == nil {
				t.Error("Expected error for invalid params, got nil")
			}
		})
	}
}

func TestRemoveBackgroundCommand_Defaults(t *testing.T) {
	command, err := NewRemoveBackgroundCommand(map[string]any{})
	if err != nil {
		t.Fatalf("Failed to create command: %v", err)
	}

	cmd, ok := command.(*RemoveBackgroundCommand)
	if !ok {
		t.Fatal("Expected command to be *RemoveBackgroundCommand")
	}
	if cmd.Name() != "RemoveBackgroundCommand" {
		t.Errorf("Expected name 'RemoveBackgroundCommand', got '%s'", cmd.Name())
	}
	if cmd.GetParams().Tolerance != 24 {
		t.Errorf("Expected default tolerance 24, got %d", cmd.GetParams().Tolerance)
	}
	if cmd.GetParams().Feather != 2 {
		t.Errorf("Expected default feather 2, got %d", cmd.GetParams().Feather)
	}
}

func TestRemoveBackgroundCommand_Execute(t *testing.T) {
	white := color.RGBA{255, 255, 255, 255}
	red := color.RGBA{200, 30, 30, 255}
	input := makeSubjectPNG(t, 64, 64, white, red, image.Rect(20, 20, 44, 44))

	command, err := NewRemoveBackgroundCommand(map[string]any{"feather": 0})
	if err != nil {
		t.Fatalf("Failed to create command: %v", err)
	}

	output, err := command.Execute(input)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	result := decodeNRGBA(t, output)

	// Border-connected white background becomes transparent
	for _, p := range []image.Point{{1, 1}, {62, 1}, {1, 62}, {62, 62}, {32, 2}} {
		if a := alphaAt(result, p.X, p.Y); a != 0 {
			t.Errorf("Expected background pixel (%d,%d) transparent, got alpha %d", p.X, p.Y, a)
		}
	}

	// The subject remains opaque
	for _, p := range []image.Point{{32, 32}, {22, 22}, {42, 42}} {
		if a := alphaAt(result, p.X, p.Y); a != 255 {
			t.Errorf("Expected subject pixel (%d,%d) opaque, got alpha %d", p.X, p.Y, a)
		}
	}
}

func TestRemoveBackgroundCommand_InteriorBackgroundColorKept(t *testing.T) {
	white := color.RGBA{255, 255, 255, 255}
	blue := color.RGBA{20, 40, 180, 255}
	// Subject is a blue frame with a white hole in the middle; the hole is
	// not connected to the border and must stay opaque.
	input := makeSubjectPNG(t, 64, 64, white, blue, image.Rect(16, 16, 48, 48))

	img := decodeNRGBA(t, input)
	for y := 28; y < 36; y++ {
		for x := 28; x < 36; x++ {
			i := y*img.Stride + x*4
			img.Pix[i] = 255
			img.Pix[i+1] = 255
			img.Pix[i+2] = 255
		}
	}
	holed, err := encodePNG(img)
	if err != nil {
		t.Fatalf("failed to re-encode fixture: %v", err)
	}

	command, err := NewRemoveBackgroundCommand(map[string]any{"feather": 0})
	if err != nil {
		t.Fatalf("Failed to create command: %v", err)
	}
	output, err := command.Execute(holed)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	result := decodeNRGBA(t, output)
	if a := alphaAt(result, 32, 32); a != 255 {
		t.Errorf("Expected interior hole to stay opaque, got alpha %d", a)
	}
	if a := alphaAt(result, 2, 2); a != 0 {
		t.Errorf("Expected border background transparent, got alpha %d", a)
	}
}

func TestRemoveBackgroundCommand_AlphaPassthrough(t *testing.T) {
	// An image that already carries transparency must not be reprocessed
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 100
		img.Pix[i+3] = 128
	}
	input, err := encodePNG(img)
	if err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}

	command, err := NewRemoveBackgroundCommand(map[string]any{})
	if err != nil {
		t.Fatalf("Failed to create command: %v", err)
	}
	output, err := command.Execute(input)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(output) != len(input) {
		t.Error("Expected image with existing alpha to pass through unchanged")
	}
}

func TestRemoveBackgroundCommand_InvalidInput(t *testing.T) {
	command, err := NewRemoveBackgroundCommand(map[string]any{})
	if err != nil {
		t.Fatalf("Failed to create command: %v", err)
	}

	_, err = command.Execute([]byte("not a png"))
	if err == nil {
		t.Error("Expected error for invalid image data")
	}
}

func TestRemoveBackgroundCommand_TooSmall(t *testing.T) {
	input := makeSubjectPNG(t, 2, 2,
		color.RGBA{255, 255, 255, 255},
		color.RGBA{0, 0, 0, 255},
		image.Rect(0, 0, 1, 1))

	command, err := NewRemoveBackgroundCommand(map[string]any{})
	if err != nil {
		t.Fatalf("Failed to create command: %v", err)
	}

	_, err = command.Execute(input)
	if err == nil {
		t.Error("Expected error for image below minimum size")
	}
}

func TestRemoveBackgroundCommand_FeatherSoftensEdge(t *testing.T) {
	white := color.RGBA{255, 255, 255, 255}
	red := color.RGBA{200, 30, 30, 255}
	input := makeSubjectPNG(t, 64, 64, white, red, image.Rect(20, 20, 44, 44))

	command, err := NewRemoveBackgroundCommand(map[string]any{"feather": 3})
	if err != nil {
		t.Fatalf("Failed to create command: %v", err)
	}
	output, err := command.Execute(input)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	result := decodeNRGBA(t, output)
	// Just outside the subject edge alpha should be partial, not a hard 0/255
	edge := alphaAt(result, 19, 32)
	if edge == 0 || edge == 255 {
		t.Errorf("Expected feathered edge alpha between 0 and 255, got %d", edge)
	}
}
