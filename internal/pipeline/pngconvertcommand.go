package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"strconv"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// PngConvertCommand normalizes any supported input format to PNG.
// Raster formats are decoded through the image registry; SVG input is
// rasterized via oksvg.
type PngConvertCommand struct {
	name              string
	svgFallbackWidth  int
	svgFallbackHeight int
}

// NewPngConvertCommand creates a new PNG convert command. The optional
// svgFallbackWidth/svgFallbackHeight params are used only when an SVG input
// lacks explicit dimensions.
func NewPngConvertCommand(params map[string]any) (Command, error) {
	return &PngConvertCommand{
		name:              "PngConvertCommand",
		svgFallbackWidth:  GetIntParam(params, "svgFallbackWidth", 1024),
		svgFallbackHeight: GetIntParam(params, "svgFallbackHeight", 1024),
	}, nil
}

// Name returns the command name
func (c *PngConvertCommand) Name() string {
	return c.name
}

func (c *PngConvertCommand) Execute(imageData []byte) ([]byte, error) {
	if hasPngSignature(imageData) {
		slog.Debug("PngConvertCommand: PNG detected; returning original bytes")
		return imageData, nil
	}

	if isSVGData(imageData) {
		return c.convertSVG(imageData)
	}

	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		slog.Error("PngConvertCommand: failed to decode image", "error", err)
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	slog.Debug("PngConvertCommand: decoded raster image",
		"format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())

	out, err := encodePNG(img)
	if err != nil {
		slog.Error("PngConvertCommand: failed to encode image to PNG", "error", err)
		return nil, fmt.Errorf("failed to encode image to PNG: %w", err)
	}
	return out, nil
}

func (c *PngConvertCommand) convertSVG(imageData []byte) ([]byte, error) {
	w, h, ok := svgExplicitSize(imageData)
	if !ok {
		w, h = c.svgFallbackWidth, c.svgFallbackHeight
		slog.Debug("PngConvertCommand: SVG lacks explicit size; using fallback",
			"width", w, "height", h)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid SVG render dimensions: %dx%d", w, h)
	}

	icon, err := oksvg.ReadIconStream(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(w, h, dst, dst.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1.0)

	out, err := encodePNG(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rendered SVG as PNG: %w", err)
	}
	slog.Debug("PngConvertCommand: SVG render complete", "output_size_bytes", len(out))
	return out, nil
}

// isSVGData performs a lightweight detection of SVG content from raw bytes
func isSVGData(data []byte) bool {
	n := len(data)
	if n == 0 {
		return false
	}
	if n > 4096 {
		n = 4096
	}
	header := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte("xmlns=\"http://www.w3.org/2000/svg\"")) ||
		bytes.Contains(header, []byte("xmlns='http://www.w3.org/2000/svg'"))
}

// svgExplicitSize extracts width and height attributes from the opening
// <svg> tag. Returns ok=false when either is missing; viewBox is not treated
// as a pixel size.
func svgExplicitSize(data []byte) (int, int, bool) {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	s := strings.ToLower(string(data[:n]))
	i := strings.Index(s, "<svg")
	if i < 0 {
		return 0, 0, false
	}
	j := strings.Index(s[i:], ">")
	if j < 0 {
		j = len(s) - i
	}
	tag := s[i : i+j]

	w, wOk := svgNumericAttr(tag, "width")
	h, hOk := svgNumericAttr(tag, "height")
	if wOk && hOk && w > 0 && h > 0 {
		return w, h, true
	}
	return 0, 0, false
}

// svgNumericAttr extracts the leading numeric value of an attribute,
// tolerating unit suffixes such as width="640px".
func svgNumericAttr(tag, attr string) (int, bool) {
	pos := strings.Index(tag, attr+"=")
	if pos < 0 {
		return 0, false
	}
	rest := tag[pos+len(attr)+1:]
	if len(rest) == 0 {
		return 0, false
	}
	quote := rest[0]
	if quote != '"' && quote != '\'' {
		return 0, false
	}
	rest = rest[1:]
	end := strings.IndexByte(rest, quote)
	if end >= 0 {
		rest = rest[:end]
	}
	digits := rest
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			digits = rest[:i]
			break
		}
	}
	num, err := strconv.Atoi(digits)
	if err != nil || num <= 0 {
		return 0, false
	}
	return num, true
}

func init() {
	// Register the command in the default registry
	if err := DefaultRegistry.Register("PngConvertCommand", NewPngConvertCommand); err != nil {
		panic(fmt.Sprintf("failed to register PngConvertCommand: %v", err))
	}
}
