package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/GalievDev/image-generator-module/internal/core"
	"github.com/GalievDev/image-generator-module/internal/outfit"
	"github.com/GalievDev/image-generator-module/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const mimePNG = "image/png"

type APIService struct {
	config  *core.ServiceConfig
	core    *core.CoreService
	metrics *Metrics
	limiter *clientLimiter
}

// ImageMetadata is the JSON representation of a stored image
type ImageMetadata struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// UploadResponse is returned after a successful upload
type UploadResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	OriginalSize  int    `json:"originalSize"`
	ProcessedSize int    `json:"processedSize"`
}

// OutfitRequest is the JSON body of POST /api/outfits
type OutfitRequest struct {
	ImageIDs   []string `json:"imageIds" validate:"required,min=1,max=12"`
	Width      int      `json:"width" validate:"omitempty,min=64,max=4096"`
	Height     int      `json:"height" validate:"omitempty,min=64,max=4096"`
	Background string   `json:"background"`
	Gradient   bool     `json:"gradient"`
	Margin     int      `json:"margin" validate:"omitempty,min=0,max=256"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return NewAPIServiceWithRegistry(config, coreService, prometheus.DefaultRegisterer)
}

// NewAPIServiceWithRegistry allows tests to supply an isolated metrics registry
func NewAPIServiceWithRegistry(config *core.ServiceConfig, coreService *core.CoreService, reg prometheus.Registerer) *APIService {
	return &APIService{
		config:  config,
		core:    coreService,
		metrics: NewMetrics(reg),
		limiter: newClientLimiter(config.Limits.RequestsPerSecond, config.Limits.Burst, 10*time.Minute),
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	// Probe route and the greeting the original deployment served on "/"
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "API Service is running")
	})
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"Hello": "World"})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api", s.limiter.middleware(s.metrics))
	api.POST("/images", s.uploadImageHandler)
	api.GET("/images", s.listImagesHandler)
	api.GET("/images/:id/original", s.getOriginalImageHandler)
	api.GET("/images/:id/processed", s.getProcessedImageHandler)
	api.DELETE("/images/:id", s.deleteImageHandler)
	api.POST("/outfits", s.generateOutfitHandler)

	e.GET("/ws/rmbg", s.removeBackgroundSocketHandler)
}

func (s *APIService) uploadImageHandler(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		slog.Error("uploadImageHandler: missing image form field", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "missing image form field")
	}

	if file.Size > s.config.Limits.MaxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload exceeds %d bytes", s.config.Limits.MaxUploadBytes))
	}

	src, err := file.Open()
	if err != nil {
		slog.Error("uploadImageHandler: failed to open uploaded file",
			"error", err, "filename", file.Filename)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("uploadImageHandler: failed to close uploaded file reader",
				"error", cerr, "filename", file.Filename)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(src, s.config.Limits.MaxUploadBytes+1))
	if err != nil {
		slog.Error("uploadImageHandler: failed to read uploaded file",
			"error", err, "filename", file.Filename)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read uploaded file")
	}
	if int64(len(data)) > s.config.Limits.MaxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload exceeds %d bytes", s.config.Limits.MaxUploadBytes))
	}

	start := time.Now()
	img, err := s.core.AddImage(c.Request().Context(), file.Filename, data)
	s.metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.ImagesProcessed.WithLabelValues("error").Inc()
		slog.Error("uploadImageHandler: failed to process uploaded image",
			"error", err, "filename", file.Filename)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process uploaded image")
	}
	s.metrics.ImagesProcessed.WithLabelValues("ok").Inc()

	return c.JSON(http.StatusCreated, UploadResponse{
		ID:            img.ID,
		Name:          img.Name,
		OriginalSize:  len(img.OriginalImage),
		ProcessedSize: len(img.ProcessedImage),
	})
}

func (s *APIService) listImagesHandler(c echo.Context) error {
	images, err := s.core.ListImages()
	if err != nil {
		slog.Error("listImagesHandler: failed to list images", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list images")
	}

	metadata := make([]ImageMetadata, 0, len(images))
	for _, img := range images {
		metadata = append(metadata, ImageMetadata{
			ID:        img.ID,
			Name:      img.Name,
			CreatedAt: img.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, metadata)
}

func (s *APIService) getOriginalImageHandler(c echo.Context) error {
	data, err := s.core.OriginalImage(c.Param("id"))
	if err != nil {
		return imageLookupError(c.Param("id"), err)
	}
	return c.Blob(http.StatusOK, http.DetectContentType(data), data)
}

func (s *APIService) getProcessedImageHandler(c echo.Context) error {
	data, err := s.core.ProcessedImage(c.Request().Context(), c.Param("id"))
	if err != nil {
		return imageLookupError(c.Param("id"), err)
	}
	return c.Blob(http.StatusOK, mimePNG, data)
}

func (s *APIService) deleteImageHandler(c echo.Context) error {
	id := c.Param("id")
	if err := s.core.DeleteImage(c.Request().Context(), id); err != nil {
		return imageLookupError(id, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIService) generateOutfitHandler(c echo.Context) error {
	var req OutfitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	opts := outfit.DefaultOptions()
	if req.Width > 0 {
		opts.Width = req.Width
	}
	if req.Height > 0 {
		opts.Height = req.Height
	}
	if req.Background != "" {
		opts.Background = req.Background
	}
	if req.Margin > 0 {
		opts.Margin = req.Margin
	}
	opts.Gradient = req.Gradient

	data, err := s.core.GenerateOutfit(c.Request().Context(), req.ImageIDs, opts)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "unknown image id in request")
		}
		slog.Error("generateOutfitHandler: failed to compose outfit",
			"error", err, "image_count", len(req.ImageIDs))
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("failed to compose outfit: %v", err))
	}
	s.metrics.OutfitsComposed.Inc()

	return c.Blob(http.StatusOK, mimePNG, data)
}

func imageLookupError(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("image %s not found", id))
	}
	slog.Error("image lookup failed", "id", id, "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "failed to load image")
}
