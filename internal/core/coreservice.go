package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GalievDev/image-generator-module/internal/cache"
	"github.com/GalievDev/image-generator-module/internal/outfit"
	"github.com/GalievDev/image-generator-module/internal/pipeline"
	"github.com/GalievDev/image-generator-module/internal/storage"
)

// CoreService wires the image store, the processed-image cache, the
// processing pipeline, and the outfit composer behind one API.
type CoreService struct {
	config    *ServiceConfig
	store     storage.Store
	cache     *cache.Cache
	invoker   *pipeline.Invoker
	composer  *outfit.Composer
	retention *retentionJob
}

func NewCoreService(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	store, err := storage.NewStore(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)

	var imageCache *cache.Cache
	if config.Cache.Enabled {
		imageCache, err = cache.New(ctx, config.Cache.Address, config.Cache.TTL.Std())
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
	}

	invoker, err := pipeline.NewInvokerFromConfigs(config.CommandConfigs())
	if err != nil {
		_ = imageCache.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to build processing pipeline: %w", err)
	}

	service := &CoreService{
		config:   config,
		store:    store,
		cache:    imageCache,
		invoker:  invoker,
		composer: outfit.NewComposer(),
	}

	if config.Retention.Enabled {
		service.retention, err = startRetentionJob(service, config.Retention)
		if err != nil {
			_ = service.Close()
			return nil, fmt.Errorf("failed to start retention job: %w", err)
		}
	}

	return service, nil
}

// ProcessImage runs the configured pipeline over raw image bytes without
// persisting the result. Used by the websocket background-removal endpoint.
func (s *CoreService) ProcessImage(data []byte) ([]byte, error) {
	return s.invoker.Execute(data)
}

// AddImage runs the pipeline and persists original and processed image in a
// single store call, then warms the cache.
func (s *CoreService) AddImage(ctx context.Context, name string, data []byte) (*storage.Image, error) {
	processed, err := s.invoker.Execute(data)
	if err != nil {
		return nil, fmt.Errorf("failed to process image: %w", err)
	}

	id, err := s.store.CreateImage(name, data, processed)
	if err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	s.cache.Set(ctx, id, processed)

	slog.Info("image added",
		"id", id,
		"name", name,
		"original_size_bytes", len(data),
		"processed_size_bytes", len(processed))

	return &storage.Image{
		ID:             id,
		Name:           name,
		OriginalImage:  data,
		ProcessedImage: processed,
	}, nil
}

// ListImages returns image metadata without the binary columns
func (s *CoreService) ListImages() ([]*storage.Image, error) {
	return s.store.GetImages("id", "name", "created_at")
}

// OriginalImage returns the stored original bytes for the ID
func (s *CoreService) OriginalImage(id string) ([]byte, error) {
	return s.store.GetOriginalImageByID(id)
}

// ProcessedImage returns the processed PNG for the ID, reading through the
// cache when one is configured.
func (s *CoreService) ProcessedImage(ctx context.Context, id string) ([]byte, error) {
	if data, ok := s.cache.Get(ctx, id); ok {
		return data, nil
	}

	data, err := s.store.GetProcessedImageByID(id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, id, data)
	return data, nil
}

// DeleteImage removes the image from store and cache
func (s *CoreService) DeleteImage(ctx context.Context, id string) error {
	if err := s.store.DeleteImage(id); err != nil {
		return err
	}
	s.cache.Delete(ctx, id)
	return nil
}

// GenerateOutfit composes the processed cutouts for the given IDs into one
// outfit image.
func (s *CoreService) GenerateOutfit(ctx context.Context, ids []string, opts outfit.Options) ([]byte, error) {
	cutouts := make([][]byte, 0, len(ids))
	for _, id := range ids {
		data, err := s.ProcessedImage(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load garment %s: %w", id, err)
		}
		cutouts = append(cutouts, data)
	}
	return s.composer.Compose(cutouts, opts)
}

// Close stops the retention job and releases store and cache
func (s *CoreService) Close() error {
	if s.retention != nil {
		s.retention.stop()
	}
	if err := s.cache.Close(); err != nil {
		slog.Warn("failed to close cache", "error", err)
	}
	return s.store.Close()
}
