// Package cache implements ogimage.ImageService on top of an object store:
// look the image up by its cache key, and render and store it on a miss.
package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gitlab.com/sympolymathesy/ogimage"
	"gitlab.com/sympolymathesy/ogimage/cachekey"
)

var (
	lookupCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ogimage_cache_lookups_total",
		Help: "Total number of cache lookups by result",
	}, []string{"result"})

	renderSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ogimage_render_seconds",
		Help:    "Time spent rendering images on cache misses, in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

// Ensure service implements interface.
var _ ogimage.ImageService = (*ImageService)(nil)

// ImageService serves images from Store, rendering missing ones with Renderer.
type ImageService struct {
	store    ogimage.ObjectStore
	renderer ogimage.Renderer
	keys     cachekey.Deriver
	logger   *slog.Logger
}

// NewImageService returns a new instance of ImageService.
func NewImageService(store ogimage.ObjectStore, renderer ogimage.Renderer, keys cachekey.Deriver, logger *slog.Logger) *ImageService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ImageService{
		store:    store,
		renderer: renderer,
		keys:     keys,
		logger:   logger,
	}
}

// GetOrCreate returns the image for title.
//
// The steps run strictly in order: derive the key, authorize, check the
// store, and only on a miss render and upload. The existence check must come
// before any upload so a key is never written twice by one caller. A rendered
// image is returned only once it has been stored.
func (s *ImageService) GetOrCreate(ctx context.Context, title string) (*ogimage.Image, error) {
	key := s.keys.Key(title)
	name := cachekey.ObjectName(key)
	logger := s.logger.With(slog.String("key", key))

	session, err := s.store.Authorize(ctx)
	if err != nil {
		return nil, err
	}

	data, found, err := session.Download(ctx, name)
	if err != nil {
		return nil, err
	}
	if found {
		lookupCount.WithLabelValues("hit").Inc()
		logger.Debug("cache hit")
		return &ogimage.Image{Key: key, Data: data, Hit: true}, nil
	}
	lookupCount.WithLabelValues("miss").Inc()

	logger.Info("rendering image", slog.String("title", title))
	start := time.Now()
	data, err = s.renderer.Render(ctx, title)
	renderSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		var appErr *ogimage.Error
		if !errors.As(err, &appErr) {
			err = ogimage.WrapError(err, ogimage.ERENDER, "render %q failed", title)
		}
		return nil, err
	}

	if err := session.Upload(ctx, name, data); err != nil {
		return nil, err
	}
	logger.Info("image stored", slog.Int("bytes", len(data)))

	return &ogimage.Image{Key: key, Data: data}, nil
}
