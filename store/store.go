// Package store opens the configured ogimage.ObjectStore backend.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gitlab.com/sympolymathesy/ogimage"
	"gitlab.com/sympolymathesy/ogimage/b2"
	"gitlab.com/sympolymathesy/ogimage/config"
	"gitlab.com/sympolymathesy/ogimage/gcs"
	"gitlab.com/sympolymathesy/ogimage/memstore"
	"gitlab.com/sympolymathesy/ogimage/s3store"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the store selected by cfg.StoreBackend. The returned closer
// releases backend resources and is never nil.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ogimage.ObjectStore, io.Closer, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With(slog.String("backend", cfg.StoreBackend))

	switch cfg.StoreBackend {
	case config.BackendB2:
		opts := []b2.Option{b2.WithLogger(logger)}
		if cfg.B2.AuthURL != "" {
			opts = append(opts, b2.WithAuthURL(cfg.B2.AuthURL))
		}
		logger.Info("using b2 store", slog.Any("credentials", cfg.B2.Credentials))
		return b2.NewClient(cfg.B2.Credentials, opts...), nopCloser{}, nil

	case config.BackendS3:
		s, err := s3store.New(ctx, s3store.Config{
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Endpoint:       cfg.S3.Endpoint,
			Credentials:    cfg.S3.Credentials,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using s3 store", slog.String("bucket", cfg.S3.Bucket))
		return s, nopCloser{}, nil

	case config.BackendGCS:
		g, err := gcs.NewGCloudStorage(ctx, cfg.GCS.Bucket, cfg.GCS.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using gcs store", slog.String("bucket", cfg.GCS.Bucket))
		return gcs.NewObjectStore(g), g, nil

	case config.BackendMemory:
		logger.Warn("using in-memory store; images are lost on exit")
		return memstore.New(), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
