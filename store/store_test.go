package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/sympolymathesy/ogimage"
	"gitlab.com/sympolymathesy/ogimage/b2"
	"gitlab.com/sympolymathesy/ogimage/b2/fakeb2"
	"gitlab.com/sympolymathesy/ogimage/config"
	"gitlab.com/sympolymathesy/ogimage/memstore"
	"gitlab.com/sympolymathesy/ogimage/s3store"
	"gitlab.com/sympolymathesy/ogimage/store"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		check   func(t *testing.T, s ogimage.ObjectStore)
		wantErr bool
	}{
		{
			name: "b2",
			mutate: func(c *config.Config) {
				c.B2.Credentials = ogimage.Credentials{KeyID: "id", Key: "key"}
			},
			check: func(t *testing.T, s ogimage.ObjectStore) {
				assert.IsType(t, &b2.Client{}, s)
			},
		},
		{
			name: "s3",
			mutate: func(c *config.Config) {
				c.StoreBackend = config.BackendS3
				c.S3 = config.S3Config{Region: "us-west-004", Bucket: "images"}
			},
			check: func(t *testing.T, s ogimage.ObjectStore) {
				assert.IsType(t, &s3store.Store{}, s)
			},
		},
		{
			name: "memory",
			mutate: func(c *config.Config) {
				c.StoreBackend = config.BackendMemory
			},
			check: func(t *testing.T, s ogimage.ObjectStore) {
				assert.IsType(t, &memstore.Store{}, s)
			},
		},
		{
			name: "unknown",
			mutate: func(c *config.Config) {
				c.StoreBackend = "ftp"
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)

			s, closer, err := store.Open(context.Background(), cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer closer.Close()
			tt.check(t, s)
		})
	}
}

func TestOpen_B2AuthURL(t *testing.T) {
	creds := ogimage.Credentials{KeyID: "id", Key: "key"}
	srv := fakeb2.NewServer(creds)
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.B2 = config.B2Config{Credentials: creds, AuthURL: srv.URL}

	s, closer, err := store.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closer.Close()

	_, err = s.Authorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Authorizations())
}
