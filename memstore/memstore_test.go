package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/sympolymathesy/ogimage"
)

func TestStore_UploadAndDownload(t *testing.T) {
	ctx := context.Background()
	s := New()

	sess, err := s.Authorize(ctx)
	require.NoError(t, err)

	_, found, err := sess.Download(ctx, "opengraph/k.png")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, sess.Upload(ctx, "opengraph/k.png", []byte("v")))

	data, found, err := sess.Download(ctx, "opengraph/k.png")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), data)
	assert.Equal(t, 1, s.Writes())
	assert.Equal(t, 1, s.Authorizations())
	assert.Equal(t, []string{"opengraph/k.png"}, s.Names())
}

func TestStore_SeedIsNotAWrite(t *testing.T) {
	s := New()
	s.Seed("k", []byte("v"))

	data, ok := s.Object("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), data)
	assert.Equal(t, 0, s.Writes())
}

func TestStore_DataIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	sess, err := s.Authorize(ctx)
	require.NoError(t, err)

	original := []byte("original")
	require.NoError(t, sess.Upload(ctx, "k", original))
	original[0] = 'X'

	data, _, err := sess.Download(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, byte('o'), data[0], "Upload should copy input data")

	data[0] = 'Y'
	again, _ := s.Object("k")
	assert.Equal(t, byte('o'), again[0], "Download should return a copy")
}

func TestStore_FailUploads(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.FailUploads(2)
	sess, err := s.Authorize(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		err := sess.Upload(ctx, "k", []byte("v"))
		assert.Equal(t, ogimage.EUPLOAD, ogimage.ErrorCode(err))
	}
	require.NoError(t, sess.Upload(ctx, "k", []byte("v")))
	assert.Equal(t, 1, s.Writes())
}

func TestStore_AuthorizeErr(t *testing.T) {
	s := New()
	s.AuthorizeErr = ogimage.Errorf(ogimage.EAUTH, "denied")

	_, err := s.Authorize(context.Background())
	assert.Equal(t, ogimage.EAUTH, ogimage.ErrorCode(err))
}

func TestStore_CancelledContext(t *testing.T) {
	s := New()
	sess, err := s.Authorize(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err = sess.Download(ctx, "k")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(sess.Upload(ctx, "k", []byte("v")), context.Canceled))
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := s.Authorize(ctx)
			if err != nil {
				return
			}
			_ = sess.Upload(ctx, "key", []byte("data"))
			_, _, _ = sess.Download(ctx, "key")
			_ = s.Names()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Writes())
}
