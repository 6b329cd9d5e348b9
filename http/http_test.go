package http_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/sympolymathesy/ogimage"
	"gitlab.com/sympolymathesy/ogimage/cache"
	"gitlab.com/sympolymathesy/ogimage/cachekey"
	ogihttp "gitlab.com/sympolymathesy/ogimage/http"
	"gitlab.com/sympolymathesy/ogimage/memstore"
)

func TestClient_GetOrCreate(t *testing.T) {
	svc := cache.NewImageService(memstore.New(), &stubRenderer{}, cachekey.NewDeriver(buildID), nil)
	ts := newTestServer(t, svc)
	c := ogihttp.NewClientWithHTTP(ts.URL+"/", ts.Client())

	img, err := c.GetOrCreate(context.Background(), "a/b & c?")
	require.NoError(t, err)
	assert.Equal(t, []byte("png:a/b & c?"), img.Data)
	assert.Equal(t, cachekey.Derive(buildID, "a/b & c?"), img.Key)
	assert.False(t, img.Hit)

	img, err = c.GetOrCreate(context.Background(), "a/b & c?")
	require.NoError(t, err)
	assert.True(t, img.Hit)
}

func TestClient_Errors(t *testing.T) {
	t.Run("remote error keeps code", func(t *testing.T) {
		ts := newTestServer(t, imageServiceFunc(func(context.Context, string) (*ogimage.Image, error) {
			return nil, ogimage.Errorf(ogimage.EUPLOAD, "upload failed")
		}))
		_, err := ogihttp.NewClientWithHTTP(ts.URL, ts.Client()).GetOrCreate(context.Background(), "x")
		assert.Equal(t, ogimage.EUPLOAD, ogimage.ErrorCode(err))
		assert.Equal(t, "upload failed", ogimage.ErrorMessage(err))
	})

	t.Run("message is not a format string", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "disk 100% full", http.StatusInternalServerError)
		}))
		defer ts.Close()

		_, err := ogihttp.NewClientWithHTTP(ts.URL, ts.Client()).GetOrCreate(context.Background(), "x")
		assert.Equal(t, ogimage.EINTERNAL, ogimage.ErrorCode(err))
		assert.Equal(t, "disk 100% full", ogimage.ErrorMessage(err))
	})

	t.Run("json message is not a format string", func(t *testing.T) {
		ts := newTestServer(t, imageServiceFunc(func(context.Context, string) (*ogimage.Image, error) {
			return nil, ogimage.Errorf(ogimage.EUPLOAD, "bucket %s", "at 100% %d")
		}))
		_, err := ogihttp.NewClientWithHTTP(ts.URL, ts.Client()).GetOrCreate(context.Background(), "x")
		assert.Equal(t, ogimage.EUPLOAD, ogimage.ErrorCode(err))
		assert.Equal(t, "bucket at 100% %d", ogimage.ErrorMessage(err))
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := ogihttp.NewClient("http://127.0.0.1:1").GetOrCreate(context.Background(), "x")
		assert.Equal(t, ogimage.ETRANSPORT, ogimage.ErrorCode(err))
	})
}

func TestErrorStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ogihttp.ErrorStatusCode(ogimage.EINVALID))
	assert.Equal(t, http.StatusNotFound, ogihttp.ErrorStatusCode(ogimage.ENOTFOUND))
	assert.Equal(t, http.StatusBadGateway, ogihttp.ErrorStatusCode(ogimage.EREMOTE))
	assert.Equal(t, http.StatusInternalServerError, ogihttp.ErrorStatusCode("unknown"))

	assert.Equal(t, ogimage.EINVALID, ogihttp.FromErrorStatusCode(http.StatusBadRequest))
	assert.Equal(t, ogimage.EINTERNAL, ogihttp.FromErrorStatusCode(http.StatusTeapot))
}

func TestNewOriginMatcher(t *testing.T) {
	allowed, err := ogihttp.NewOriginMatcher(append(ogihttp.ProductionOrigins, ogihttp.DevelopmentOrigins...))
	require.NoError(t, err)

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://www.chriskrycho.com", true},
		{"https://v5.chriskrycho.com", true},
		{"https://a.b.chriskrycho.com", true},
		{"http://localhost:4200", true},
		{"https://chriskrycho.com", false},
		{"http://www.chriskrycho.com", false},
		{"https://chriskrycho.com.evil.com", false},
		{"https://evil.com/.chriskrycho.com", false},
		{"https://wwwxchriskrycho.com", false},
		{"http://localhost", false},
		{"https://localhost:4200", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, allowed(tt.origin), tt.origin)
	}

	_, err = ogihttp.NewOriginMatcher([]string{"localhost:*"})
	assert.Error(t, err)

	none, err := ogihttp.NewOriginMatcher(nil)
	require.NoError(t, err)
	assert.False(t, none("http://localhost:1"))
}
