package s3store_test

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/sympolymathesy/ogimage"
	"gitlab.com/sympolymathesy/ogimage/s3store"
)

// fakeAPI is an in-memory bucket.
type fakeAPI struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	getErr  error
	putErr  error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: make(map[string][]byte)}
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	d, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(d))}, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts = append(f.puts, in)
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func authorize(t *testing.T, s *s3store.Store) ogimage.ObjectSession {
	t.Helper()
	session, err := s.Authorize(context.Background())
	require.NoError(t, err)
	return session
}

func TestStore_UploadDownload(t *testing.T) {
	api := newFakeAPI()
	session := authorize(t, s3store.NewWithAPI(api, "images"))

	_, found, err := session.Download(context.Background(), "k.png")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, session.Upload(context.Background(), "k.png", []byte("png")))

	require.Len(t, api.puts, 1)
	put := api.puts[0]
	assert.Equal(t, "opengraph/k.png", aws.ToString(put.Key))
	assert.Equal(t, ogimage.ContentType, aws.ToString(put.ContentType))
	assert.Equal(t, int64(3), aws.ToInt64(put.ContentLength))
	sum := md5.Sum([]byte("png"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), aws.ToString(put.ContentMD5))

	data, found, err := session.Download(context.Background(), "k.png")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("png"), data)
}

func TestStore_Errors(t *testing.T) {
	t.Run("bare not found is a miss", func(t *testing.T) {
		api := newFakeAPI()
		api.getErr = fmt.Errorf("operation error S3: GetObject: %w", &types.NotFound{})
		_, found, err := authorize(t, s3store.NewWithAPI(api, "images")).Download(context.Background(), "k.png")
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("get failure", func(t *testing.T) {
		api := newFakeAPI()
		api.getErr = errors.New("AccessDenied")
		_, _, err := authorize(t, s3store.NewWithAPI(api, "images")).Download(context.Background(), "k.png")
		assert.Equal(t, ogimage.EREMOTE, ogimage.ErrorCode(err))
	})

	t.Run("put failure", func(t *testing.T) {
		api := newFakeAPI()
		api.putErr = errors.New("SlowDown")
		err := authorize(t, s3store.NewWithAPI(api, "images")).Upload(context.Background(), "k.png", []byte("x"))
		assert.Equal(t, ogimage.EUPLOAD, ogimage.ErrorCode(err))
	})

	t.Run("unconfigured", func(t *testing.T) {
		_, err := s3store.NewWithAPI(newFakeAPI(), "").Authorize(context.Background())
		assert.Equal(t, ogimage.EAUTH, ogimage.ErrorCode(err))
	})
}

func TestNew(t *testing.T) {
	s, err := s3store.New(context.Background(), s3store.Config{
		Region:         "us-west-004",
		Bucket:         "images",
		Endpoint:       "https://s3.us-west-004.backblazeb2.com",
		Credentials:    ogimage.Credentials{KeyID: "id", Key: "secret"},
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	_, err = s.Authorize(context.Background())
	assert.NoError(t, err)
}
