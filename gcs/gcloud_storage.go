package gcs

import (
	"context"
	"crypto/md5"
	"errors"
	"io"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	pkgerrors "github.com/pkg/errors"
	"gitlab.com/sympolymathesy/ogimage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ReadObject returns the contents of bucket/name.
type ReadObject func(ctx context.Context, bucket, name string) ([]byte, error)

// WriteObject stores data as bucket/name.
type WriteObject func(ctx context.Context, bucket, name string, data []byte) error

// GCloudStorage is a thin handle over a Cloud Storage client. The object
// calls are fields so tests can replace them.
type GCloudStorage struct {
	Client      *storage.Client
	Bucket      string
	ReadObject  ReadObject
	WriteObject WriteObject
}

// NewGCloudStorage connects to Cloud Storage. Without a credentials file the
// client falls back to Application Default Credentials.
func NewGCloudStorage(ctx context.Context, bucket, credentialsFile string) (*GCloudStorage, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		jsonKey, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "read gcs credentials")
		}
		creds, err := google.CredentialsFromJSON(ctx, jsonKey, storage.ScopeReadWrite)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "google.CredentialsFromJSON")
		}
		opts = append(opts, option.WithCredentials(creds))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage.NewClient")
	}

	gcs := &GCloudStorage{Client: client, Bucket: bucket}
	gcs.ReadObject = gcs.readObject
	gcs.WriteObject = gcs.writeObject
	return gcs, nil
}

// Close closes the underlying client.
func (g *GCloudStorage) Close() error {
	if g.Client == nil {
		return nil
	}
	return g.Client.Close()
}

func (g *GCloudStorage) readObject(ctx context.Context, bucket, name string) ([]byte, error) {
	r, err := g.Client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// writeObject only creates objects. Losing the race to a concurrent writer
// is success since keys are content-addressed.
func (g *GCloudStorage) writeObject(ctx context.Context, bucket, name string, data []byte) error {
	obj := g.Client.Bucket(bucket).Object(name).If(storage.Conditions{DoesNotExist: true})

	w := obj.NewWriter(ctx)
	w.ContentType = ogimage.ContentType
	sum := md5.Sum(data)
	w.MD5 = sum[:]

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return nil
		}
		return err
	}
	return nil
}
