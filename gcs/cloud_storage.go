// Package gcs implements ogimage.ObjectStore on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"

	"cloud.google.com/go/storage"
	pkgerrors "github.com/pkg/errors"
	"gitlab.com/sympolymathesy/ogimage"
	"gitlab.com/sympolymathesy/ogimage/cachekey"
)

// Ensure service implements interface.
var _ ogimage.ObjectStore = (*ObjectStore)(nil)

// ObjectStore stores images in a single Cloud Storage bucket.
type ObjectStore struct {
	GCloudStorage *GCloudStorage
}

// NewObjectStore returns a new instance of ObjectStore.
func NewObjectStore(gcloudStorage *GCloudStorage) *ObjectStore {
	return &ObjectStore{
		GCloudStorage: gcloudStorage,
	}
}

// Authorize implements ogimage.ObjectStore. The storage client manages its
// own tokens, so this only checks that the store is usable.
func (s *ObjectStore) Authorize(ctx context.Context) (ogimage.ObjectSession, error) {
	g := s.GCloudStorage
	if g == nil || g.Bucket == "" || g.ReadObject == nil || g.WriteObject == nil {
		return nil, ogimage.Errorf(ogimage.EAUTH, "gcs storage is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, ogimage.WrapError(err, ogimage.EAUTH, "gcs authorize")
	}
	return &session{gcs: g}, nil
}

type session struct {
	gcs *GCloudStorage
}

func (s *session) Download(ctx context.Context, name string) ([]byte, bool, error) {
	name = cachekey.ObjectName(name)
	data, err := s.gcs.ReadObject(ctx, s.gcs.Bucket, name)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, false, nil
	} else if err != nil {
		err = pkgerrors.Wrapf(err, "read gs://%s/%s", s.gcs.Bucket, name)
		return nil, false, ogimage.WrapError(err, ogimage.EREMOTE, "download %s failed", name)
	}
	return data, true, nil
}

func (s *session) Upload(ctx context.Context, name string, data []byte) error {
	name = cachekey.ObjectName(name)
	if err := s.gcs.WriteObject(ctx, s.gcs.Bucket, name, data); err != nil {
		err = pkgerrors.Wrapf(err, "write gs://%s/%s", s.gcs.Bucket, name)
		return ogimage.WrapError(err, ogimage.EUPLOAD, "upload %s failed", name)
	}
	return nil
}
