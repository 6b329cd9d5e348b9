package ogimage

import (
	"context"
	"log/slog"
)

// Credentials is an opaque key-id/key pair for the remote object store.
// It is supplied once at process start and never logged.
type Credentials struct {
	KeyID string
	Key   string
}

// String redacts the key.
func (c Credentials) String() string {
	return "Credentials{KeyID: " + c.KeyID + ", Key: [REDACTED]}"
}

// GoString redacts the key for %#v.
func (c Credentials) GoString() string {
	return c.String()
}

// LogValue redacts the key in structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("key_id", c.KeyID),
		slog.String("key", "[REDACTED]"),
	)
}

// IsZero reports whether neither half of the pair is set.
func (c Credentials) IsZero() bool {
	return c.KeyID == "" && c.Key == ""
}

// ObjectStore authorizes sessions against a remote object store.
type ObjectStore interface {
	// Authorize exchanges the store's credentials for a session. Each call
	// performs a fresh exchange.
	Authorize(ctx context.Context) (ObjectSession, error)
}

// ObjectSession is an authorized handle on a single storage container.
type ObjectSession interface {
	// Download returns the object stored under name. A missing object is
	// reported as found == false with a nil error.
	Download(ctx context.Context, name string) (data []byte, found bool, err error)

	// Upload stores data under name as a PNG image.
	Upload(ctx context.Context, name string, data []byte) error
}
