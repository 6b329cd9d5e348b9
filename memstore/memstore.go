// Package memstore is an in-memory ogimage.ObjectStore for local runs and
// tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"gitlab.com/sympolymathesy/ogimage"
)

// Ensure store implements interface.
var _ ogimage.ObjectStore = (*Store)(nil)

// Store keeps objects in a map. It is safe for concurrent use.
type Store struct {
	mu             sync.RWMutex
	objects        map[string][]byte
	authorizations int
	writes         int
	failUploads    int

	// AuthorizeErr, when set, is returned by every Authorize call.
	AuthorizeErr error
}

// New returns an empty Store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Authorize implements ogimage.ObjectStore.
func (s *Store) Authorize(_ context.Context) (ogimage.ObjectSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorizations++
	if s.AuthorizeErr != nil {
		return nil, s.AuthorizeErr
	}
	return &session{store: s}, nil
}

// Seed stores data under name without counting it as a write.
func (s *Store) Seed(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = copyBytes(data)
}

// Object returns the data stored under name.
func (s *Store) Object(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.objects[name]
	if !ok {
		return nil, false
	}
	return copyBytes(d), true
}

// Names returns the stored object names in order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.objects))
	for k := range s.objects {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Writes returns the number of successful uploads.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Authorizations returns the number of Authorize calls.
func (s *Store) Authorizations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authorizations
}

// FailUploads makes the next n uploads fail with EUPLOAD.
func (s *Store) FailUploads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUploads = n
}

type session struct {
	store *Store
}

func (ss *session) Download(ctx context.Context, name string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, ogimage.WrapError(err, ogimage.ETRANSPORT, "download %s", name)
	}
	d, ok := ss.store.Object(name)
	return d, ok, nil
}

func (ss *session) Upload(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return ogimage.WrapError(err, ogimage.ETRANSPORT, "upload %s", name)
	}

	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUploads > 0 {
		s.failUploads--
		return ogimage.Errorf(ogimage.EUPLOAD, "upload %s: injected failure", name)
	}
	s.objects[name] = copyBytes(data)
	s.writes++
	return nil
}

func copyBytes(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
