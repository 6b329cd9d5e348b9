// Package fakeb2 runs an in-process server speaking the subset of the B2
// native API used by package b2. Tests use it to observe what actually
// reached the store.
package fakeb2

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"gitlab.com/sympolymathesy/ogimage"
	"gitlab.com/sympolymathesy/ogimage/b2"
)

const (
	BucketID     = "fake-bucket-id"
	BucketName   = "fake-bucket"
	AccountToken = "fake-account-token"
)

// Server is a fake B2 endpoint backed by a map.
type Server struct {
	*httptest.Server

	Credentials ogimage.Credentials

	mu             sync.Mutex
	objects        map[string][]byte
	tickets        map[string]bool
	nextTicket     int
	authorizations int
	attempts       int
	writes         int
	failUploads    int
	failTickets    int
}

// NewServer starts a fake accepting creds. Callers must Close it.
func NewServer(creds ogimage.Credentials) *Server {
	s := &Server{
		Credentials: creds,
		objects:     make(map[string][]byte),
		tickets:     make(map[string]bool),
	}

	r := mux.NewRouter()
	r.HandleFunc("/b2api/v3/b2_authorize_account", s.handleAuthorize).Methods("GET")
	r.HandleFunc("/b2api/v3/b2_get_upload_url", s.handleGetUploadURL).Methods("GET")
	r.HandleFunc("/b2api/v3/b2_upload_file/{bucket}/{ticket}", s.handleUpload).Methods("POST")
	r.HandleFunc("/file/{bucket}/{name:.+}", s.handleDownload).Methods("GET")

	s.Server = httptest.NewServer(r)
	return s
}

// NewClient returns a b2.Client pointed at the fake.
func (s *Server) NewClient(opts ...b2.Option) *b2.Client {
	opts = append([]b2.Option{b2.WithHTTPClient(s.Server.Client()), b2.WithAuthURL(s.URL)}, opts...)
	return b2.NewClient(s.Credentials, opts...)
}

// Seed stores an object without counting it as a write.
func (s *Server) Seed(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = append([]byte(nil), data...)
}

// Object returns the stored object under name.
func (s *Server) Object(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.objects[name]
	return append([]byte(nil), d...), ok
}

// FailUploads makes the next n upload attempts fail with 503.
func (s *Server) FailUploads(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUploads = n
}

// FailTickets makes the next n get-upload-url calls fail with 503.
func (s *Server) FailTickets(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failTickets = n
}

// Authorizations returns the number of successful account authorizations.
func (s *Server) Authorizations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorizations
}

// Attempts returns the number of upload requests received.
func (s *Server) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Writes returns the number of accepted uploads.
func (s *Server) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(s.Credentials.KeyID+":"+s.Credentials.Key))
	if r.Header.Get("Authorization") != want {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	s.mu.Lock()
	s.authorizations++
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accountId": "fake-account",
		"apiInfo": map[string]interface{}{
			"storageApi": map[string]interface{}{
				"apiUrl":      s.URL,
				"downloadUrl": s.URL,
				"bucketId":    BucketID,
				"bucketName":  BucketName,
				"infoType":    "storageApi",
			},
		},
		"authorizationToken": AccountToken,
	})
}

func (s *Server) handleGetUploadURL(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != AccountToken {
		writeError(w, http.StatusUnauthorized, "bad_auth_token", "")
		return
	}
	if r.URL.Query().Get("bucketId") != BucketID {
		writeError(w, http.StatusBadRequest, "bad_request", "unknown bucket")
		return
	}

	s.mu.Lock()
	if s.failTickets > 0 {
		s.failTickets--
		s.mu.Unlock()
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "no tomes available")
		return
	}
	s.nextTicket++
	ticket := strconv.Itoa(s.nextTicket)
	token := "upload-token-" + ticket
	s.tickets[token] = true
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"bucketId":           BucketID,
		"uploadUrl":          s.URL + "/b2api/v3/b2_upload_file/" + BucketID + "/" + ticket,
		"authorizationToken": token,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++

	token := r.Header.Get("Authorization")
	if !s.tickets[token] {
		writeError(w, http.StatusUnauthorized, "bad_auth_token", "upload token is not valid")
		return
	}
	// Tickets are single use.
	delete(s.tickets, token)

	if r.Header.Get("Content-Type") != ogimage.ContentType {
		writeError(w, http.StatusBadRequest, "bad_request", "unexpected content type")
		return
	}
	if r.ContentLength != int64(len(body)) {
		writeError(w, http.StatusBadRequest, "bad_request", "content length mismatch")
		return
	}
	sum := sha1.Sum(body)
	if r.Header.Get("X-Bz-Content-Sha1") != hex.EncodeToString(sum[:]) {
		writeError(w, http.StatusBadRequest, "bad_request", "sha1 did not match data received")
		return
	}
	name, err := url.PathUnescape(r.Header.Get("X-Bz-File-Name"))
	if err != nil || name == "" || strings.HasPrefix(name, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid file name")
		return
	}

	if s.failUploads > 0 {
		s.failUploads--
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "c001 too busy")
		return
	}

	s.objects[name] = body
	s.writes++
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bucketId":      BucketID,
		"contentLength": len(body),
		"contentSha1":   hex.EncodeToString(sum[:]),
		"contentType":   ogimage.ContentType,
		"fileName":      name,
		"fileId":        fmt.Sprintf("fake-file-%d", s.writes),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != AccountToken {
		writeError(w, http.StatusUnauthorized, "bad_auth_token", "")
		return
	}
	vars := mux.Vars(r)
	if vars["bucket"] != BucketName {
		writeError(w, http.StatusNotFound, "not_found", "bucket does not exist")
		return
	}

	data, ok := s.Object(vars["name"])
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "File with such name does not exist.")
		return
	}
	w.Header().Set("Content-Type", ogimage.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"status":  status,
		"code":    code,
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
