// Package b2 implements ogimage.ObjectStore against the Backblaze B2 native
// API.
//
// The protocol has three calls: b2_authorize_account exchanges the account
// credentials for a session, b2_get_upload_url issues a single-use upload
// ticket, and the upload itself is a POST of the raw bytes to the ticket URL.
// Downloads go through the session's download URL by file name.
package b2

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
	"gitlab.com/sympolymathesy/ogimage"
)

const (
	// DefaultAuthURL is the account authorization endpoint host.
	DefaultAuthURL = "https://api.backblazeb2.com"

	// DefaultMaxAttempts bounds the attempts made by a single Upload call.
	DefaultMaxAttempts = 5

	apiPath = "/b2api/v3"

	headerAuthorization = "Authorization"
	headerFileName      = "X-Bz-File-Name"
	headerContentSHA1   = "X-Bz-Content-Sha1"
)

// Ensure client implements interface.
var _ ogimage.ObjectStore = (*Client)(nil)

// Client holds the account credentials and the HTTP transport used for every
// B2 call. It carries no session state; see Authorize.
type Client struct {
	creds       ogimage.Credentials
	http        *resty.Client
	authURL     string
	maxAttempts int
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = resty.NewWithClient(hc)
	}
}

// WithAuthURL overrides DefaultAuthURL.
func WithAuthURL(u string) Option {
	return func(c *Client) {
		c.authURL = u
	}
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.maxAttempts = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient returns a new instance of Client.
func NewClient(creds ogimage.Credentials, opts ...Option) *Client {
	c := &Client{
		creds:       creds,
		authURL:     DefaultAuthURL,
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = resty.New()
	}
	return c
}

// Authorize implements ogimage.ObjectStore.
func (c *Client) Authorize(ctx context.Context) (ogimage.ObjectSession, error) {
	s, err := c.AuthorizeAccount(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// AuthorizeAccount exchanges the credentials for a Session in one round trip.
//
// A connection failure is reported as EAUTH wrapping an ETRANSPORT cause, a
// rejected exchange as EAUTH wrapping the remote *ErrorResponse, and a
// response missing the fields a session needs as EDESERIALIZE.
func (c *Client) AuthorizeAccount(ctx context.Context) (*Session, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.creds.KeyID, c.creds.Key).
		Get(c.authURL + apiPath + "/b2_authorize_account")
	if err != nil {
		requestCount.WithLabelValues("authorize", "error").Inc()
		return nil, ogimage.WrapError(
			ogimage.WrapError(err, ogimage.ETRANSPORT, "authorize account: request failed"),
			ogimage.EAUTH, "authorize account failed")
	}
	requestCount.WithLabelValues("authorize", statusLabel(resp)).Inc()

	if !resp.IsSuccess() {
		return nil, ogimage.WrapError(parseErrorResponse(resp), ogimage.EAUTH,
			"authorize account: status %d", resp.StatusCode())
	}

	var body authorizeResponse
	if err := decode("authorize account", resp.Body(), &body); err != nil {
		return nil, err
	}

	storage := body.APIInfo.StorageAPI
	c.logger.Debug("b2 account authorized",
		slog.String("api_url", storage.APIURL),
		slog.String("bucket", storage.BucketName))

	return &Session{
		APIURL:      storage.APIURL,
		DownloadURL: storage.DownloadURL,
		Token:       body.AuthorizationToken,
		BucketID:    storage.BucketID,
		BucketName:  storage.BucketName,
		client:      c,
	}, nil
}

// authorizeResponse holds only the fields a session needs. Unknown fields are
// ignored; the listed ones are required.
type authorizeResponse struct {
	AuthorizationToken string `json:"authorizationToken" validate:"required"`
	APIInfo            struct {
		StorageAPI struct {
			APIURL      string `json:"apiUrl" validate:"required"`
			DownloadURL string `json:"downloadUrl" validate:"required"`
			BucketID    string `json:"bucketId" validate:"required"`
			BucketName  string `json:"bucketName" validate:"required"`
		} `json:"storageApi"`
	} `json:"apiInfo"`
}

type uploadURLResponse struct {
	UploadURL          string `json:"uploadUrl" validate:"required"`
	AuthorizationToken string `json:"authorizationToken" validate:"required"`
}
