package b2

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"gitlab.com/sympolymathesy/ogimage"
	"gitlab.com/sympolymathesy/ogimage/cachekey"
)

// Ensure session implements interface.
var _ ogimage.ObjectSession = (*Session)(nil)

// Session is an authorized handle on a single bucket. It is valid for the
// operation that created it; token expiry is not tracked.
type Session struct {
	APIURL      string
	DownloadURL string
	Token       string
	BucketID    string
	BucketName  string

	client *Client
}

// LogValue keeps the bearer token out of logs.
func (s *Session) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("api_url", s.APIURL),
		slog.String("bucket_id", s.BucketID),
		slog.String("bucket_name", s.BucketName),
	)
}

// uploadTicket is a single-use upload URL and its token.
type uploadTicket struct {
	URL   string
	Token string
}

// Download fetches the object under name. A 404 means the object does not
// exist and is not an error. Downloads are never retried.
func (s *Session) Download(ctx context.Context, name string) ([]byte, bool, error) {
	name = cachekey.ObjectName(name)
	u := s.DownloadURL + "/file/" + url.PathEscape(s.BucketName) + "/" + escapeFileName(name)

	resp, err := s.client.http.R().
		SetContext(ctx).
		SetHeader(headerAuthorization, s.Token).
		Get(u)
	if err != nil {
		requestCount.WithLabelValues("download", "error").Inc()
		return nil, false, ogimage.WrapError(err, ogimage.ETRANSPORT, "download %s: request failed", name)
	}
	requestCount.WithLabelValues("download", statusLabel(resp)).Inc()

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, false, nil
	case !resp.IsSuccess():
		return nil, false, ogimage.WrapError(parseErrorResponse(resp), ogimage.EREMOTE,
			"download %s: status %d", name, resp.StatusCode())
	}
	return resp.Body(), true, nil
}

// Upload stores data under name.
//
// Every attempt requests a fresh upload ticket. Failing to get a ticket aborts
// the call immediately; a rejected or failed send is recorded and retried
// until the attempts run out, at which point the latest failure is returned
// as EUPLOAD.
func (s *Session) Upload(ctx context.Context, name string, data []byte) error {
	name = cachekey.ObjectName(name)
	digest := sha1Hex(data)
	logger := s.client.logger.With(slog.String("file", name))

	var latest error
	attempts := 0
	for attempts < s.client.maxAttempts {
		attempts++

		ticket, err := s.uploadTicket(ctx)
		if err != nil {
			return err
		}

		latest = s.send(ctx, ticket, name, digest, data)
		if latest == nil {
			uploadAttemptCount.WithLabelValues("success").Inc()
			logger.Info("b2 upload complete", slog.Int("attempt", attempts), slog.Int("bytes", len(data)))
			return nil
		}
		uploadAttemptCount.WithLabelValues("failure").Inc()
		logger.Warn("b2 upload attempt failed", slog.Int("attempt", attempts), slog.Any("error", latest))

		if ctx.Err() != nil {
			break
		}
	}

	if latest == nil {
		return ogimage.Errorf(ogimage.EUPLOAD, "upload %s: no attempt was made", name)
	}
	return ogimage.WrapError(latest, ogimage.EUPLOAD, "upload %s: failed after %d attempts", name, attempts)
}

func (s *Session) uploadTicket(ctx context.Context) (*uploadTicket, error) {
	resp, err := s.client.http.R().
		SetContext(ctx).
		SetHeader(headerAuthorization, s.Token).
		SetQueryParam("bucketId", s.BucketID).
		Get(s.APIURL + apiPath + "/b2_get_upload_url")
	if err != nil {
		requestCount.WithLabelValues("get_upload_url", "error").Inc()
		return nil, ogimage.WrapError(
			ogimage.WrapError(err, ogimage.ETRANSPORT, "get upload url: request failed"),
			ogimage.ETICKET, "get upload url failed")
	}
	requestCount.WithLabelValues("get_upload_url", statusLabel(resp)).Inc()

	if !resp.IsSuccess() {
		return nil, ogimage.WrapError(parseErrorResponse(resp), ogimage.ETICKET,
			"get upload url: status %d", resp.StatusCode())
	}

	var body uploadURLResponse
	if err := decode("get upload url", resp.Body(), &body); err != nil {
		return nil, err
	}
	return &uploadTicket{URL: body.UploadURL, Token: body.AuthorizationToken}, nil
}

// send performs one upload attempt. A nil return means the store accepted
// the file.
func (s *Session) send(ctx context.Context, ticket *uploadTicket, name, digest string, data []byte) error {
	resp, err := s.client.http.R().
		SetContext(ctx).
		SetHeader(headerAuthorization, ticket.Token).
		SetHeader(headerFileName, escapeFileName(name)).
		SetHeader("Content-Type", ogimage.ContentType).
		SetHeader(headerContentSHA1, digest).
		SetContentLength(true).
		SetBody(data).
		Post(ticket.URL)
	if err != nil {
		requestCount.WithLabelValues("upload", "error").Inc()
		return ogimage.WrapError(err, ogimage.ETRANSPORT, "upload %s: request failed", name)
	}
	requestCount.WithLabelValues("upload", statusLabel(resp)).Inc()

	if resp.IsSuccess() {
		return nil
	}
	return parseErrorResponse(resp)
}

// escapeFileName percent-encodes each path segment of a B2 file name,
// keeping the "/" separators.
func escapeFileName(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}
