package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gitlab.com/sympolymathesy/ogimage"
)

// Generic HTTP metrics.
var (
	errorCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ogimage_http_error_count",
		Help: "Total number of errors by error code",
	}, []string{"code"})
)

// Ensure client implements interface.
var _ ogimage.ImageService = (*Client)(nil)

// Client fetches images from a running ogimaged.
type Client struct {
	URL  string
	http *resty.Client
}

// NewClient returns a new instance of Client.
func NewClient(u string) *Client {
	return NewClientWithHTTP(u, http.DefaultClient)
}

// NewClientWithHTTP returns a Client that sends requests through hc.
func NewClientWithHTTP(u string, hc *http.Client) *Client {
	return &Client{URL: strings.TrimSuffix(u, "/"), http: resty.NewWithClient(hc)}
}

// GetOrCreate implements ogimage.ImageService over HTTP.
func (c *Client) GetOrCreate(ctx context.Context, title string) (*ogimage.Image, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParam(PageTitleParam, title).
		Get(c.URL + "/")
	if err != nil {
		return nil, ogimage.WrapError(err, ogimage.ETRANSPORT, "request to %s failed", c.URL)
	}
	if !resp.IsSuccess() {
		return nil, parseResponseError(resp)
	}
	return &ogimage.Image{
		Key:  resp.Header().Get("ETag"),
		Data: resp.Body(),
		Hit:  resp.Header().Get(cacheStatusHeader) == "HIT",
	}, nil
}

// Error prints & optionally logs an error message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	// Extract error code & message.
	code, message := ogimage.ErrorCode(err), ogimage.ErrorMessage(err)
	status := ErrorStatusCode(code)

	// Track metrics by code.
	errorCount.WithLabelValues(code).Inc()

	// Log & report server-side errors.
	if status >= http.StatusInternalServerError {
		ogimage.ReportError(r.Context(), err, r)
		LogError(r, err)
	}

	// Print user message to response based on request accept header.
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(&ErrorResponse{Code: code, Error: message}); err != nil {
			LogError(r, err)
		}
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message + "\n"))
}

// ErrorResponse represents a JSON structure for error output.
type ErrorResponse struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// parseResponseError parses an JSON-formatted error response.
func parseResponseError(resp *resty.Response) error {
	// Parse JSON formatted error response.
	// If not JSON, use the response body as the error message.
	var errorResponse ErrorResponse
	if err := json.Unmarshal(resp.Body(), &errorResponse); err != nil {
		message := strings.TrimSpace(string(resp.Body()))
		if message == "" {
			message = "Empty response from server."
		}
		return ogimage.Errorf(FromErrorStatusCode(resp.StatusCode()), "%s", message)
	}
	code := errorResponse.Code
	if code == "" {
		code = FromErrorStatusCode(resp.StatusCode())
	}
	return ogimage.Errorf(code, "%s", errorResponse.Error)
}

// LogError logs an error with the HTTP route information.
func LogError(r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "http error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.EscapedPath()),
		slog.Any("error", err))
}

// lookup of application error codes to HTTP status codes.
var codes = map[string]int{
	ogimage.EINVALID:     http.StatusBadRequest,
	ogimage.ENOTFOUND:    http.StatusNotFound,
	ogimage.EREMOTE:      http.StatusBadGateway,
	ogimage.ETRANSPORT:   http.StatusBadGateway,
	ogimage.EAUTH:        http.StatusInternalServerError,
	ogimage.EDESERIALIZE: http.StatusInternalServerError,
	ogimage.ETICKET:      http.StatusInternalServerError,
	ogimage.EUPLOAD:      http.StatusInternalServerError,
	ogimage.ERENDER:      http.StatusInternalServerError,
	ogimage.EINTERNAL:    http.StatusInternalServerError,
}

// ErrorStatusCode returns the associated HTTP status code for an ogimage error code.
func ErrorStatusCode(code string) int {
	if v, ok := codes[code]; ok {
		return v
	}
	return http.StatusInternalServerError
}

// FromErrorStatusCode returns the associated ogimage code for an HTTP status
// code. Statuses shared by several codes map to the most general one.
func FromErrorStatusCode(code int) string {
	switch code {
	case http.StatusBadRequest:
		return ogimage.EINVALID
	case http.StatusNotFound:
		return ogimage.ENOTFOUND
	case http.StatusBadGateway:
		return ogimage.EREMOTE
	}
	return ogimage.EINTERNAL
}
