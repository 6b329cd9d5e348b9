package http

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/sympolymathesy/ogimage"
	"golang.org/x/crypto/acme/autocert"
)

// Generic HTTP metrics.
var (
	requestCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ogimage_http_request_count",
		Help: "Total number of requests by route",
	}, []string{"method", "path"})

	requestSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ogimage_http_request_seconds",
		Help: "Total amount of request time by route, in seconds",
	}, []string{"method", "path"})
)

// ShutdownTimeout is the time given for outstanding requests to finish before shutdown.
const ShutdownTimeout = 5 * time.Second

// Server represents an HTTP server. It is meant to wrap all HTTP functionality
// used by the application so that dependent packages (such as cmd/ogimaged) do
// not need to reference the "net/http" package at all.
type Server struct {
	ln     net.Listener
	server *http.Server
	router *mux.Router

	// Bind address & domain for the server's listener.
	// If domain is specified, server is run on TLS using acme/autocert.
	Addr   string
	Domain string

	// Origin patterns allowed to make cross-origin requests. A "*" matches
	// one or more host or port characters, e.g. "https://*.example.com".
	AllowedOrigins []string

	Logger *slog.Logger

	// Services used by the various HTTP routes.
	ImageService ogimage.ImageService
}

// NewServer returns a new instance of Server.
func NewServer() *Server {
	// Create a new server that wraps the net/http server & add a gorilla router.
	// Titles arrive percent-encoded in the path, so match on the raw path and
	// keep empty or dot segments.
	s := &Server{
		server: &http.Server{ReadHeaderTimeout: 10 * time.Second},
		router: mux.NewRouter().UseEncodedPath().SkipClean(true),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	// Report panics to external service.
	s.router.Use(reportPanic)
	s.router.Use(trackMetrics)

	s.router.HandleFunc("/", s.handleImage).Methods("GET")
	s.router.HandleFunc("/{"+pathTitleVar+":.+}", s.handleImage).Methods("GET")

	return s
}

// Handler returns the server's request handler with CORS and request logging
// applied. Settings on s must be final before calling it.
func (s *Server) Handler() (http.Handler, error) {
	allowed, err := NewOriginMatcher(s.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	cors := handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet}),
		handlers.AllowedOriginValidator(allowed),
		handlers.ExposedHeaders([]string{"ETag", cacheStatusHeader}),
	)
	return handlers.CustomLoggingHandler(io.Discard, cors(s.router), s.logRequest), nil
}

// UseTLS returns true if a domain is specified.
func (s *Server) UseTLS() bool {
	return s.Domain != ""
}

// Scheme returns the URL scheme for the server.
func (s *Server) Scheme() string {
	if s.UseTLS() {
		return "https"
	}
	return "http"
}

// Port returns the TCP port for the running server.
// This is useful in tests where we allocate a random port by using ":0".
func (s *Server) Port() int {
	if s.ln == nil {
		return 0
	}
	return s.ln.Addr().(*net.TCPAddr).Port
}

// URL returns the local base URL of the running server.
func (s *Server) URL() string {
	scheme, port := s.Scheme(), s.Port()

	// Use localhost unless a domain is specified.
	domain := "localhost"
	if s.Domain != "" {
		domain = s.Domain
	}

	// Return without port if using standard ports.
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", s.Scheme(), domain)
	}
	return fmt.Sprintf("%s://%s:%d", s.Scheme(), domain, s.Port())
}

// Open validates the server options and begins listening on the bind address.
func (s *Server) Open() (err error) {
	if s.ImageService == nil {
		return fmt.Errorf("image service required")
	}
	if s.server.Handler, err = s.Handler(); err != nil {
		return err
	}

	// Open a listener on our bind address.
	if s.Domain != "" {
		s.ln = autocert.NewListener(s.Domain)
	} else {
		if s.ln, err = net.Listen("tcp", s.Addr); err != nil {
			return err
		}
	}

	// Begin serving requests on the listener. We use Serve() instead of
	// ListenAndServe() because it allows us to check for listen errors (such
	// as trying to use an already open port) synchronously.
	go s.server.Serve(s.ln)

	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// logRequest writes one structured log line per request.
func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	level := slog.LevelInfo
	if p.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.Logger.Log(p.Request.Context(), level, "http request",
		slog.String("method", p.Request.Method),
		slog.String("path", p.URL.EscapedPath()),
		slog.Int("status", p.StatusCode),
		slog.Int("bytes", p.Size),
		slog.Duration("elapsed", time.Since(p.TimeStamp)),
	)
}

// trackMetrics is middleware for tracking the request count and timing per route.
func trackMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Obtain path template & start time of request.
		t := time.Now()
		tmpl := requestPathTemplate(r)

		// Delegate to next handler in middleware chain.
		next.ServeHTTP(w, r)

		if tmpl != "" {
			requestCount.WithLabelValues(r.Method, tmpl).Inc()
			requestSeconds.WithLabelValues(r.Method, tmpl).Add(time.Since(t).Seconds())
		}
	})
}

// requestPathTemplate returns the route path template for r.
func requestPathTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tmpl, _ := route.GetPathTemplate()
	return tmpl
}

// reportPanic is middleware for catching panics and reporting them.
func reportPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				ogimage.ReportPanic(err)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// handleVersion displays the deployed version and build identifier.
func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "version=%s build=%s\n", ogimage.Version, ogimage.BuildID())
}

// ListenAndServeTLSRedirect runs an HTTP server on port 80 to redirect users
// to the TLS-enabled port 443 server.
func ListenAndServeTLSRedirect(domain string) error {
	return http.ListenAndServe(":80", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://"+domain+r.URL.RequestURI(), http.StatusFound)
	}))
}

// DebugHandler serves /metrics and /version.
func DebugHandler() http.Handler {
	h := http.NewServeMux()
	h.Handle("/metrics", promhttp.Handler())
	h.HandleFunc("/version", handleVersion)
	return h
}

// ListenAndServeDebug runs an HTTP server with debug endpoints on addr.
func ListenAndServeDebug(addr string) error {
	return http.ListenAndServe(addr, DebugHandler())
}
