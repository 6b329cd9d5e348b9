package http

import (
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"gitlab.com/sympolymathesy/ogimage"
)

const (
	// PageTitleParam is the query parameter carrying the page title.
	PageTitleParam = "page_title"

	pathTitleVar = "title"

	// CacheControl marks images as immutable: a changed title or build
	// produces a different key.
	CacheControl = "public, max-age=31536000"

	cacheStatusHeader = "X-Cache"
)

// handleImage handles the "GET /" and "GET /{title}" routes. It responds with
// the PNG for the requested page title.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	title, err := pageTitle(r)
	if err != nil {
		Error(w, r, err)
		return
	}

	img, err := s.ImageService.GetOrCreate(r.Context(), title)
	if err != nil {
		Error(w, r, err)
		return
	}

	status := "MISS"
	if img.Hit {
		status = "HIT"
	}

	w.Header().Set("Content-Type", ogimage.ContentType)
	w.Header().Set("Cache-Control", CacheControl)
	w.Header().Set("ETag", img.Key)
	w.Header().Set(cacheStatusHeader, status)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

// pageTitle extracts the title from either the path or the page_title query
// parameter. Exactly one of the two must be present.
func pageTitle(r *http.Request) (string, error) {
	rawPath, inPath := mux.Vars(r)[pathTitleVar]

	query, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return "", ogimage.Errorf(ogimage.EINVALID, "Invalid query string.")
	}
	values, inQuery := query[PageTitleParam]

	switch {
	case inPath && inQuery:
		return "", ogimage.Errorf(ogimage.EINVALID, "Page title given in both path and query.")
	case inPath:
		title, err := url.PathUnescape(rawPath)
		if err != nil {
			return "", ogimage.Errorf(ogimage.EINVALID, "Invalid path encoding.")
		}
		return title, nil
	case inQuery:
		if len(values) != 1 {
			return "", ogimage.Errorf(ogimage.EINVALID, "Page title given more than once.")
		}
		return values[0], nil
	default:
		return "", ogimage.Errorf(ogimage.EINVALID, "No `%s` query param.", PageTitleParam)
	}
}
