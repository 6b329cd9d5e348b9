package ogimage

import "context"

// ContentType is the declared type of every generated image.
const ContentType = "image/png"

// Image represents a single rendered social-preview image.
type Image struct {
	// Cache key the image is stored under, without the storage namespace.
	Key string

	// Raw PNG bytes.
	Data []byte

	// Hit is true when the image was served from the store rather than rendered.
	Hit bool
}

// Renderer turns a page title into PNG bytes. Implementations must be
// deterministic for identical input and safe for concurrent use.
type Renderer interface {
	Render(ctx context.Context, title string) ([]byte, error)
}

// ImageService represents a service for fetching social-preview images.
type ImageService interface {
	// GetOrCreate returns the stored image for title, rendering and storing
	// it first if it does not exist yet.
	GetOrCreate(ctx context.Context, title string) (*Image, error)
}
