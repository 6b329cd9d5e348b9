package render

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

func TestRender(t *testing.T) {
	r := NewRenderer("", "")
	data, err := r.Render(context.Background(), "Tidy First? A Personal Exercise in Empirical Software Design")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Width, img.Bounds().Dx())
	assert.Equal(t, Height, img.Bounds().Dy())

	tests := []struct {
		name string
		x, y int
		want color.Color
	}{
		{"image background", 5, 5, ImageBackground},
		{"bottom right background", Width - 2, Height - 2, ImageBackground},
		{"text background", 40, 700, TextBackground},
		{"left border", 32, 400, BorderColor},
		{"top border", 700, 32, BorderColor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, g, b, a := img.At(tt.x, tt.y).RGBA()
			wr, wg, wb, wa := tt.want.RGBA()
			assert.Equal(t, []uint32{wr, wg, wb, wa}, []uint32{r, g, b, a})
		})
	}
}

func TestRender_Defaults(t *testing.T) {
	r := NewRenderer("", "")
	assert.Equal(t, DefaultSiteTitle, r.SiteTitle)
	assert.Equal(t, DefaultAuthor, r.Author)

	r = NewRenderer("Elsewhere", "Someone")
	assert.Equal(t, "Elsewhere", r.SiteTitle)
	assert.Equal(t, "Someone", r.Author)
}

func TestRender_Deterministic(t *testing.T) {
	r := NewRenderer("", "")
	a, err := r.Render(context.Background(), "Same title")
	require.NoError(t, err)
	b, err := r.Render(context.Background(), "Same title")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := r.Render(context.Background(), "Other title")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestRender_SiteTitleChangesOutput(t *testing.T) {
	a, err := NewRenderer("", "").Render(context.Background(), "t")
	require.NoError(t, err)
	b, err := NewRenderer("Another Site", "").Render(context.Background(), "t")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRender_EmptyTitle(t *testing.T) {
	data, err := NewRenderer("", "").Render(context.Background(), "")
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}

func TestRender_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRenderer("", "").Render(ctx, "t")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRender_Concurrent(t *testing.T) {
	r := NewRenderer("", "")
	want, err := r.Render(context.Background(), "Concurrent")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Render(context.Background(), "Concurrent")
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestWrapLines(t *testing.T) {
	fs, err := loadFonts()
	require.NoError(t, err)
	f, err := fs.newFaces()
	require.NoError(t, err)
	defer f.Close()

	face := f.title
	width := fixed.I(titleWidth)

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, wrapLines(face, "", width))
		assert.Empty(t, wrapLines(face, "   ", width))
	})

	t.Run("short title is one line", func(t *testing.T) {
		assert.Equal(t, []string{"Hello world"}, wrapLines(face, "Hello  world", width))
	})

	t.Run("long title wraps within width", func(t *testing.T) {
		title := strings.Repeat("wrap these words ", 12)
		lines := wrapLines(face, title, width)
		require.Greater(t, len(lines), 1)
		for _, line := range lines {
			assert.LessOrEqual(t, font.MeasureString(face, line), width, line)
		}
		assert.Equal(t, strings.Fields(title), strings.Fields(strings.Join(lines, " ")))
	})

	t.Run("oversized word keeps its own line", func(t *testing.T) {
		long := strings.Repeat("W", 60)
		assert.Equal(t, []string{"a", long, "b"}, wrapLines(face, "a "+long+" b", width))
	})
}
