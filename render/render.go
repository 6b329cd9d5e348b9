// Package render draws the social preview card for a page title and encodes
// it as PNG.
package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"

	"gitlab.com/sympolymathesy/ogimage"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Defaults for the text drawn beneath the page title.
const (
	DefaultSiteTitle = "Sym·poly·mathesy"
	DefaultAuthor    = "Chris Krycho"
)

// Canvas size in pixels.
const (
	Width  = 1528
	Height = 800
)

// Layout. Positions are the top left of the text box.
const (
	insetX, insetY          = 32, 32
	insetWidth, insetHeight = 1464, 736
	borderWidth             = 3

	titleX, titleY = 56, 56
	titleWidth     = 1416
	titleSize      = 90

	siteX, siteY = 56, 527
	siteSize     = 132

	authorX, authorY = 795, 662
	authorSize       = 90
)

var (
	ImageBackground = color.RGBA{R: 241, G: 242, B: 244, A: 255}
	TextBackground  = color.RGBA{R: 252, G: 252, B: 253, A: 255}
	BorderColor     = color.RGBA{R: 171, G: 175, B: 186, A: 255}
	TitleColor      = color.RGBA{R: 34, G: 37, B: 42, A: 255}
	SiteColor       = color.RGBA{R: 13, G: 89, B: 156, A: 255}
	AuthorColor     = color.RGBA{R: 34, G: 37, B: 42, A: 255}
)

// Ensure renderer implements interface.
var _ ogimage.Renderer = (*Renderer)(nil)

// Renderer draws preview cards. It is safe for concurrent use.
type Renderer struct {
	SiteTitle string
	Author    string
}

// NewRenderer returns a Renderer. Empty arguments fall back to the defaults.
func NewRenderer(siteTitle, author string) *Renderer {
	if siteTitle == "" {
		siteTitle = DefaultSiteTitle
	}
	if author == "" {
		author = DefaultAuthor
	}
	return &Renderer{SiteTitle: siteTitle, Author: author}
}

// Render implements ogimage.Renderer. The output depends only on title and
// the renderer's fields.
func (r *Renderer) Render(ctx context.Context, title string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fonts, err := loadFonts()
	if err != nil {
		return nil, err
	}
	faces, err := fonts.newFaces()
	if err != nil {
		return nil, err
	}
	defer faces.Close()

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(ImageBackground), image.Point{}, draw.Src)
	drawInset(img)

	d := &font.Drawer{Dst: img}

	d.Src = image.NewUniform(AuthorColor)
	d.Face = faces.authorItalic
	d.Dot = fixed.P(authorX, authorY+faces.authorItalic.Metrics().Ascent.Ceil())
	d.DrawString("by")
	d.Face = faces.author
	d.DrawString(" " + r.Author)

	d.Src = image.NewUniform(SiteColor)
	d.Face = faces.site
	d.Dot = fixed.P(siteX, siteY+faces.site.Metrics().Ascent.Ceil())
	d.DrawString(r.SiteTitle)

	d.Src = image.NewUniform(TitleColor)
	d.Face = faces.title
	m := faces.title.Metrics()
	baseline := titleY + m.Ascent.Ceil()
	for _, line := range wrapLines(faces.title, title, fixed.I(titleWidth)) {
		d.Dot = fixed.P(titleX, baseline)
		d.DrawString(line)
		baseline += m.Height.Ceil()
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, ogimage.WrapError(err, ogimage.ERENDER, "encode png")
	}
	return buf.Bytes(), nil
}

// drawInset fills the text panel and strokes its border centered on the
// panel edge, so the stroke extends one pixel outside it.
func drawInset(dst draw.Image) {
	outer := image.Rect(insetX, insetY, insetX+insetWidth, insetY+insetHeight).Inset(-borderWidth / 2)
	inner := outer.Inset(borderWidth)
	draw.Draw(dst, outer, image.NewUniform(BorderColor), image.Point{}, draw.Src)
	draw.Draw(dst, inner, image.NewUniform(TextBackground), image.Point{}, draw.Src)
}

// wrapLines breaks text at spaces so each line fits within width. A single
// word wider than width gets a line of its own.
func wrapLines(face font.Face, text string, width fixed.Int26_6) []string {
	var lines []string
	var line string
	for _, word := range strings.Fields(text) {
		if line == "" {
			line = word
			continue
		}
		if font.MeasureString(face, line+" "+word) <= width {
			line += " " + word
			continue
		}
		lines = append(lines, line)
		line = word
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

type fontSet struct {
	title        *opentype.Font
	site         *opentype.Font
	author       *opentype.Font
	authorItalic *opentype.Font
}

var (
	fontsOnce sync.Once
	fonts     *fontSet
	fontsErr  error
)

// loadFonts parses the embedded fonts on first use. Parsed fonts are
// read-only and shared between renders.
func loadFonts() (*fontSet, error) {
	fontsOnce.Do(func() {
		var fs fontSet
		for _, f := range []struct {
			dst  **opentype.Font
			name string
			data []byte
		}{
			{&fs.title, "bold italic", gobolditalic.TTF},
			{&fs.site, "bold", gobold.TTF},
			{&fs.author, "regular", goregular.TTF},
			{&fs.authorItalic, "italic", goitalic.TTF},
		} {
			parsed, err := opentype.Parse(f.data)
			if err != nil {
				fontsErr = ogimage.WrapError(err, ogimage.ERENDER, "parse %s font", f.name)
				return
			}
			*f.dst = parsed
		}
		fonts = &fs
	})
	return fonts, fontsErr
}

// faces are sized font instances. A face caches glyphs and must not be
// shared between goroutines.
type faces struct {
	title        font.Face
	site         font.Face
	author       font.Face
	authorItalic font.Face
}

func (fs *fontSet) newFaces() (*faces, error) {
	var out faces
	for _, f := range []struct {
		dst  *font.Face
		font *opentype.Font
		size float64
	}{
		{&out.title, fs.title, titleSize},
		{&out.site, fs.site, siteSize},
		{&out.author, fs.author, authorSize},
		{&out.authorItalic, fs.authorItalic, authorSize},
	} {
		face, err := opentype.NewFace(f.font, &opentype.FaceOptions{
			Size:    f.size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			out.Close()
			return nil, ogimage.WrapError(err, ogimage.ERENDER, "create %v pt face", f.size)
		}
		*f.dst = face
	}
	return &out, nil
}

func (f *faces) Close() {
	for _, face := range []font.Face{f.title, f.site, f.author, f.authorItalic} {
		if face != nil {
			face.Close()
		}
	}
}
