package images

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	Background = color.RGBA{30, 30, 40, 255}
	Accent     = color.RGBA{255, 196, 0, 255}
)

const (
	glyphW     = 7
	lineHeight = 15
)

// Placeholder is the card shown for an item whose image could not be generated
func Placeholder(name string, w, h int) *image.RGBA {
	img := solid(w, h, Background)
	Label(img, image.Rect(0, h/3, w, 2*h/3), name, color.White, 4)
	return img
}

// TitleCard shows the topic title over the background
func TitleCard(title string, w, h int) *image.RGBA {
	img := solid(w, h, Background)
	Label(img, image.Rect(0, h/4, w, 3*h/4), title, Accent, 5)
	return img
}

// CTACard closes the video
func CTACard(text string, w, h int) *image.RGBA {
	img := solid(w, h, Background)
	Label(img, image.Rect(0, h/3, w, 2*h/3), text, color.White, 4)
	return img
}

// Label draws word-wrapped, centred text into rect. The text is rendered with
// the 7x13 bitmap face on a canvas scale times smaller, then upscaled.
func Label(dst draw.Image, rect image.Rectangle, text string, fg color.Color, scale int) {
	if scale < 1 {
		scale = 1
	}
	sw, sh := rect.Dx()/scale, rect.Dy()/scale
	if sw < glyphW || sh < lineHeight {
		return
	}
	small := image.NewRGBA(image.Rect(0, 0, sw, sh))

	lines := wrap(text, max((sw-4)/glyphW, 1))
	maxLines := sh / lineHeight
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}

	d := &font.Drawer{Dst: small, Src: image.NewUniform(fg), Face: basicfont.Face7x13}
	top := (sh - len(lines)*lineHeight) / 2
	for i, line := range lines {
		width := d.MeasureString(line).Ceil()
		d.Dot = fixed.P((sw-width)/2, top+(i+1)*lineHeight-3)
		d.DrawString(line)
	}

	draw.ApproxBiLinear.Scale(dst, rect, small, small.Bounds(), draw.Over, nil)
}

// WritePNGFile saves img as a PNG file
func WritePNGFile(path string, img image.Image) error {
	if err := writePNG(path, img); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LoadImage decodes a png, jpeg or webp file
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// wrap splits text into lines of at most width characters, breaking on spaces
func wrap(text string, width int) []string {
	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		for len(word) > width {
			if cur.Len() > 0 {
				lines = append(lines, cur.String())
				cur.Reset()
			}
			lines = append(lines, word[:width])
			word = word[width:]
		}
		switch {
		case cur.Len() == 0:
			cur.WriteString(word)
		case cur.Len()+1+len(word) <= width:
			cur.WriteString(" " + word)
		default:
			lines = append(lines, cur.String())
			cur.Reset()
			cur.WriteString(word)
		}
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
