package render

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"golang.org/x/image/draw"

	images "toppers-pipeline/03_images"
	"toppers-pipeline/types"
)

// composeFrames draws one full-resolution still per segment and records it
// as the segment's VisualRef. Ranks without a generated image get a placeholder.
func (a *Assembler) composeFrames(tl *types.Timeline, topic types.Topic, slides []types.SlideAsset, dir string) error {
	w, h := a.cfg.Video.Width, a.cfg.Video.Height
	byRank := make(map[int]types.SlideAsset, len(slides))
	for _, s := range slides {
		byRank[s.Rank] = s
	}

	for i := range tl.Segments {
		seg := &tl.Segments[i]
		var frame *image.RGBA

		switch seg.Kind {
		case types.SegmentTitle:
			frame = images.TitleCard(topic.Title, w, h)
		case types.SegmentCTA:
			frame = images.CTACard(seg.Narration, w, h)
		default:
			slide, ok := byRank[seg.Rank]
			if ok && slide.Status == types.SlideGenerated {
				src, err := images.LoadImage(slide.ImagePath)
				if err != nil {
					log.WithError(err).WithField("rank", seg.Rank).Warn("Slide unreadable, using placeholder")
				} else {
					frame = coverScale(src, w, h)
				}
			}
			name := slide.Name
			if frame == nil {
				frame = images.Placeholder(name, w, h)
			}
			drawBanner(frame, fmt.Sprintf("#%d %s", seg.Rank, name))
		}

		path := filepath.Join(dir, fmt.Sprintf("frame_%02d.png", i))
		if err := images.WritePNGFile(path, frame); err != nil {
			return err
		}
		seg.VisualRef = path
	}
	return nil
}

// coverScale fills w x h with src, cropping the overflow around the centre
func coverScale(src image.Image, w, h int) *image.RGBA {
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()

	// crop the source to the target aspect ratio
	crop := sb
	if sw*h > sh*w {
		cw := sh * w / h
		crop.Min.X = sb.Min.X + (sw-cw)/2
		crop.Max.X = crop.Min.X + cw
	} else {
		ch := sw * h / w
		crop.Min.Y = sb.Min.Y + (sh-ch)/2
		crop.Max.Y = crop.Min.Y + ch
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}

// drawBanner darkens a band near the bottom and writes the rank label on it
func drawBanner(img *image.RGBA, text string) {
	b := img.Bounds()
	band := image.Rect(0, b.Dy()*76/100, b.Dx(), b.Dy()*88/100)
	draw.Draw(img, band, image.NewUniform(color.RGBA{0, 0, 0, 170}), image.Point{}, draw.Over)
	images.Label(img, band, text, color.White, 5)
}
