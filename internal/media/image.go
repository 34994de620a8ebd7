package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"
)

const (
	cardWidth   = 640
	fullWidth   = 1600
	jpegQuality = 85
)

// Variants describes the stored renditions of one uploaded image.
type Variants struct {
	CardKey     string
	CardURL     string
	FullKey     string
	FullURL     string
	Watermarked bool
}

// Processor turns an uploaded photo into card and full renditions and
// stores both. The full rendition carries the agency watermark.
type Processor struct {
	storage   ObjectStorage
	watermark string
}

func NewProcessor(storage ObjectStorage, watermarkText string) *Processor {
	return &Processor{storage: storage, watermark: watermarkText}
}

// ProcessAndStore decodes the upload, builds both renditions, and uploads
// them concurrently. keyPrefix should be unique per image, e.g.
// "properties/prop_x/img_y".
func (p *Processor) ProcessAndStore(ctx context.Context, keyPrefix string, data []byte) (Variants, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Variants{}, fmt.Errorf("decode image: %w", err)
	}

	card := resizeToWidth(src, cardWidth)

	full := resizeToWidth(src, fullWidth)
	watermarked := false
	if p.watermark != "" {
		full = applyWatermark(full, p.watermark)
		watermarked = true
	}

	cardBytes, err := encodeJPEG(card)
	if err != nil {
		return Variants{}, fmt.Errorf("encode card: %w", err)
	}
	fullBytes, err := encodeJPEG(full)
	if err != nil {
		return Variants{}, fmt.Errorf("encode full: %w", err)
	}

	v := Variants{
		CardKey:     keyPrefix + "_card.jpg",
		FullKey:     keyPrefix + "_full.jpg",
		Watermarked: watermarked,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.storage.Put(ctx, v.CardKey, cardBytes, "image/jpeg")
	})
	g.Go(func() error {
		return p.storage.Put(ctx, v.FullKey, fullBytes, "image/jpeg")
	})
	if err := g.Wait(); err != nil {
		return Variants{}, fmt.Errorf("store renditions: %w", err)
	}

	v.CardURL = p.storage.URL(v.CardKey)
	v.FullURL = p.storage.URL(v.FullKey)
	return v, nil
}

// Remove deletes both renditions for a key prefix.
func (p *Processor) Remove(ctx context.Context, keyPrefix string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.storage.Remove(ctx, keyPrefix+"_card.jpg") })
	g.Go(func() error { return p.storage.Remove(ctx, keyPrefix+"_full.jpg") })
	return g.Wait()
}

// resizeToWidth scales down to the target width, never scales up.
func resizeToWidth(img image.Image, width int) image.Image {
	if img.Bounds().Dx() <= width {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

// applyWatermark stamps a translucent diagonal text banner across the image.
func applyWatermark(img image.Image, text string) image.Image {
	bounds := img.Bounds()

	label := renderLabel(text)
	// Scale the label to roughly half the image width before rotating.
	targetW := bounds.Dx() / 2
	if targetW > label.Bounds().Dx() {
		label = imaging.Resize(label, targetW, 0, imaging.NearestNeighbor)
	}
	rotated := imaging.Rotate(label, 30, color.NRGBA{})

	x := (bounds.Dx() - rotated.Bounds().Dx()) / 2
	y := (bounds.Dy() - rotated.Bounds().Dy()) / 2
	return imaging.Overlay(img, rotated, image.Pt(x, y), 0.35)
}

// renderLabel draws the watermark text into a tight white-on-transparent image.
func renderLabel(text string) *image.NRGBA {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	canvas := image.NewNRGBA(image.Rect(0, 0, width+4, height+4))
	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: face,
		Dot:  fixed.P(2, face.Metrics().Ascent.Ceil()+2),
	}
	drawer.DrawString(text)
	return canvas
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
