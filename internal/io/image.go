package ioutils

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/gif" // GIF decoder registration
	"image/jpeg"
	_ "image/png" // PNG decoder registration

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder registration
)

// ImageService normalises fetched images: optional downscaling and
// re-encoding to JPEG so every media file matches its .jpg name.
type ImageService struct {
	// MaxSize bounds the longer edge in pixels. Zero disables resizing.
	MaxSize int

	// ToJPEG re-encodes non-JPEG input.
	ToJPEG bool

	// Quality is the JPEG quality, 90 when zero.
	Quality int
}

// NewImageService creates an ImageService.
func NewImageService(maxSize int, toJPEG bool) *ImageService {
	return &ImageService{MaxSize: maxSize, ToJPEG: toJPEG, Quality: 90}
}

// Enabled reports whether Normalize can change anything.
func (s *ImageService) Enabled() bool {
	return s != nil && (s.MaxSize > 0 || s.ToJPEG)
}

// Normalize returns data resized and/or converted per the service settings.
// Input that already satisfies them is returned unchanged.
func (s *ImageService) Normalize(ctx context.Context, data []byte) ([]byte, error) {
	if !s.Enabled() {
		return data, nil
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	tooBig := s.MaxSize > 0 && (cfg.Width > s.MaxSize || cfg.Height > s.MaxSize)
	if !tooBig && (format == "jpeg" || !s.ToJPEG) {
		return data, nil
	}
	if tooBig {
		return s.ResizeImage(ctx, data, s.MaxSize, s.MaxSize)
	}
	return s.ConvertToJPEG(ctx, data)
}

// ResizeImage resizes an image to fit within the given bounds, keeping its
// aspect ratio, and returns it JPEG-encoded. Catmull-Rom is used for scaling.
//
//	resized, err := svc.ResizeImage(ctx, imageData, 1000, 1000)
//	// A 1500x1000 image becomes 1000x666
func (s *ImageService) ResizeImage(ctx context.Context, data []byte, maxWidth, maxHeight int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width > maxWidth || height > maxHeight {
		ratio := float64(width) / float64(height)
		if float64(maxWidth)/float64(maxHeight) > ratio {
			width = int(float64(maxHeight) * ratio)
			height = maxHeight
		} else {
			height = int(float64(maxWidth) / ratio)
			width = maxWidth
		}
	}

	dst := s.canvas(width, height)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return s.encode(dst)
}

// ConvertToJPEG re-encodes an image as JPEG. Transparent areas become white.
func (s *ImageService) ConvertToJPEG(ctx context.Context, data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	dst := s.canvas(b.Dx(), b.Dy())
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return s.encode(dst)
}

func (s *ImageService) canvas(w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return dst
}

func (s *ImageService) encode(img image.Image) ([]byte, error) {
	q := s.Quality
	if q <= 0 {
		q = 90
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
