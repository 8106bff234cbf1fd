// Package output turns captured frames into bytes a client can use.
package output

import (
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/bryanchriswhite/wincap/internal/frame"
	"golang.org/x/image/draw"
)

// Supported formats
const (
	FormatPNG    = "png"
	FormatJPEG   = "jpeg"
	FormatBase64 = "base64"
	FormatRaw    = "raw"
)

// Formats lists the accepted format names
var Formats = []string{FormatPNG, FormatJPEG, FormatBase64, FormatRaw}

// Encoder writes a frame in one output format
type Encoder interface {
	// Encode writes b to w
	Encode(w io.Writer, b *frame.Buffer) error

	// ContentType is the MIME type of the encoded data
	ContentType() string

	// Name returns the format name
	Name() string
}

// Options holds settings shared by the encoders
type Options struct {
	JPEGQuality int
	// MaxWidth downscales wider frames, keeping the aspect ratio. 0 disables
	// scaling. The raw encoder ignores it.
	MaxWidth int
}

// NewEncoder returns the encoder for format
func NewEncoder(format string, opts Options) (Encoder, error) {
	switch strings.ToLower(format) {
	case FormatPNG, "":
		return &PNGEncoder{MaxWidth: opts.MaxWidth}, nil
	case FormatJPEG, "jpg":
		return &JPEGEncoder{Quality: opts.JPEGQuality, MaxWidth: opts.MaxWidth}, nil
	case FormatBase64:
		return &Base64Encoder{inner: PNGEncoder{MaxWidth: opts.MaxWidth}}, nil
	case FormatRaw:
		return RawEncoder{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (want one of %s)", format, strings.Join(Formats, ", "))
}

// Scale returns img shrunk to maxWidth with CatmullRom resampling. img is
// returned unchanged when it already fits or maxWidth <= 0.
func Scale(img *image.RGBA, maxWidth int) *image.RGBA {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := b.Dy() * maxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// PNGEncoder writes lossless PNG
type PNGEncoder struct {
	MaxWidth int
}

func (e *PNGEncoder) Encode(w io.Writer, b *frame.Buffer) error {
	if err := png.Encode(w, Scale(b.ToRGBA(), e.MaxWidth)); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}

func (e *PNGEncoder) ContentType() string { return "image/png" }
func (e *PNGEncoder) Name() string        { return FormatPNG }

// JPEGEncoder writes JPEG at Quality (1-100, default 90)
type JPEGEncoder struct {
	Quality  int
	MaxWidth int
}

func (e *JPEGEncoder) Encode(w io.Writer, b *frame.Buffer) error {
	q := e.Quality
	if q <= 0 || q > 100 {
		q = 90
	}
	if err := jpeg.Encode(w, Scale(b.ToRGBA(), e.MaxWidth), &jpeg.Options{Quality: q}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return nil
}

func (e *JPEGEncoder) ContentType() string { return "image/jpeg" }
func (e *JPEGEncoder) Name() string        { return FormatJPEG }

// Base64Encoder writes a PNG as standard base64 text
type Base64Encoder struct {
	inner PNGEncoder
}

func (e *Base64Encoder) Encode(w io.Writer, b *frame.Buffer) error {
	enc := base64.NewEncoder(base64.StdEncoding, w)
	if err := e.inner.Encode(enc, b); err != nil {
		return err
	}
	return enc.Close()
}

func (e *Base64Encoder) ContentType() string { return "text/plain; charset=utf-8" }
func (e *Base64Encoder) Name() string        { return FormatBase64 }

// RawEncoder writes the BGRA pixels as captured, Width*4 bytes per row
type RawEncoder struct{}

func (RawEncoder) Encode(w io.Writer, b *frame.Buffer) error {
	_, err := w.Write(b.Pixels())
	return err
}

func (RawEncoder) ContentType() string { return "application/octet-stream" }
func (RawEncoder) Name() string        { return FormatRaw }
