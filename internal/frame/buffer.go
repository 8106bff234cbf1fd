// Package frame holds captured BGRA frames and the single-slot mailbox that
// hands them from the capture loop to a consumer.
package frame

import (
	"errors"
	"fmt"
	"image"
	"time"
)

// BytesPerPixel is fixed: B, G, R, A
const BytesPerPixel = 4

// ErrInvalidGeometry is returned for non-positive sizes or a pixel slice
// whose length does not match width*height*4.
var ErrInvalidGeometry = errors.New("invalid frame geometry")

// Buffer is an immutable snapshot of one captured frame. Pixels are
// row-major, top row first, B,G,R,A, with no row padding.
//
// A Buffer has exactly one owner. Once the mailbox hands it out the session
// keeps no reference, so the receiver may keep or modify it freely.
type Buffer struct {
	pixels     []byte
	width      int
	height     int
	sequence   uint64
	capturedAt time.Time
}

// New wraps pixels without copying. The caller gives up ownership of pixels.
func New(pixels []byte, width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, width, height)
	}
	if len(pixels) != width*height*BytesPerPixel {
		return nil, fmt.Errorf("%w: %d bytes for %dx%d", ErrInvalidGeometry, len(pixels), width, height)
	}
	return &Buffer{pixels: pixels, width: width, height: height}, nil
}

// Copy builds a Buffer from a borrowed platform buffer whose rows are
// srcStride bytes apart. Row padding is dropped. srcStride may be 0 for a
// tightly packed source.
func Copy(src []byte, width, height, srcStride int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, width, height)
	}
	row := width * BytesPerPixel
	if srcStride == 0 {
		srcStride = row
	}
	if srcStride < row || len(src) < srcStride*(height-1)+row {
		return nil, fmt.Errorf("%w: %d bytes, stride %d for %dx%d", ErrInvalidGeometry, len(src), srcStride, width, height)
	}

	pixels := make([]byte, row*height)
	if srcStride == row {
		copy(pixels, src[:row*height])
	} else {
		for y := 0; y < height; y++ {
			copy(pixels[y*row:(y+1)*row], src[y*srcStride:y*srcStride+row])
		}
	}
	return &Buffer{pixels: pixels, width: width, height: height}, nil
}

// WithMeta returns a Buffer over the same pixels stamped with the capture
// sequence number and time. b itself is left unchanged; ownership of the
// pixels moves to the result.
func (b *Buffer) WithMeta(sequence uint64, at time.Time) *Buffer {
	out := *b
	out.sequence = sequence
	out.capturedAt = at
	return &out
}

// Pixels returns the BGRA bytes
func (b *Buffer) Pixels() []byte { return b.pixels }

// Width in pixels
func (b *Buffer) Width() int { return b.width }

// Height in pixels
func (b *Buffer) Height() int { return b.height }

// Stride is always Width*4
func (b *Buffer) Stride() int { return b.width * BytesPerPixel }

// Len is the pixel byte count, Width*Height*4
func (b *Buffer) Len() int { return len(b.pixels) }

// Sequence is the session frame number this buffer was published as (1-based)
func (b *Buffer) Sequence() uint64 { return b.sequence }

// CapturedAt is when the capture loop produced the buffer
func (b *Buffer) CapturedAt() time.Time { return b.capturedAt }

// ToRGBA converts to an image.RGBA (swapping B and R) for the image encoders
func (b *Buffer) ToRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, b.width, b.height))
	src := b.pixels
	dst := img.Pix
	for i := 0; i+3 < len(src); i += BytesPerPixel {
		dst[i+0] = src[i+2]
		dst[i+1] = src[i+1]
		dst[i+2] = src[i+0]
		dst[i+3] = src[i+3]
	}
	return img
}
