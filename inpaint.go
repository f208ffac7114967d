// Copyright 2016 Michael Stapelberg and contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package inpaint converts canvas-style RGBA surfaces into planar images and
// back, and removes regions painted in pure red on a mask overlay from an
// image by synthesizing replacement content.
package inpaint

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/stapelberg/inpaint/planar"
)

var (
	// ErrShapeMismatch is returned when a pixel buffer does not hold exactly
	// 4*width*height bytes.
	ErrShapeMismatch = errors.New("surface buffer length does not match 4*width*height")

	// ErrUnsupportedDepth is returned when encoding an image which is not a
	// single 2D layer.
	ErrUnsupportedDepth = errors.New("only images of depth 1 can be encoded")

	// ErrUnsupportedSpectrum is returned when encoding an image whose channel
	// count is not 1, 3 or 4.
	ErrUnsupportedSpectrum = errors.New("only images with 1, 3 or 4 channels can be encoded")

	// ErrLengthMismatch is returned by RunCommand when the number of surfaces
	// and names differ.
	ErrLengthMismatch = errors.New("number of surfaces does not match number of names")
)

// A Surface is an interleaved, row-major RGBA pixel buffer with a top-left
// origin, as found in an HTML canvas ImageData. The zero Surface is a valid
// 0x0 surface. Use ParseSurface to construct one.
type Surface struct {
	pix    []byte
	width  int
	height int
}

// ParseSurface validates that pix holds exactly 4*width*height bytes and
// returns a Surface referring to (not copying) pix.
func ParseSurface(pix []byte, width, height int) (Surface, error) {
	if width < 0 || height < 0 || len(pix) != 4*width*height {
		return Surface{}, fmt.Errorf("%w: got %d bytes for %dx%d", ErrShapeMismatch, len(pix), width, height)
	}
	return Surface{pix: pix, width: width, height: height}, nil
}

// Pix returns the RGBA bytes of s. The slice aliases the surface.
func (s Surface) Pix() []byte { return s.pix }

func (s Surface) Width() int { return s.width }

func (s Surface) Height() int { return s.height }

func (s Surface) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.width, s.height)
}

// An Inpainter synthesizes content for the pixels of img where mask (same
// width and height, spectrum 1) is nonzero. It returns an image with the
// geometry and channel count of img. Implementations may fail on degenerate
// input, e.g. a mask covering the whole image.
type Inpainter interface {
	Inpaint(ctx context.Context, img, mask *planar.Image[uint8]) (*planar.Image[uint8], error)
}

// An Engine runs a textual command over a list of named images, modifying
// the list in place: entries may be added, removed, renamed or replaced.
//
// Engines mark each entry they are finished with as Committed. When Run
// returns an error, only committed entries are reported back to the caller of
// RunCommand.
type Engine interface {
	Run(ctx context.Context, command string, list *ImageList) error
}

// An Entry is one named image of an ImageList.
type Entry struct {
	Name      string
	Image     *planar.Image[float32]
	Committed bool
}

// ImageList is the ordered list of images an Engine operates on.
type ImageList struct {
	Entries []*Entry
}

// Add appends a new entry and returns it.
func (l *ImageList) Add(name string, img *planar.Image[float32]) *Entry {
	e := &Entry{Name: name, Image: img}
	l.Entries = append(l.Entries, e)
	return e
}

func (l *ImageList) Len() int { return len(l.Entries) }
