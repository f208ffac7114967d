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

package inpaint

import (
	"fmt"
	"image"

	"github.com/stapelberg/inpaint/planar"
	"golang.org/x/image/draw"
)

// colorPolicy is how the channels of a planar image are interpreted when
// rendering it to RGBA.
type colorPolicy int

const (
	policyRGBA colorPolicy = iota
	policyRGB
	policyGray
	policyBinary // label map: nonzero is red, zero is black
)

func (p colorPolicy) String() string {
	switch p {
	case policyRGBA:
		return "RGBA"
	case policyRGB:
		return "RGB"
	case policyGray:
		return "Grayscale"
	case policyBinary:
		return "Binary"
	default:
		return "<unknown>"
	}
}

// policyFor resolves the color policy of img from its spectrum and, for
// single-channel images, its maximum sample: a maximum of exactly 1 means
// the image is a binary label map.
func policyFor[T planar.Sample](img *planar.Image[T]) (colorPolicy, error) {
	switch img.Spectrum() {
	case 4:
		return policyRGBA, nil
	case 3:
		return policyRGB, nil
	case 1:
		if img.Max() == 1 {
			return policyBinary, nil
		}
		return policyGray, nil
	}
	return 0, fmt.Errorf("%w: got spectrum %d", ErrUnsupportedSpectrum, img.Spectrum())
}

// Decode validates pix like ParseSurface and decodes it with DecodeSurface.
func Decode[T planar.Sample](pix []byte, width, height int) (*planar.Image[T], error) {
	s, err := ParseSurface(pix, width, height)
	if err != nil {
		return nil, err
	}
	return DecodeSurface[T](s), nil
}

// DecodeSurface returns a new 4-channel planar image holding the samples of
// s, converted to T without rescaling.
func DecodeSurface[T planar.Sample](s Surface) *planar.Image[T] {
	img := planar.New[T](s.width, s.height, 1, 4)
	n := s.width * s.height
	for c := 0; c < 4; c++ {
		plane := img.Plane(0, c)
		for i := 0; i < n; i++ {
			plane[i] = T(s.pix[4*i+c])
		}
	}
	return img
}

// toByte clamps v to [0, 255] and truncates the fractional part. NaN maps
// to 0.
func toByte[T planar.Sample](v T) byte {
	f := float64(v)
	if !(f > 0) {
		return 0
	}
	if f >= 255 {
		return 255
	}
	return byte(f)
}

// Encode renders img into a new Surface:
//
//   - 4 channels are copied as RGBA,
//   - 3 channels are copied as RGB with opaque alpha,
//   - 1 channel with a maximum of exactly 1 is a binary label map: nonzero
//     samples become opaque red, zero samples opaque black,
//   - any other single channel is replicated into R, G and B, opaque.
//
// Samples outside [0, 255] are clamped.
func Encode[T planar.Sample](img *planar.Image[T]) (Surface, error) {
	if img == nil {
		return Surface{}, fmt.Errorf("%w: got no image", ErrUnsupportedDepth)
	}
	if img.Depth() != 1 {
		return Surface{}, fmt.Errorf("%w: got depth %d", ErrUnsupportedDepth, img.Depth())
	}
	policy, err := policyFor(img)
	if err != nil {
		return Surface{}, err
	}
	w, h := img.Width(), img.Height()
	n := w * h
	pix := make([]byte, 4*n)
	switch policy {
	case policyRGBA, policyRGB:
		r, g, b := img.Plane(0, 0), img.Plane(0, 1), img.Plane(0, 2)
		for i := 0; i < n; i++ {
			pix[4*i+0] = toByte(r[i])
			pix[4*i+1] = toByte(g[i])
			pix[4*i+2] = toByte(b[i])
			pix[4*i+3] = 255
		}
		if policy == policyRGBA {
			for i, v := range img.Plane(0, 3) {
				pix[4*i+3] = toByte(v)
			}
		}

	case policyBinary:
		for i, v := range img.Plane(0, 0) {
			if v != 0 {
				pix[4*i+0] = 255
			}
			pix[4*i+3] = 255
		}

	case policyGray:
		for i, v := range img.Plane(0, 0) {
			b := toByte(v)
			pix[4*i+0] = b
			pix[4*i+1] = b
			pix[4*i+2] = b
			pix[4*i+3] = 255
		}
	}
	return Surface{pix: pix, width: w, height: h}, nil
}

// ToDisplaySurface encodes img into a freshly allocated image.NRGBA of the
// same size, ready to be drawn or written out.
func ToDisplaySurface[T planar.Sample](img *planar.Image[T]) (*image.NRGBA, error) {
	s, err := Encode(img)
	if err != nil {
		return nil, err
	}
	return s.Image(), nil
}

// Image returns a copy of s as a non-premultiplied image.NRGBA.
func (s Surface) Image() *image.NRGBA {
	dst := image.NewNRGBA(s.Bounds())
	copy(dst.Pix, s.pix)
	return dst
}

// SurfaceFromImage returns the pixels of img as a new Surface whose origin is
// img.Bounds().Min.
func SurfaceFromImage(img image.Image) Surface {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if src, ok := img.(*image.NRGBA); ok {
		// Copy rows verbatim: drawing would round-trip through premultiplied
		// alpha and lose precision for translucent pixels.
		pix := make([]byte, 4*w*h)
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(pix[4*w*y:4*w*(y+1)], src.Pix[off:off+4*w])
		}
		return Surface{pix: pix, width: w, height: h}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return Surface{pix: dst.Pix, width: w, height: h}
}
