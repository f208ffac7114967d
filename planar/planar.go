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

// Package planar implements multi-channel images whose samples are stored
// plane by plane, addressed as (x, y, z, c).
//
// An image with spectrum 4 holds four planes (R, G, B, A), each a row-major
// width*height slice:
//
//	img := planar.New[uint8](640, 480, 1, 4)
//	red := img.Plane(0, 0)
//	red[x+y*img.Width()] = 255
package planar

// Sample is the set of sample types an Image can hold.
type Sample interface {
	~uint8 | ~uint16 | ~int32 | ~float32 | ~float64
}

// Image is a width×height×depth×spectrum array of samples.
type Image[T Sample] struct {
	data     []T
	width    int
	height   int
	depth    int
	spectrum int
}

// New returns a zero-filled image with the specified dimensions. Negative
// dimensions are treated as zero.
func New[T Sample](width, height, depth, spectrum int) *Image[T] {
	width = max(width, 0)
	height = max(height, 0)
	depth = max(depth, 0)
	spectrum = max(spectrum, 0)
	return &Image[T]{
		data:     make([]T, width*height*depth*spectrum),
		width:    width,
		height:   height,
		depth:    depth,
		spectrum: spectrum,
	}
}

// Width returns the image width in pixels.
func (img *Image[T]) Width() int { return img.width }

// Height returns the image height in pixels.
func (img *Image[T]) Height() int { return img.height }

// Depth returns the number of layers. Two-dimensional images have depth 1.
func (img *Image[T]) Depth() int { return img.depth }

// Spectrum returns the number of channels.
func (img *Image[T]) Spectrum() int { return img.spectrum }

// Len returns the total number of samples.
func (img *Image[T]) Len() int { return len(img.data) }

// Data returns all samples, plane-major. The slice aliases the image.
func (img *Image[T]) Data() []T { return img.data }

func (img *Image[T]) offset(x, y, z, c int) int {
	return x + img.width*(y+img.height*(z+img.depth*c))
}

func (img *Image[T]) inside(x, y, z, c int) bool {
	return x >= 0 && x < img.width &&
		y >= 0 && y < img.height &&
		z >= 0 && z < img.depth &&
		c >= 0 && c < img.spectrum
}

// At returns the sample at (x, y, z, c), or zero outside the image.
func (img *Image[T]) At(x, y, z, c int) T {
	if !img.inside(x, y, z, c) {
		var zero T
		return zero
	}
	return img.data[img.offset(x, y, z, c)]
}

// Set stores v at (x, y, z, c). Coordinates outside the image are ignored.
func (img *Image[T]) Set(x, y, z, c int, v T) {
	if !img.inside(x, y, z, c) {
		return
	}
	img.data[img.offset(x, y, z, c)] = v
}

// Plane returns the row-major width*height samples of channel c in layer z,
// or nil if z or c is out of range. The slice aliases the image.
func (img *Image[T]) Plane(z, c int) []T {
	if z < 0 || z >= img.depth || c < 0 || c >= img.spectrum {
		return nil
	}
	start := img.offset(0, 0, z, c)
	return img.data[start : start+img.width*img.height]
}

// Max returns the largest sample, or zero for an empty image.
func (img *Image[T]) Max() T {
	var m T
	for i, v := range img.data {
		if i == 0 || v > m {
			m = v
		}
	}
	return m
}

// Min returns the smallest sample, or zero for an empty image.
func (img *Image[T]) Min() T {
	var m T
	for i, v := range img.data {
		if i == 0 || v < m {
			m = v
		}
	}
	return m
}

// Fill sets every sample to v.
func (img *Image[T]) Fill(v T) {
	for i := range img.data {
		img.data[i] = v
	}
}

// Clone returns a deep copy.
func (img *Image[T]) Clone() *Image[T] {
	clone := *img
	clone.data = make([]T, len(img.data))
	copy(clone.data, img.data)
	return &clone
}

// SameGeometry reports whether a and b have the same width, height and depth.
// The spectrum may differ.
func SameGeometry[T, U Sample](a *Image[T], b *Image[U]) bool {
	return a.width == b.width && a.height == b.height && a.depth == b.depth
}

// Convert returns a copy of src with every sample converted to To. Values are
// converted with a plain Go conversion, so no rescaling takes place.
func Convert[To, From Sample](src *Image[From]) *Image[To] {
	dst := New[To](src.width, src.height, src.depth, src.spectrum)
	for i, v := range src.data {
		dst.data[i] = To(v)
	}
	return dst
}

// Clamp returns index clamped to [0, size-1].
func Clamp(index, size int) int {
	if index < 0 {
		return 0
	}
	if index >= size {
		return size - 1
	}
	return index
}
