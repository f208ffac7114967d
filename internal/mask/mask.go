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

// Package mask derives binary masks (spectrum 1, values 0 or 1) from painted
// overlays and grows them with morphological dilation.
package mask

import "github.com/stapelberg/inpaint/planar"

// FromRed returns a binary mask which is 1 wherever overlay is exactly pure
// red (255, 0, 0) in its first layer. Any other color, including almost-red
// anti-aliased stroke edges, is 0. Overlays with fewer than 3 channels yield
// an empty mask.
func FromRed[T planar.Sample](overlay *planar.Image[T]) *planar.Image[uint8] {
	out := planar.New[uint8](overlay.Width(), overlay.Height(), 1, 1)
	if overlay.Spectrum() < 3 || overlay.Depth() < 1 {
		return out
	}
	r, g, b := overlay.Plane(0, 0), overlay.Plane(0, 1), overlay.Plane(0, 2)
	dst := out.Plane(0, 0)
	for i := range dst {
		if r[i] == 255 && g[i] == 0 && b[i] == 0 {
			dst[i] = 1
		}
	}
	return out
}

// FromNonZero returns a binary mask which is 1 wherever any channel of img is
// nonzero in its first layer.
func FromNonZero[T planar.Sample](img *planar.Image[T]) *planar.Image[uint8] {
	out := planar.New[uint8](img.Width(), img.Height(), 1, 1)
	if img.Depth() < 1 {
		return out
	}
	dst := out.Plane(0, 0)
	for c := 0; c < img.Spectrum(); c++ {
		for i, v := range img.Plane(0, c) {
			if v != 0 {
				dst[i] = 1
			}
		}
	}
	return out
}

// Dilate returns a copy of m in which every sample is the maximum of its
// (2*radius+1)×(2*radius+1) neighborhood, clipped at the image border. Each
// plane is dilated independently. A radius of 0 or less returns an unmodified
// copy.
//
// The result is never smaller than the input at any position.
func Dilate[T planar.Sample](m *planar.Image[T], radius int) *planar.Image[T] {
	out := m.Clone()
	if radius <= 0 {
		return out
	}
	w, h := m.Width(), m.Height()
	tmp := make([]T, w*h)
	for z := 0; z < m.Depth(); z++ {
		for c := 0; c < m.Spectrum(); c++ {
			src := m.Plane(z, c)
			dst := out.Plane(z, c)
			// The square structuring element is separable: a horizontal pass
			// followed by a vertical pass.
			for y := 0; y < h; y++ {
				row := src[y*w : (y+1)*w]
				for x := 0; x < w; x++ {
					v := row[x]
					for xx := max(0, x-radius); xx <= min(w-1, x+radius); xx++ {
						if row[xx] > v {
							v = row[xx]
						}
					}
					tmp[y*w+x] = v
				}
			}
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					v := tmp[y*w+x]
					for yy := max(0, y-radius); yy <= min(h-1, y+radius); yy++ {
						if tmp[yy*w+x] > v {
							v = tmp[yy*w+x]
						}
					}
					dst[y*w+x] = v
				}
			}
		}
	}
	return out
}

// Count returns the number of nonzero samples in m.
func Count[T planar.Sample](m *planar.Image[T]) int {
	var n int
	for _, v := range m.Data() {
		if v != 0 {
			n++
		}
	}
	return n
}
