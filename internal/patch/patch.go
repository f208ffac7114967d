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

// Package patch implements exemplar-based inpainting: masked pixels are
// filled from the outside in, each one copied from the unmasked pixel whose
// surrounding patch best matches its own known surroundings.
package patch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/stapelberg/inpaint/planar"
	"golang.org/x/net/trace"
)

var (
	// ErrNoSource is returned when the mask leaves no pixel to copy from.
	ErrNoSource = errors.New("mask covers the whole image")

	// ErrGeometry is returned when image and mask sizes differ.
	ErrGeometry = errors.New("mask geometry does not match image")
)

// Options control the patch search.
type Options struct {
	// PatchSize is the side length of the square patches which are compared.
	PatchSize int

	// LookupSize is the half-width of the square window around a masked
	// pixel in which candidate source pixels are searched.
	LookupSize int

	// LookupIncrement is the step between candidates in the lookup window.
	LookupIncrement int
}

// DefaultOptions returns the patch parameters of G'MIC's inpaint_patch
// defaults.
func DefaultOptions() Options {
	return Options{
		PatchSize:       11,
		LookupSize:      22,
		LookupIncrement: 1,
	}
}

func (o Options) normalized() Options {
	o.PatchSize = max(o.PatchSize, 1)
	o.LookupSize = max(o.LookupSize, 1)
	o.LookupIncrement = max(o.LookupIncrement, 1)
	return o
}

// Inpainter fills 8-bit images. It is safe for concurrent use.
type Inpainter struct {
	Options Options
}

// NewInpainter returns an Inpainter using opts.
func NewInpainter(opts Options) *Inpainter {
	return &Inpainter{Options: opts}
}

// Inpaint returns a copy of img in which all pixels where mask is nonzero
// have been synthesized. img is not modified.
func (p *Inpainter) Inpaint(ctx context.Context, img, mask *planar.Image[uint8]) (*planar.Image[uint8], error) {
	return Fill(ctx, img, mask, p.Options)
}

type frontPixel struct {
	idx   int
	known int // number of known 8-neighbors
}

// Fill returns a copy of img in which all pixels of the first layer where
// any channel of mask is nonzero have been synthesized. An empty mask yields
// an unmodified copy.
func Fill[T planar.Sample](ctx context.Context, img *planar.Image[T], mask *planar.Image[uint8], opts Options) (*planar.Image[T], error) {
	if !planar.SameGeometry(img, mask) || img.Depth() != 1 {
		return nil, fmt.Errorf("%w: image %dx%dx%d, mask %dx%dx%d",
			ErrGeometry,
			img.Width(), img.Height(), img.Depth(),
			mask.Width(), mask.Height(), mask.Depth())
	}
	opts = opts.normalized()
	tr, hasTrace := trace.FromContext(ctx)

	w, h := img.Width(), img.Height()
	n := w * h
	known := make([]bool, n)
	for i := range known {
		known[i] = true
	}
	remaining := 0
	for c := 0; c < mask.Spectrum(); c++ {
		for i, v := range mask.Plane(0, c) {
			if v != 0 && known[i] {
				known[i] = false
				remaining++
			}
		}
	}
	out := img.Clone()
	if remaining == 0 {
		return out, nil
	}
	if remaining == n {
		return nil, ErrNoSource
	}
	// source marks the pixels which were known before filling started. Only
	// those are copied from, so that synthesized content is never
	// propagated.
	source := make([]bool, n)
	copy(source, known)

	planes := make([][]T, out.Spectrum())
	for c := range planes {
		planes[c] = out.Plane(0, c)
	}

	f := filler[T]{
		w:      w,
		h:      h,
		opts:   opts,
		known:  known,
		source: source,
		planes: planes,
	}
	if hasTrace {
		tr.LazyPrintf("patch: filling %d of %d pixels (patch %d, lookup %d)", remaining, n, opts.PatchSize, opts.LookupSize)
	}
	var fronts int
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		front := f.front()
		if len(front) == 0 {
			// Cannot happen on a grid with at least one known pixel.
			return nil, ErrNoSource
		}
		sort.SliceStable(front, func(i, j int) bool {
			return front[i].known > front[j].known
		})
		for _, fp := range front {
			f.fillPixel(fp.idx)
			remaining--
		}
		fronts++
	}
	if hasTrace {
		tr.LazyPrintf("patch: done after %d fronts", fronts)
	}
	return out, nil
}

type filler[T planar.Sample] struct {
	w, h   int
	opts   Options
	known  []bool
	source []bool
	planes [][]T
}

// front returns all unknown pixels with at least one known 8-neighbor.
func (f *filler[T]) front() []frontPixel {
	var front []frontPixel
	for y := 0; y < f.h; y++ {
		for x := 0; x < f.w; x++ {
			idx := y*f.w + x
			if f.known[idx] {
				continue
			}
			if k := f.knownNeighbors(x, y); k > 0 {
				front = append(front, frontPixel{idx: idx, known: k})
			}
		}
	}
	return front
}

func (f *filler[T]) knownNeighbors(x, y int) int {
	var k int
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= f.w || ny < 0 || ny >= f.h {
				continue
			}
			if f.known[ny*f.w+nx] {
				k++
			}
		}
	}
	return k
}

func (f *filler[T]) fillPixel(idx int) {
	px, py := idx%f.w, idx/f.w
	if best, ok := f.search(px, py); ok {
		for _, plane := range f.planes {
			plane[idx] = plane[best]
		}
	} else {
		f.average(px, py)
	}
	f.known[idx] = true
}

// search returns the index of the source pixel within the lookup window
// whose patch differs least from the known part of the patch around
// (px, py).
func (f *filler[T]) search(px, py int) (int, bool) {
	half := f.opts.PatchSize / 2
	lookup := f.opts.LookupSize
	step := f.opts.LookupIncrement

	best := -1
	bestScore := math.Inf(1)
	bestCount := 0
	for qy := py - lookup; qy <= py+lookup; qy += step {
		if qy < 0 || qy >= f.h {
			continue
		}
		for qx := px - lookup; qx <= px+lookup; qx += step {
			if qx < 0 || qx >= f.w {
				continue
			}
			q := qy*f.w + qx
			if !f.source[q] {
				continue
			}
			var sum float64
			var count int
			for dy := -half; dy <= half; dy++ {
				ty, sy := py+dy, qy+dy
				if ty < 0 || ty >= f.h || sy < 0 || sy >= f.h {
					continue
				}
				for dx := -half; dx <= half; dx++ {
					tx, sx := px+dx, qx+dx
					if tx < 0 || tx >= f.w || sx < 0 || sx >= f.w {
						continue
					}
					t := ty*f.w + tx
					s := sy*f.w + sx
					if !f.known[t] || !f.source[s] {
						continue
					}
					for _, plane := range f.planes {
						d := float64(plane[t]) - float64(plane[s])
						sum += d * d
					}
					count++
				}
			}
			if count == 0 {
				continue
			}
			score := sum / float64(count)
			if score < bestScore || (score == bestScore && count > bestCount) {
				best, bestScore, bestCount = q, score, count
			}
		}
	}
	return best, best >= 0
}

// average sets (px, py) to the mean of its known 8-neighbors.
func (f *filler[T]) average(px, py int) {
	idx := py*f.w + px
	for _, plane := range f.planes {
		var sum float64
		var count int
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx := planar.Clamp(px+dx, f.w)
				ny := planar.Clamp(py+dy, f.h)
				n := ny*f.w + nx
				if n == idx || !f.known[n] {
					continue
				}
				sum += float64(plane[n])
				count++
			}
		}
		if count > 0 {
			plane[idx] = T(sum / float64(count))
		}
	}
}
