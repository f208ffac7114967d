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
	"context"
	"fmt"

	"github.com/stapelberg/inpaint/internal/mask"
	"github.com/stapelberg/inpaint/internal/patch"
	"golang.org/x/net/trace"
)

// DefaultDilationRadius is how far the red mask is grown before inpainting.
// Canvas line drawing smooths stroke edges, so edge pixels are not exactly
// pure red and would otherwise be missed.
const DefaultDilationRadius = 3

// Options configure a Pipeline.
type Options struct {
	// DilationRadius is the radius of the square structuring element used to
	// grow the mask. 0 disables dilation.
	DilationRadius int

	// Inpainter synthesizes the masked region. If nil, the patch-based
	// inpainter with default parameters is used.
	Inpainter Inpainter
}

// DefaultOptions returns DefaultDilationRadius and the patch-based inpainter
// with its default parameters.
func DefaultOptions() Options {
	return Options{
		DilationRadius: DefaultDilationRadius,
		Inpainter:      patch.NewInpainter(patch.DefaultOptions()),
	}
}

// Pipeline removes the pure red region of a mask overlay from a source image.
// It holds no mutable state and is safe for concurrent use if its Inpainter
// is.
type Pipeline struct {
	opts Options
}

func NewPipeline(opts Options) *Pipeline {
	if opts.Inpainter == nil {
		opts.Inpainter = patch.NewInpainter(patch.DefaultOptions())
	}
	return &Pipeline{opts: opts}
}

// traceFor returns the trace stored in ctx, or a new trace which the caller
// must finish by calling the returned function.
func traceFor(ctx context.Context, family, title string) (trace.Trace, func()) {
	if tr, ok := trace.FromContext(ctx); ok {
		return tr, func() {}
	}
	tr := trace.New(family, title)
	return tr, tr.Finish
}

// Inpaint decodes source and overlay, derives a binary mask from the pure red
// pixels of overlay, dilates it, inpaints the masked region of source and
// returns the encoded result.
//
// source and overlay are expected to have the same size; checking that is
// left to the Inpainter. Errors of the Inpainter are returned to the caller.
func (p *Pipeline) Inpaint(ctx context.Context, source, overlay Surface) (_ Surface, err error) {
	tr, finish := traceFor(ctx, "inpaint.Pipeline", "Inpaint")
	defer finish()
	ctx = trace.NewContext(ctx, tr)
	defer func() {
		if err != nil {
			tr.LazyPrintf("-> return err=%v", err)
			tr.SetError()
		}
	}()

	img := DecodeSurface[uint8](source)
	overlayImg := DecodeSurface[uint8](overlay)
	tr.LazyPrintf("decoded source %dx%d, overlay %dx%d",
		img.Width(), img.Height(), overlayImg.Width(), overlayImg.Height())

	binary := mask.FromRed(overlayImg)
	dilated := mask.Dilate(binary, p.opts.DilationRadius)
	tr.LazyPrintf("mask: %d pixels marked, %d after dilation (radius %d)",
		mask.Count(binary), mask.Count(dilated), p.opts.DilationRadius)

	result, err := p.opts.Inpainter.Inpaint(ctx, img, dilated)
	if err != nil {
		return Surface{}, fmt.Errorf("inpainting: %w", err)
	}
	tr.LazyPrintf("inpainted %dx%dx%d", result.Width(), result.Height(), result.Spectrum())
	return Encode(result)
}
