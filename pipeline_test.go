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

package inpaint_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stapelberg/inpaint"
	"github.com/stapelberg/inpaint/planar"
)

// recordingInpainter paints every masked pixel blue and remembers the masks
// it was called with.
type recordingInpainter struct {
	masks []*planar.Image[uint8]
}

func (r *recordingInpainter) Inpaint(ctx context.Context, img, mask *planar.Image[uint8]) (*planar.Image[uint8], error) {
	r.masks = append(r.masks, mask.Clone())
	out := img.Clone()
	red, green, blue := out.Plane(0, 0), out.Plane(0, 1), out.Plane(0, 2)
	for i, v := range mask.Plane(0, 0) {
		if v == 0 {
			continue
		}
		red[i], green[i], blue[i] = 0, 0, 255
	}
	return out, nil
}

type failingInpainter struct{ err error }

func (f failingInpainter) Inpaint(ctx context.Context, img, mask *planar.Image[uint8]) (*planar.Image[uint8], error) {
	return nil, f.err
}

func solidSurface(t *testing.T, w, h int, r, g, b, a byte) inpaint.Surface {
	t.Helper()
	pix := bytes.Repeat([]byte{r, g, b, a}, w*h)
	s, err := inpaint.ParseSurface(pix, w, h)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func setPixel(s inpaint.Surface, x, y int, r, g, b, a byte) {
	off := 4 * (x + y*s.Width())
	copy(s.Pix()[off:off+4], []byte{r, g, b, a})
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

func TestPipelineDilatesRedMask(t *testing.T) {
	ctx := context.Background()
	source := solidSurface(t, 10, 10, 255, 255, 255, 255)
	overlay := solidSurface(t, 10, 10, 0, 0, 0, 0)
	setPixel(overlay, 5, 5, 255, 0, 0, 255)

	rec := &recordingInpainter{}
	p := inpaint.NewPipeline(inpaint.Options{
		DilationRadius: inpaint.DefaultDilationRadius,
		Inpainter:      rec,
	})
	got, err := p.Inpaint(ctx, source, overlay)
	if err != nil {
		t.Fatal(err)
	}
	if got.Width() != 10 || got.Height() != 10 {
		t.Fatalf("result is %dx%d, want 10x10", got.Width(), got.Height())
	}
	if len(rec.masks) != 1 {
		t.Fatalf("Inpainter called %d times, want 1", len(rec.masks))
	}
	m := rec.masks[0]
	if got, want := m.Spectrum(), 1; got != want {
		t.Fatalf("mask spectrum: got %d, want %d", got, want)
	}
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			inside := abs(x-5) <= 3 && abs(y-5) <= 3
			if got := m.At(x, y, 0, 0) != 0; got != inside {
				t.Errorf("mask(%d,%d): got %v, want %v", x, y, got, inside)
			}
			off := 4 * (x + y*10)
			px := got.Pix()[off : off+4]
			want := []byte{255, 255, 255, 255}
			if inside {
				want = []byte{0, 0, 255, 255}
			}
			if !bytes.Equal(px, want) {
				t.Errorf("result(%d,%d): got %v, want %v", x, y, px, want)
			}
		}
	}
}

func TestPipelineNoRedIsIdentity(t *testing.T) {
	ctx := context.Background()
	source := solidSurface(t, 12, 9, 0, 0, 0, 255)
	for y := 0; y < 9; y++ {
		for x := 0; x < 12; x++ {
			setPixel(source, x, y, byte(20*x), byte(25*y), byte(x*y), 255)
		}
	}
	want := append([]byte(nil), source.Pix()...)

	for _, overlay := range []inpaint.Surface{
		solidSurface(t, 12, 9, 0, 0, 0, 255),
		solidSurface(t, 12, 9, 0, 0, 0, 0),
		solidSurface(t, 12, 9, 254, 0, 0, 255),
		solidSurface(t, 12, 9, 255, 1, 0, 255),
	} {
		got, err := inpaint.NewPipeline(inpaint.DefaultOptions()).Inpaint(ctx, source, overlay)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got.Pix()); diff != "" {
			t.Errorf("overlay %v: unexpected diff (-want +got):\n%s", overlay.Pix()[:4], diff)
		}
	}
}

func TestPipelineNearRedExcluded(t *testing.T) {
	ctx := context.Background()
	source := solidSurface(t, 6, 6, 255, 255, 255, 255)
	overlay := solidSurface(t, 6, 6, 0, 0, 0, 0)
	setPixel(overlay, 1, 1, 254, 0, 0, 255)
	setPixel(overlay, 4, 4, 255, 0, 1, 255)

	rec := &recordingInpainter{}
	p := inpaint.NewPipeline(inpaint.Options{DilationRadius: 3, Inpainter: rec})
	if _, err := p.Inpaint(ctx, source, overlay); err != nil {
		t.Fatal(err)
	}
	for i, v := range rec.masks[0].Data() {
		if v != 0 {
			t.Fatalf("mask pixel %d set, want empty mask", i)
		}
	}
}

func TestPipelineZeroRadius(t *testing.T) {
	ctx := context.Background()
	source := solidSurface(t, 5, 5, 255, 255, 255, 255)
	overlay := solidSurface(t, 5, 5, 0, 0, 0, 0)
	setPixel(overlay, 2, 2, 255, 0, 0, 255)

	rec := &recordingInpainter{}
	p := inpaint.NewPipeline(inpaint.Options{Inpainter: rec})
	if _, err := p.Inpaint(ctx, source, overlay); err != nil {
		t.Fatal(err)
	}
	var set int
	for _, v := range rec.masks[0].Data() {
		if v != 0 {
			set++
		}
	}
	if got, want := set, 1; got != want {
		t.Fatalf("mask pixels: got %d, want %d", got, want)
	}
}

func TestPipelineInpaintsRed(t *testing.T) {
	ctx := context.Background()
	source := solidSurface(t, 24, 24, 40, 80, 120, 255)
	overlay := solidSurface(t, 24, 24, 0, 0, 0, 0)
	setPixel(source, 12, 12, 255, 255, 255, 255)
	setPixel(overlay, 12, 12, 255, 0, 0, 255)

	got, err := inpaint.NewPipeline(inpaint.DefaultOptions()).Inpaint(ctx, source, overlay)
	if err != nil {
		t.Fatal(err)
	}
	want := bytes.Repeat([]byte{40, 80, 120, 255}, 24*24)
	if diff := cmp.Diff(want, got.Pix()); diff != "" {
		t.Fatalf("unexpected diff (-want +got):\n%s", diff)
	}
}

func TestPipelineInpainterError(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")
	source := solidSurface(t, 4, 4, 1, 2, 3, 255)
	overlay := solidSurface(t, 4, 4, 255, 0, 0, 255)

	p := inpaint.NewPipeline(inpaint.Options{Inpainter: failingInpainter{err: errBoom}})
	if _, err := p.Inpaint(ctx, source, overlay); !errors.Is(err, errBoom) {
		t.Fatalf("Inpaint: got err %v, want %v", err, errBoom)
	}
}

func TestPipelineWholeImageMasked(t *testing.T) {
	ctx := context.Background()
	source := solidSurface(t, 4, 4, 1, 2, 3, 255)
	overlay := solidSurface(t, 4, 4, 255, 0, 0, 255)
	if _, err := inpaint.NewPipeline(inpaint.DefaultOptions()).Inpaint(ctx, source, overlay); err == nil {
		t.Fatal("Inpaint unexpectedly succeeded with a fully masked image")
	}
}
