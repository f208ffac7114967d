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

package patch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stapelberg/inpaint/internal/patch"
	"github.com/stapelberg/inpaint/planar"
)

func stripes(w, h int) *planar.Image[uint8] {
	img := planar.New[uint8](w, h, 1, 3)
	for c := 0; c < 3; c++ {
		plane := img.Plane(0, c)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if x%2 == 0 {
					plane[y*w+x] = uint8(40 * (c + 1))
				}
			}
		}
	}
	return img
}

func hole(w, h, x0, y0, x1, y1 int) *planar.Image[uint8] {
	m := planar.New[uint8](w, h, 1, 1)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			m.Set(x, y, 0, 0, 1)
		}
	}
	return m
}

func TestEmptyMaskIsNoop(t *testing.T) {
	img := stripes(8, 8)
	m := planar.New[uint8](8, 8, 1, 1)
	out, err := patch.Fill(context.Background(), img, m, patch.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(img.Data(), out.Data()); diff != "" {
		t.Fatalf("unexpected diff (-want +got):\n%s", diff)
	}
	if &out.Data()[0] == &img.Data()[0] {
		t.Fatalf("Fill returned the input image, want a copy")
	}
}

func TestUniformImage(t *testing.T) {
	img := planar.New[uint8](10, 10, 1, 4)
	img.Fill(255)
	m := hole(10, 10, 2, 2, 9, 9)
	out, err := patch.NewInpainter(patch.DefaultOptions()).Inpaint(context.Background(), img, m)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(img.Data(), out.Data()); diff != "" {
		t.Fatalf("unexpected diff (-want +got):\n%s", diff)
	}
}

func TestStripesAreContinued(t *testing.T) {
	img := stripes(20, 20)
	damaged := img.Clone()
	for c := 0; c < 3; c++ {
		for y := 8; y < 11; y++ {
			for x := 8; x < 11; x++ {
				damaged.Set(x, y, 0, c, 200)
			}
		}
	}
	opts := patch.Options{PatchSize: 5, LookupSize: 6, LookupIncrement: 1}
	out, err := patch.Fill(context.Background(), damaged, hole(20, 20, 8, 8, 11, 11), opts)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(img.Data(), out.Data()); diff != "" {
		t.Fatalf("unexpected diff (-want +got):\n%s", diff)
	}
}

func TestFloatSamples(t *testing.T) {
	img := planar.New[float32](6, 6, 1, 1)
	img.Fill(0.25)
	img.Set(3, 3, 0, 0, 99)
	out, err := patch.Fill(context.Background(), img, hole(6, 6, 3, 3, 4, 4), patch.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := out.At(3, 3, 0, 0), float32(0.25); got != want {
		t.Fatalf("filled sample: got %v, want %v", got, want)
	}
}

func TestWholeImageMasked(t *testing.T) {
	img := stripes(4, 4)
	_, err := patch.Fill(context.Background(), img, hole(4, 4, 0, 0, 4, 4), patch.DefaultOptions())
	if !errors.Is(err, patch.ErrNoSource) {
		t.Fatalf("Fill: got err %v, want %v", err, patch.ErrNoSource)
	}
}

func TestGeometryMismatch(t *testing.T) {
	img := stripes(4, 4)
	_, err := patch.Fill(context.Background(), img, hole(5, 4, 0, 0, 1, 1), patch.DefaultOptions())
	if !errors.Is(err, patch.ErrGeometry) {
		t.Fatalf("Fill: got err %v, want %v", err, patch.ErrGeometry)
	}
}

func TestCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := patch.Fill(ctx, stripes(8, 8), hole(8, 8, 2, 2, 4, 4), patch.DefaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Fill: got err %v, want %v", err, context.Canceled)
	}
}
