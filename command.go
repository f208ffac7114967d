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
	"log"

	"golang.org/x/net/trace"
)

// Result holds the surfaces and names returned by RunCommand. Surfaces[i] is
// named Names[i].
type Result struct {
	Surfaces []Surface
	Names    []string
}

// RunCommand decodes surfaces, lets engine run command over them and encodes
// the images the engine leaves in the list.
//
// A failing engine does not fail RunCommand: the engine error is logged and
// the entries the engine committed before failing are returned with a nil
// error. Callers which need to detect engine failures must inspect the
// engine itself. RunCommand only fails on invalid input or on images which
// cannot be encoded.
func RunCommand(ctx context.Context, engine Engine, command string, surfaces []Surface, names []string) (Result, error) {
	if len(surfaces) != len(names) {
		return Result{}, fmt.Errorf("%w: %d surfaces, %d names", ErrLengthMismatch, len(surfaces), len(names))
	}
	tr, finish := traceFor(ctx, "inpaint.RunCommand", command)
	defer finish()
	ctx = trace.NewContext(ctx, tr)

	list := &ImageList{}
	for i, s := range surfaces {
		img := DecodeSurface[float32](s)
		tr.LazyPrintf("input %d: %q, %dx%d", i, names[i], img.Width(), img.Height())
		list.Add(names[i], img)
	}

	tr.LazyPrintf("running command %q", command)
	if err := engine.Run(ctx, command, list); err != nil {
		log.Printf("ERROR: command %q: %v", command, err)
		tr.LazyPrintf("engine failed: %v", err)
		tr.SetError()
		return accumulate(tr, list, true)
	}
	return accumulate(tr, list, false)
}

// accumulate encodes the entries of list, in order, into a Result. If
// committedOnly is true, entries the engine did not commit are skipped.
func accumulate(tr trace.Trace, list *ImageList, committedOnly bool) (Result, error) {
	var res Result
	for i, e := range list.Entries {
		if committedOnly && !e.Committed {
			tr.LazyPrintf("output %d: %q not committed, skipping", i, e.Name)
			continue
		}
		s, err := Encode(e.Image)
		if err != nil {
			return Result{}, fmt.Errorf("output %d (%q): %w", i, e.Name, err)
		}
		tr.LazyPrintf("output %d: %q, %dx%d", i, e.Name, s.Width(), s.Height())
		res.Surfaces = append(res.Surfaces, s)
		res.Names = append(res.Names, e.Name)
	}
	return res, nil
}
