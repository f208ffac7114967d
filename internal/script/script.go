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

// Package script implements a small command language in the style of G'MIC
// pipelines, operating on an inpaint.ImageList:
//
//	-redmask[1] -dilate[1] 3 -inpaint[0] [1] -rm[1]
//
// Each command is a verb with an optional selection of list entries in
// square brackets, followed by as many arguments as the verb takes. A
// selection is a comma-separated list of indexes, where negative indexes
// count from the end of the list; the default selection is the whole list.
// A verb prefixed with "--" or "+" appends its results to the list instead of
// replacing the selected entries.
package script

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/stapelberg/inpaint"
	"github.com/stapelberg/inpaint/internal/mask"
	"github.com/stapelberg/inpaint/internal/patch"
	"github.com/stapelberg/inpaint/planar"
	"golang.org/x/net/trace"
)

// Engine runs commands over float32 images. It is safe for concurrent use.
type Engine struct {
	opts patch.Options
}

// New returns an Engine whose inpaint verb uses the patch inpainter with
// opts.
func New(opts patch.Options) *Engine {
	return &Engine{opts: opts}
}

var commandRe = regexp.MustCompile(`^(-{0,2}|\+)([a-z_][a-z0-9_]*)(?:\[([^\]]*)\])?$`)

// call is one parsed command.
type call struct {
	verb      string
	appending bool
	sel       []int // resolved indexes into the list
	args      []string
}

type verb struct {
	args int
	// apply runs the verb and returns the entries it produced or modified.
	apply func(ctx context.Context, e *Engine, c *call, list *inpaint.ImageList) ([]*inpaint.Entry, error)
}

var verbs map[string]verb

func init() {
	verbs = map[string]verb{
		"noop":               {0, applyNoop},
		"nop":                {0, applyNoop},
		"name":               {1, applyName},
		"rm":                 {0, applyRemove},
		"remove":             {0, applyRemove},
		"keep":               {0, applyKeep},
		"redmask":            {0, applyRedmask},
		"dilate":             {1, applyDilate},
		"inpaint":            {1, applyInpaint},
		"inpaint_patch":      {1, applyInpaint},
		"inpaint_patchmatch": {1, applyInpaint},
	}
}

// Run executes command over list. Entries a verb produced or modified are
// marked as committed, including those a failing verb finished before its
// failure. The first failing verb aborts the run, leaving earlier mutations
// in place.
func (e *Engine) Run(ctx context.Context, command string, list *inpaint.ImageList) error {
	var tr trace.Trace
	if t, ok := trace.FromContext(ctx); ok {
		tr = t
	}
	tokens := strings.Fields(command)
	for i := 0; i < len(tokens); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tok := tokens[i]
		matches := commandRe.FindStringSubmatch(tok)
		if matches == nil {
			return fmt.Errorf("token %d: unexpected %q, expected a command", i, tok)
		}
		prefix, name, selection := matches[1], matches[2], matches[3]
		v, ok := verbs[name]
		if !ok {
			return fmt.Errorf("token %d: unknown command %q", i, name)
		}
		if i+v.args > len(tokens)-1 {
			return fmt.Errorf("command %q: expected %d argument(s), got %d", name, v.args, len(tokens)-1-i)
		}
		hasSel := strings.Contains(tok, "[")
		sel, err := resolveSelection(selection, hasSel, list.Len())
		if err != nil {
			return fmt.Errorf("command %q: %v", name, err)
		}
		c := &call{
			verb:      name,
			appending: prefix == "--" || prefix == "+",
			sel:       sel,
			args:      tokens[i+1 : i+1+v.args],
		}
		i += v.args
		if tr != nil {
			tr.LazyPrintf("script: %s sel=%v args=%q append=%v", c.verb, c.sel, c.args, c.appending)
		}
		touched, err := v.apply(ctx, e, c, list)
		// Entries a failing verb already replaced are finished, too.
		for _, entry := range touched {
			entry.Committed = true
		}
		if err != nil {
			return fmt.Errorf("command %q: %w", name, err)
		}
	}
	return nil
}

// resolveSelection turns a selection like "0,-1" into list indexes. An
// absent selection selects every entry; an explicitly empty one ("[]")
// selects none.
func resolveSelection(selection string, explicit bool, n int) ([]int, error) {
	if !explicit {
		sel := make([]int, n)
		for i := range sel {
			sel[i] = i
		}
		return sel, nil
	}
	var sel []int
	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx, err := resolveIndex(part, n)
		if err != nil {
			return nil, err
		}
		sel = append(sel, idx)
	}
	return sel, nil
}

func resolveIndex(s string, n int) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("index %s out of range for %d image(s)", s, n)
	}
	return idx, nil
}

// store places img into the list for the i-th selected entry: in place, or
// as a new entry with the same name when appending.
func store(c *call, list *inpaint.ImageList, idx int, img *planar.Image[float32]) *inpaint.Entry {
	if c.appending {
		return list.Add(list.Entries[idx].Name, img)
	}
	entry := list.Entries[idx]
	entry.Image = img
	return entry
}

func applyNoop(context.Context, *Engine, *call, *inpaint.ImageList) ([]*inpaint.Entry, error) {
	return nil, nil
}

func applyName(_ context.Context, _ *Engine, c *call, list *inpaint.ImageList) ([]*inpaint.Entry, error) {
	var touched []*inpaint.Entry
	for _, idx := range c.sel {
		entry := list.Entries[idx]
		entry.Name = c.args[0]
		touched = append(touched, entry)
	}
	return touched, nil
}

func applyRemove(_ context.Context, _ *Engine, c *call, list *inpaint.ImageList) ([]*inpaint.Entry, error) {
	drop := make(map[int]bool, len(c.sel))
	for _, idx := range c.sel {
		drop[idx] = true
	}
	kept := list.Entries[:0]
	for idx, entry := range list.Entries {
		if !drop[idx] {
			kept = append(kept, entry)
		}
	}
	list.Entries = kept
	return nil, nil
}

func applyKeep(_ context.Context, _ *Engine, c *call, list *inpaint.ImageList) ([]*inpaint.Entry, error) {
	var kept []*inpaint.Entry
	seen := make(map[int]bool, len(c.sel))
	for _, idx := range c.sel {
		if seen[idx] {
			continue
		}
		seen[idx] = true
		kept = append(kept, list.Entries[idx])
	}
	list.Entries = kept
	return kept, nil
}

func applyRedmask(_ context.Context, _ *Engine, c *call, list *inpaint.ImageList) ([]*inpaint.Entry, error) {
	var touched []*inpaint.Entry
	for _, idx := range c.sel {
		m := mask.FromRed(list.Entries[idx].Image)
		touched = append(touched, store(c, list, idx, planar.Convert[float32](m)))
	}
	return touched, nil
}

func applyDilate(_ context.Context, _ *Engine, c *call, list *inpaint.ImageList) ([]*inpaint.Entry, error) {
	radius, err := strconv.Atoi(c.args[0])
	if err != nil || radius < 0 {
		return nil, fmt.Errorf("invalid radius %q", c.args[0])
	}
	var touched []*inpaint.Entry
	for _, idx := range c.sel {
		dilated := mask.Dilate(list.Entries[idx].Image, radius)
		touched = append(touched, store(c, list, idx, dilated))
	}
	return touched, nil
}

// applyInpaint fills the selected images where the mask image, given as an
// argument of the form [index], is nonzero. The mask image itself is skipped
// if it is part of the selection.
func applyInpaint(ctx context.Context, e *Engine, c *call, list *inpaint.ImageList) ([]*inpaint.Entry, error) {
	arg := c.args[0]
	if !strings.HasPrefix(arg, "[") || !strings.HasSuffix(arg, "]") {
		return nil, fmt.Errorf("expected mask argument of the form [index], got %q", arg)
	}
	maskIdx, err := resolveIndex(arg[1:len(arg)-1], list.Len())
	if err != nil {
		return nil, err
	}
	m := mask.FromNonZero(list.Entries[maskIdx].Image)
	var touched []*inpaint.Entry
	for _, idx := range c.sel {
		if idx == maskIdx {
			continue
		}
		filled, err := patch.Fill(ctx, list.Entries[idx].Image, m, e.opts)
		if err != nil {
			return touched, fmt.Errorf("image %d: %w", idx, err)
		}
		touched = append(touched, store(c, list, idx, filled))
	}
	return touched, nil
}
