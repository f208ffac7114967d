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

package jobqueue_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stapelberg/inpaint"
	"github.com/stapelberg/inpaint/internal/imageio"
	"github.com/stapelberg/inpaint/internal/jobqueue"
)

func solid(t *testing.T, w, h int, px ...byte) inpaint.Surface {
	t.Helper()
	s, err := inpaint.ParseSurface(bytes.Repeat(px, w*h), w, h)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestJobQueue(t *testing.T) {
	dir := t.TempDir()
	source := solid(t, 4, 3, 10, 20, 30, 255)
	mask := solid(t, 4, 3, 0, 0, 0, 0)
	jobId := func() string {
		defaultQueue := &jobqueue.Queue{
			Dir: dir,
		}
		job, err := defaultQueue.AddJob(source, mask)
		if err != nil {
			t.Fatal(err)
		}
		return job.Id()
	}()
	freshQueue := &jobqueue.Queue{
		Dir: dir,
	}
	job, err := freshQueue.JobById(jobId)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := job.State(), jobqueue.Pending; got != want {
		t.Fatalf("unexpected job state: got %v, want %v", got, want)
	}
	gotSource, gotMask, err := job.Inputs()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(source.Pix(), gotSource.Pix()); diff != "" {
		t.Fatalf("source: unexpected diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(mask.Pix(), gotMask.Pix()); diff != "" {
		t.Fatalf("mask: unexpected diff (-want +got):\n%s", diff)
	}
	if _, err := job.ResultPath(); !errors.Is(err, jobqueue.ErrNotDone) {
		t.Fatalf("ResultPath: got err %v, want %v", err, jobqueue.ErrNotDone)
	}

	jobs, err := freshQueue.Jobs()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(jobs), 1; got != want {
		t.Fatalf("unexpected number of jobs: got %d, want %d", got, want)
	}
}

func TestJobByIdRejectsPaths(t *testing.T) {
	q := &jobqueue.Queue{Dir: t.TempDir()}
	for _, id := range []string{"..", "../etc", "foo", ""} {
		if _, err := q.JobById(id); err == nil {
			t.Errorf("JobById(%q): unexpectedly succeeded", id)
		}
	}
}

func TestCanceledJob(t *testing.T) {
	dir := t.TempDir()
	q := &jobqueue.Queue{Dir: dir}
	job, err := q.AddJob(solid(t, 1, 1, 0, 0, 0, 0), solid(t, 1, 1, 0, 0, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, job.Id(), "COMPLETE.submit")); err != nil {
		t.Fatal(err)
	}
	job, err = q.JobById(job.Id())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := job.State(), jobqueue.Canceled; got != want {
		t.Fatalf("unexpected job state: got %v, want %v", got, want)
	}
}

func TestProcess(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	q := &jobqueue.Queue{Dir: dir}
	p := inpaint.NewPipeline(inpaint.DefaultOptions())

	source := solid(t, 16, 16, 40, 50, 60, 255)
	job, err := q.AddJob(source, solid(t, 16, 16, 0, 0, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if err := jobqueue.Process(ctx, p, job); err != nil {
		t.Fatal(err)
	}
	job, err = q.JobById(job.Id())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := job.State(), jobqueue.Done; got != want {
		t.Fatalf("unexpected job state: got %v, want %v", got, want)
	}
	path, err := job.ResultPath()
	if err != nil {
		t.Fatal(err)
	}
	result, err := imageio.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(source.Pix(), result.Pix()); diff != "" {
		t.Fatalf("unexpected diff (-want +got):\n%s", diff)
	}
	if err := jobqueue.Process(ctx, p, job); err == nil {
		t.Fatal("Process of a Done job unexpectedly succeeded")
	}
}

func TestProcessFailure(t *testing.T) {
	ctx := context.Background()
	q := &jobqueue.Queue{Dir: t.TempDir()}
	p := inpaint.NewPipeline(inpaint.DefaultOptions())

	// An overlay which is entirely red leaves nothing to copy from.
	job, err := q.AddJob(solid(t, 4, 4, 1, 2, 3, 255), solid(t, 4, 4, 255, 0, 0, 255))
	if err != nil {
		t.Fatal(err)
	}
	if err := jobqueue.Process(ctx, p, job); err == nil {
		t.Fatal("Process unexpectedly succeeded")
	}
	job, err = q.JobById(job.Id())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := job.State(), jobqueue.Failed; got != want {
		t.Fatalf("unexpected job state: got %v, want %v", got, want)
	}
	if !strings.Contains(job.Err, "inpainting") {
		t.Fatalf("job.Err = %q, want an inpainting error", job.Err)
	}
}
