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

// Package jobqueue implements a reliable job queue that is persisted to the
// file system.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio"
	"github.com/google/uuid"
	"github.com/stapelberg/inpaint"
	"github.com/stapelberg/inpaint/internal/imageio"
	"golang.org/x/net/trace"
)

const (
	sourceFile = "source.surface.zst"
	maskFile   = "mask.surface.zst"
	resultFile = "result.png"
	errorFile  = "error.txt"
)

// ErrNotDone is returned by Result for jobs which have not completed.
var ErrNotDone = errors.New("job not done")

type Queue struct {
	Dir string
}

type State int

func (s State) String() string {
	switch s {
	case Canceled:
		return "Canceled"
	case Pending:
		return "Pending"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return "<unknown>"
	}
}

const (
	Canceled State = iota
	Pending
	Done
	Failed
)

type Job struct {
	id    string
	dir   string
	state State
	// Err is the failure message of a Failed job.
	Err string
}

// AddJob persists source and mask as a new pending job.
func (q *Queue) AddJob(source, mask inpaint.Surface) (*Job, error) {
	id := uuid.NewString()
	dir := filepath.Join(q.Dir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	job := &Job{id: id, dir: dir}
	if err := imageio.WriteFile(filepath.Join(dir, sourceFile), source); err != nil {
		return nil, err
	}
	if err := imageio.WriteFile(filepath.Join(dir, maskFile), mask); err != nil {
		return nil, err
	}
	if err := job.CommitMarker("submit"); err != nil {
		return nil, err
	}
	return job, nil
}

// Jobs returns all jobs of the queue, ordered by id.
func (q *Queue) Jobs() ([]*Job, error) {
	entries, err := os.ReadDir(q.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var jobs []*Job
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue // not a job directory
		}
		job, err := q.JobById(entry.Name())
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].id < jobs[j].id })
	return jobs, nil
}

// JobById loads the job with the specified id. Ids which are not UUIDs are
// rejected, so that ids from untrusted input cannot escape Dir.
func (q *Queue) JobById(id string) (*Job, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid job id %q: %v", id, err)
	}
	dir := filepath.Join(q.Dir, id)
	job := &Job{
		id:  id,
		dir: dir,
	}
	if err := job.readStateFromDir(); err != nil {
		return nil, err
	}
	return job, nil
}

func (j *Job) readStateFromDir() error {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return err
	}
	j.state = Canceled // zero value
	var done, failed bool
	for _, entry := range entries {
		switch entry.Name() {
		case "COMPLETE.submit":
			j.state = Pending
		case "COMPLETE.inpaint":
			done = true
		case "COMPLETE.failed":
			failed = true
		case errorFile:
			content, err := os.ReadFile(filepath.Join(j.dir, errorFile))
			if err != nil {
				return err
			}
			j.Err = strings.TrimSpace(string(content))
		}
	}
	if j.state == Pending {
		if done {
			j.state = Done
		} else if failed {
			j.state = Failed
		}
	}
	return nil
}

func (j *Job) Id() string {
	return j.id
}

func (j *Job) State() State {
	return j.state
}

// Inputs returns the source and mask surfaces of j.
func (j *Job) Inputs() (source, mask inpaint.Surface, _ error) {
	source, err := imageio.ReadFile(filepath.Join(j.dir, sourceFile))
	if err != nil {
		return inpaint.Surface{}, inpaint.Surface{}, err
	}
	mask, err = imageio.ReadFile(filepath.Join(j.dir, maskFile))
	if err != nil {
		return inpaint.Surface{}, inpaint.Surface{}, err
	}
	return source, mask, nil
}

// ResultPath returns the path of the result image of a Done job.
func (j *Job) ResultPath() (string, error) {
	if j.state != Done {
		return "", fmt.Errorf("%w: job %s is %v", ErrNotDone, j.id, j.state)
	}
	return filepath.Join(j.dir, resultFile), nil
}

// CommitResult stores result and marks j as Done.
func (j *Job) CommitResult(result inpaint.Surface) error {
	if err := imageio.WriteFile(filepath.Join(j.dir, resultFile), result); err != nil {
		return err
	}
	return j.CommitMarker("inpaint")
}

// CommitFailure records failure and marks j as Failed.
func (j *Job) CommitFailure(failure error) error {
	if err := renameio.WriteFile(filepath.Join(j.dir, errorFile), []byte(failure.Error()+"\n"), 0644); err != nil {
		return err
	}
	return j.CommitMarker("failed")
}

func (j *Job) CommitMarker(name string) error {
	if err := os.WriteFile(filepath.Join(j.dir, "COMPLETE."+name), nil, 0600); err != nil {
		return err
	}
	return j.readStateFromDir()
}

// Process runs p on the inputs of the pending job j and commits either the
// result or the failure. The returned error is the pipeline error, if any; it
// has already been recorded in the job.
func Process(ctx context.Context, p *inpaint.Pipeline, j *Job) error {
	tr := trace.New("Process", j.Id())
	defer tr.Finish()
	ctx = trace.NewContext(ctx, tr)

	if j.State() != Pending {
		return fmt.Errorf("job %s is %v, not Pending", j.Id(), j.State())
	}
	source, mask, err := j.Inputs()
	if err != nil {
		tr.LazyPrintf("reading inputs: %v", err)
		tr.SetError()
		return err
	}
	result, err := p.Inpaint(ctx, source, mask)
	if err != nil {
		tr.LazyPrintf("inpainting: %v", err)
		tr.SetError()
		if cerr := j.CommitFailure(err); cerr != nil {
			return cerr
		}
		return err
	}
	return j.CommitResult(result)
}
