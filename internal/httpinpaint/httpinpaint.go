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

// Package httpinpaint implements an HTTP API around the inpainting pipeline,
// the persistent job queue and the batch command engine.
//
// # Example Usage
//
// You can use this API with curl on the command line like so:
//
//	curl -F image=@photo.png -F mask=@overlay.png -o out.png http://localhost:7130/inpaint
//	jobid=$(curl -s -F image=@photo.png -F mask=@overlay.png http://localhost:7130/jobs | jq -r .job)
//	curl http://localhost:7130/job/$jobid/state
//	curl -o out.png http://localhost:7130/job/$jobid/result
//	curl -F photo=@photo.png -F overlay=@overlay.png 'http://localhost:7130/command?cmd=-redmask[1]+-inpaint[0]+[1]'
package httpinpaint

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/stapelberg/inpaint"
	"github.com/stapelberg/inpaint/internal/httperr"
	"github.com/stapelberg/inpaint/internal/imageio"
	"github.com/stapelberg/inpaint/internal/jobqueue"
	"github.com/stapelberg/inpaint/internal/patch"
	"golang.org/x/net/trace"
)

// DefaultMaxRequestBytes bounds the size of request bodies.
const DefaultMaxRequestBytes = 64 << 20

type Config struct {
	Pipeline *inpaint.Pipeline
	Engine   inpaint.Engine

	// Queue and Enqueue serve the /jobs API, which is disabled if Queue is
	// nil. Enqueue is called for every job added, and must not block.
	Queue   *jobqueue.Queue
	Enqueue func(*jobqueue.Job)

	MaxRequestBytes int64
}

// shiftPath from
// https://blog.merovius.de/2017/06/18/how-not-to-use-an-http-router.html:

// shiftPath splits off the first component of p, which will be cleaned of
// relative components before processing. head will never contain a slash and
// tail will always be a rooted path without trailing slash.
func shiftPath(p string) (head, tail string) {
	p = path.Clean("/" + p)
	i := strings.Index(p[1:], "/") + 1
	if i <= 0 {
		return p[1:], "/"
	}
	return p[1:i], p[i:]
}

func requireMethod(r *http.Request, want string) error {
	if got := r.Method; got != want {
		return httperr.Error(
			http.StatusMethodNotAllowed,
			fmt.Errorf("unexpected HTTP method: got %v, want %v", got, want))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(b)
	return err
}

// formSurface decodes the uploaded file of the multipart field name.
func formSurface(r *http.Request, name string) (inpaint.Surface, error) {
	f, _, err := r.FormFile(name)
	if err != nil {
		return inpaint.Surface{}, httperr.Errorf(http.StatusBadRequest, "form field %q: %v", name, err)
	}
	defer f.Close()
	s, err := imageio.DecodeSurface(f)
	if err != nil {
		return inpaint.Surface{}, httperr.Errorf(http.StatusBadRequest, "form field %q: %v", name, err)
	}
	return s, nil
}

// inputs returns the image and mask surfaces of a multipart request.
func (c *Config) inputs(w http.ResponseWriter, r *http.Request) (source, mask inpaint.Surface, _ error) {
	r.Body = http.MaxBytesReader(w, r.Body, c.MaxRequestBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return source, mask, httperr.Errorf(http.StatusBadRequest, "parsing multipart form: %v", err)
	}
	source, err := formSurface(r, "image")
	if err != nil {
		return source, mask, err
	}
	mask, err = formSurface(r, "mask")
	if err != nil {
		return source, mask, err
	}
	if source.Bounds() != mask.Bounds() {
		return source, mask, httperr.Errorf(http.StatusBadRequest,
			"image is %dx%d, but mask is %dx%d",
			source.Width(), source.Height(), mask.Width(), mask.Height())
	}
	if tr, ok := trace.FromContext(r.Context()); ok {
		tr.LazyPrintf("inputs: %dx%d", source.Width(), source.Height())
	}
	return source, mask, nil
}

func (c *Config) serveInpaint(w http.ResponseWriter, r *http.Request) error {
	if err := requireMethod(r, "POST"); err != nil {
		return err
	}
	format, err := imageio.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		return httperr.Error(http.StatusBadRequest, err)
	}
	source, mask, err := c.inputs(w, r)
	if err != nil {
		return err
	}
	result, err := c.Pipeline.Inpaint(r.Context(), source, mask)
	if err != nil {
		if errors.Is(err, patch.ErrNoSource) {
			return httperr.Error(http.StatusUnprocessableEntity, err)
		}
		return err
	}
	var buf bytes.Buffer
	if err := imageio.EncodeSurface(&buf, result, format); err != nil {
		return err
	}
	w.Header().Set("Content-Type", format.ContentType())
	_, err = io.Copy(w, &buf)
	return err
}

func (c *Config) serveJobs(w http.ResponseWriter, r *http.Request) error {
	if err := requireMethod(r, "POST"); err != nil {
		return err
	}
	source, mask, err := c.inputs(w, r)
	if err != nil {
		return err
	}
	job, err := c.Queue.AddJob(source, mask)
	if err != nil {
		return err
	}
	if c.Enqueue != nil {
		c.Enqueue(job)
	}
	return writeJSON(w, struct {
		Job string `json:"job"`
	}{job.Id()})
}

func (c *Config) serveJob(w http.ResponseWriter, r *http.Request) error {
	var jobId, verb string
	jobId, r.URL.Path = shiftPath(strings.TrimPrefix(r.URL.Path, "/job/"))
	verb, _ = shiftPath(r.URL.Path)
	if err := requireMethod(r, "GET"); err != nil {
		return err
	}
	job, err := c.Queue.JobById(jobId)
	if err != nil {
		return httperr.Error(
			http.StatusNotFound,
			fmt.Errorf("job not found"))
	}
	switch verb {
	case "state":
		return writeJSON(w, struct {
			Job   string `json:"job"`
			State string `json:"state"`
			Error string `json:"error,omitempty"`
		}{
			Job:   job.Id(),
			State: job.State().String(),
			Error: job.Err,
		})

	case "result":
		switch job.State() {
		case jobqueue.Done:
			fn, err := job.ResultPath()
			if err != nil {
				return err
			}
			w.Header().Set("Content-Type", imageio.PNG.ContentType())
			http.ServeFile(w, r, fn)
			return nil
		case jobqueue.Failed:
			return fmt.Errorf("job failed: %s", job.Err)
		}
		return httperr.Errorf(http.StatusNotFound, "job is %v, result not yet available", job.State())
	}
	return httperr.Error(
		http.StatusNotFound,
		fmt.Errorf("verb %q not found", verb))
}

func (c *Config) serveCommand(w http.ResponseWriter, r *http.Request) error {
	if err := requireMethod(r, "POST"); err != nil {
		return err
	}
	command := r.URL.Query().Get("cmd")
	r.Body = http.MaxBytesReader(w, r.Body, c.MaxRequestBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		return httperr.Error(http.StatusBadRequest, err)
	}
	var (
		surfaces []inpaint.Surface
		names    []string
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return httperr.Error(http.StatusBadRequest, err)
		}
		name := part.FormName()
		if name == "" {
			continue
		}
		s, err := imageio.DecodeSurface(part)
		part.Close()
		if err != nil {
			return httperr.Errorf(http.StatusBadRequest, "image %q: %v", name, err)
		}
		surfaces = append(surfaces, s)
		names = append(names, name)
	}

	res, err := inpaint.RunCommand(r.Context(), c.Engine, command, surfaces, names)
	if err != nil {
		return err
	}
	reply := struct {
		Names  []string `json:"names"`
		Images []string `json:"images"`
	}{
		Names:  res.Names,
		Images: make([]string, 0, len(res.Surfaces)),
	}
	if reply.Names == nil {
		reply.Names = []string{}
	}
	for _, s := range res.Surfaces {
		var buf bytes.Buffer
		if err := imageio.EncodeSurface(&buf, s, imageio.PNG); err != nil {
			return err
		}
		reply.Images = append(reply.Images, base64.StdEncoding.EncodeToString(buf.Bytes()))
	}
	return writeJSON(w, reply)
}

func ServeMux(cfg Config) *http.ServeMux {
	if cfg.Pipeline == nil {
		cfg.Pipeline = inpaint.NewPipeline(inpaint.DefaultOptions())
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = DefaultMaxRequestBytes
	}
	c := &cfg
	serveMux := http.NewServeMux()
	serveMux.Handle("/inpaint", httperr.Handle(c.serveInpaint))
	if c.Engine != nil {
		serveMux.Handle("/command", httperr.Handle(c.serveCommand))
	}
	if c.Queue != nil {
		serveMux.Handle("/jobs", httperr.Handle(c.serveJobs))
		serveMux.Handle("/job/", httperr.Handle(c.serveJob))
	}
	return serveMux
}
