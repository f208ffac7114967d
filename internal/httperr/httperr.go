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

// Package httperr implements middleware which serves returned errors as HTTP
// errors, internal server errors unless the error carries a status code.
package httperr

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"golang.org/x/net/trace"
)

type Err struct {
	Code int
	Err  error
}

func (h *Err) Error() string {
	return h.Err.Error()
}

func (h *Err) Unwrap() error {
	return h.Err
}

func Error(code int, err error) error {
	return &Err{code, err}
}

// Errorf is shorthand for Error(code, fmt.Errorf(format, args...)).
func Errorf(code int, format string, args ...interface{}) error {
	return &Err{code, fmt.Errorf(format, args...)}
}

// Handle serves h, tracing each request. A trace already present in the
// request context (nested handlers) is reused.
func Handle(h func(http.ResponseWriter, *http.Request) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path // will be modified during request processing
		ctx := r.Context()
		tr, ok := trace.FromContext(ctx)
		if !ok {
			tr = trace.New("HTTP", r.Method+" "+path)
			defer tr.Finish()
			r = r.WithContext(trace.NewContext(ctx, tr))
		}
		err := h(w, r)
		if err == nil {
			return
		}
		if errors.Is(err, context.Canceled) {
			tr.LazyPrintf("client canceled the request")
			return
		}
		code := http.StatusInternalServerError
		unwrapped := err
		var he *Err
		if errors.As(err, &he) {
			code = he.Code
			unwrapped = he.Err
		}
		tr.LazyPrintf("HTTP %d: %v", code, unwrapped)
		if code >= http.StatusInternalServerError {
			tr.SetError()
		}
		log.Printf("%s: HTTP %d %s", path, code, unwrapped)
		http.Error(w, unwrapped.Error(), code)
	})
}
