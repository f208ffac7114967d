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

package httperr_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stapelberg/inpaint/internal/httperr"
)

func TestHandle(t *testing.T) {
	for _, test := range []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"ok", nil, http.StatusOK, ""},
		{"plain", errors.New("disk full"), http.StatusInternalServerError, "disk full"},
		{"coded", httperr.Errorf(http.StatusBadRequest, "bad mask"), http.StatusBadRequest, "bad mask"},
		{"wrapped", fmt.Errorf("decoding: %w", httperr.Error(http.StatusNotFound, errors.New("gone"))), http.StatusNotFound, "gone"},
	} {
		t.Run(test.name, func(t *testing.T) {
			h := httperr.Handle(func(w http.ResponseWriter, r *http.Request) error {
				return test.err
			})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
			if got, want := rec.Code, test.wantCode; got != want {
				t.Fatalf("unexpected status: got %d, want %d", got, want)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != test.wantBody {
				t.Fatalf("unexpected body: got %q, want %q", got, test.wantBody)
			}
		})
	}
}

func TestHandleCanceled(t *testing.T) {
	h := httperr.Handle(func(w http.ResponseWriter, r *http.Request) error {
		return fmt.Errorf("inpainting: %w", context.Canceled)
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/x", nil))
	if got := rec.Body.Len(); got != 0 {
		t.Fatalf("unexpected body for canceled request: %q", rec.Body.String())
	}
}
