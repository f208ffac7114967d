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
	"fmt"

	"github.com/stapelberg/inpaint"
	"github.com/stapelberg/inpaint/planar"
)

func ExampleEncode() {
	// A single-channel image whose maximum is 1 is rendered as a label map.
	labels := planar.New[uint8](2, 1, 1, 1)
	labels.Set(0, 0, 0, 0, 1)
	s, err := inpaint.Encode(labels)
	if err != nil {
		panic(err)
	}
	fmt.Println(s.Pix())
	// Output: [255 0 0 255 0 0 0 255]
}
