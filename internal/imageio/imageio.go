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

// Package imageio reads and writes surfaces in common image file formats,
// plus a lossless zstd-compressed raw dump of the RGBA bytes.
package imageio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"github.com/klauspost/compress/zstd"
	"github.com/stapelberg/inpaint"
	"github.com/xfmoulet/qoi"
	"golang.org/x/sync/errgroup"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Format is a file format surfaces can be written in.
type Format string

const (
	PNG Format = "png"
	QOI Format = "qoi"
	// Surface is the raw format: the magic "SURF", width and height as
	// big-endian uint32, then the zstd-compressed RGBA bytes.
	Surface Format = "surface"
)

const (
	surfaceMagic = "SURF"
	qoiMagic     = "qoif"
)

// maxSurfacePixels bounds the size an image header may claim.
const maxSurfacePixels = 1 << 28

// FormatFromPath returns the format implied by the file name extension of
// path. Unknown extensions yield PNG.
func FormatFromPath(path string) Format {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".qoi"):
		return QOI
	case strings.HasSuffix(lower, ".surface.zst"), strings.HasSuffix(lower, ".surface"):
		return Surface
	default:
		return PNG
	}
}

// ParseFormat validates a format name as passed on the command line or in a
// query parameter.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case PNG, QOI, Surface:
		return f, nil
	case "":
		return PNG, nil
	}
	return "", fmt.Errorf("unknown image format %q (want png, qoi or surface)", name)
}

// ContentType returns the MIME type to serve f with.
func (f Format) ContentType() string {
	switch f {
	case QOI:
		return "image/qoi"
	case Surface:
		return "application/octet-stream"
	default:
		return "image/png"
	}
}

// checkSize rejects images which claim more than maxSurfacePixels pixels.
func checkSize(width, height uint64) error {
	if width*height > maxSurfacePixels {
		return fmt.Errorf("image too large: %dx%d", width, height)
	}
	return nil
}

// DecodeSurface reads a surface from r in any supported format. The claimed
// image size is checked before any pixel data is decoded.
func DecodeSurface(r io.Reader) (inpaint.Surface, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return inpaint.Surface{}, err
	}
	switch {
	case bytes.HasPrefix(b, []byte(surfaceMagic)):
		return decodeRaw(b)
	case bytes.HasPrefix(b, []byte(qoiMagic)):
		// header: magic, width, height (big-endian uint32), channels, colorspace
		if len(b) < 14 {
			return inpaint.Surface{}, fmt.Errorf("qoi: short header")
		}
		w := binary.BigEndian.Uint32(b[4:8])
		h := binary.BigEndian.Uint32(b[8:12])
		if err := checkSize(uint64(w), uint64(h)); err != nil {
			return inpaint.Surface{}, err
		}
		img, err := qoi.Decode(bytes.NewReader(b))
		if err != nil {
			return inpaint.Surface{}, fmt.Errorf("qoi: %v", err)
		}
		return inpaint.SurfaceFromImage(img), nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return inpaint.Surface{}, err
	}
	if err := checkSize(uint64(cfg.Width), uint64(cfg.Height)); err != nil {
		return inpaint.Surface{}, err
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return inpaint.Surface{}, err
	}
	return inpaint.SurfaceFromImage(img), nil
}

func decodeRaw(b []byte) (inpaint.Surface, error) {
	var hdr struct {
		Magic         [4]byte
		Width, Height uint32
	}
	r := bytes.NewReader(b)
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return inpaint.Surface{}, fmt.Errorf("reading surface header: %v", err)
	}
	if err := checkSize(uint64(hdr.Width), uint64(hdr.Height)); err != nil {
		return inpaint.Surface{}, err
	}
	want := 4 * uint64(hdr.Width) * uint64(hdr.Height)
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(max(want, 1)))
	if err != nil {
		return inpaint.Surface{}, err
	}
	defer dec.Close()
	pix, err := dec.DecodeAll(b[len(b)-r.Len():], nil)
	if err != nil {
		return inpaint.Surface{}, fmt.Errorf("zstd: %v", err)
	}
	if uint64(len(pix)) != want {
		return inpaint.Surface{}, fmt.Errorf("%w: header claims %dx%d, got %d bytes",
			inpaint.ErrShapeMismatch, hdr.Width, hdr.Height, len(pix))
	}
	return inpaint.ParseSurface(pix, int(hdr.Width), int(hdr.Height))
}

// EncodeSurface writes s to w in format f.
func EncodeSurface(w io.Writer, s inpaint.Surface, f Format) error {
	switch f {
	case PNG:
		return png.Encode(w, s.Image())
	case QOI:
		return qoi.Encode(w, s.Image())
	case Surface:
		return encodeRaw(w, s)
	}
	return fmt.Errorf("unknown image format %q", f)
}

func encodeRaw(w io.Writer, s inpaint.Surface) error {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return err
	}
	defer enc.Close()
	var buf bytes.Buffer
	buf.WriteString(surfaceMagic)
	binary.Write(&buf, binary.BigEndian, [2]uint32{uint32(s.Width()), uint32(s.Height())})
	if _, err := w.Write(enc.EncodeAll(s.Pix(), buf.Bytes())); err != nil {
		return err
	}
	return nil
}

// ReadFile decodes the surface stored in path.
func ReadFile(path string) (inpaint.Surface, error) {
	f, err := os.Open(path)
	if err != nil {
		return inpaint.Surface{}, err
	}
	defer f.Close()
	s, err := DecodeSurface(f)
	if err != nil {
		return inpaint.Surface{}, fmt.Errorf("%s: %v", path, err)
	}
	return s, nil
}

// ReadFiles decodes all paths concurrently. The result is in the order of
// paths.
func ReadFiles(paths []string) ([]inpaint.Surface, error) {
	surfaces := make([]inpaint.Surface, len(paths))
	var eg errgroup.Group
	for idx, path := range paths {
		idx, path := idx, path // copy
		eg.Go(func() error {
			s, err := ReadFile(path)
			if err != nil {
				return err
			}
			surfaces[idx] = s
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return surfaces, nil
}

// WriteFile atomically replaces path with s, encoded in the format implied by
// the extension of path.
func WriteFile(path string, s inpaint.Surface) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer t.Cleanup()
	bufw := bufio.NewWriter(t)
	if err := EncodeSurface(bufw, s, FormatFromPath(path)); err != nil {
		return err
	}
	if err := bufw.Flush(); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}
