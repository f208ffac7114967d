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

// Program inpaint removes the regions painted in pure red on a mask overlay
// from an image, or runs a batch command over a list of images:
//
//	inpaint -image photo.png -mask overlay.png -out result.png
//	inpaint -command '-redmask[1] -inpaint[0] [1] -rm[1]' -out_dir out photo=photo.png overlay=overlay.png
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/stapelberg/inpaint"
	"github.com/stapelberg/inpaint/internal/imageio"
	"github.com/stapelberg/inpaint/internal/patch"
	"github.com/stapelberg/inpaint/internal/script"
)

var (
	imagePath = flag.String("image",
		"",
		"Path to the source image (PNG, JPEG, GIF, BMP, TIFF, WebP, QOI or .surface.zst)")

	maskPath = flag.String("mask",
		"",
		"Path to the mask overlay. Pixels which are exactly pure red (255, 0, 0) are inpainted.")

	outPath = flag.String("out",
		"inpainted.png",
		"Path to write the result to. The format is chosen by extension: .png, .qoi or .surface.zst")

	command = flag.String("command",
		"",
		"If non-empty, run this batch command over the name=path arguments instead of inpainting -image")

	outDir = flag.String("out_dir",
		".",
		"Directory in which -command results are written as <name>.png")

	dilationRadius = flag.Int("dilation_radius",
		inpaint.DefaultDilationRadius,
		"Radius by which the red mask is grown before inpainting")

	patchSize = flag.Int("patch_size",
		patch.DefaultOptions().PatchSize,
		"Side length of the compared patches")

	lookupSize = flag.Int("lookup_size",
		patch.DefaultOptions().LookupSize,
		"Half-width of the window searched for source patches")

	lookupIncrement = flag.Int("lookup_increment",
		patch.DefaultOptions().LookupIncrement,
		"Step between candidate source patches")
)

func patchOptions() patch.Options {
	return patch.Options{
		PatchSize:       *patchSize,
		LookupSize:      *lookupSize,
		LookupIncrement: *lookupIncrement,
	}
}

func inpaintFile(ctx context.Context) error {
	if *imagePath == "" || *maskPath == "" {
		return fmt.Errorf("both -image and -mask must be specified")
	}
	surfaces, err := imageio.ReadFiles([]string{*imagePath, *maskPath})
	if err != nil {
		return err
	}
	p := inpaint.NewPipeline(inpaint.Options{
		DilationRadius: *dilationRadius,
		Inpainter:      patch.NewInpainter(patchOptions()),
	})
	result, err := p.Inpaint(ctx, surfaces[0], surfaces[1])
	if err != nil {
		return err
	}
	if err := imageio.WriteFile(*outPath, result); err != nil {
		return err
	}
	log.Printf("wrote %dx%d result to %s", result.Width(), result.Height(), *outPath)
	return nil
}

// parseInputs splits name=path arguments. A bare path is named after its
// file name without extension.
func parseInputs(args []string) (names, paths []string) {
	for _, arg := range args {
		name, path, ok := strings.Cut(arg, "=")
		if !ok {
			path = arg
			name = strings.TrimSuffix(filepath.Base(arg), filepath.Ext(arg))
		}
		names = append(names, name)
		paths = append(paths, path)
	}
	return names, paths
}

func runCommand(ctx context.Context, args []string) error {
	names, paths := parseInputs(args)
	surfaces, err := imageio.ReadFiles(paths)
	if err != nil {
		return err
	}
	res, err := inpaint.RunCommand(ctx, script.New(patchOptions()), *command, surfaces, names)
	if err != nil {
		return err
	}
	for i, s := range res.Surfaces {
		fn := filepath.Join(*outDir, filepath.Base(res.Names[i])+".png")
		if err := imageio.WriteFile(fn, s); err != nil {
			return err
		}
		log.Printf("wrote %s (%dx%d)", fn, s.Width(), s.Height())
	}
	return nil
}

func main() {
	flag.Parse()
	ctx := context.Background()
	var err error
	if *command != "" {
		err = runCommand(ctx, flag.Args())
	} else {
		err = inpaintFile(ctx)
	}
	if err != nil {
		log.Fatal(err)
	}
}
