// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package archival

import (
	"os"
	"path/filepath"
)

// scratchDir is a single RAII-scoped temporary directory a block
// writer assembles its CSV payload in before zipping it. The job this
// package replaces called mkdtemp twice per block (once for the
// payload directory, once — unused — for the zip's own directory);
// scratchDir calls it exactly once and always cleans up via Close.
type scratchDir struct {
	path string
}

// newScratchDir creates a fresh temporary directory.
func newScratchDir() (*scratchDir, error) {
	path, err := os.MkdirTemp("", "locationd-archive-*")
	if err != nil {
		return nil, err
	}
	return &scratchDir{path: path}, nil
}

// Join returns name resolved under the scratch directory.
func (d *scratchDir) Join(name string) string {
	return filepath.Join(d.path, name)
}

// Close removes the scratch directory and everything under it.
func (d *scratchDir) Close() error {
	return os.RemoveAll(d.path)
}
