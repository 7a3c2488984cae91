// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package destination

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datawire/wheelinstall/internal/record"
	"github.com/datawire/wheelinstall/pkg/fsutil"
)

// buildLayerFile installs the same two files into a fresh Layer destination and writes the
// resulting tar stream to a file under dir, returning its path.
func buildLayerFile(t *testing.T, dir, name string) string {
	t.Helper()
	dest := NewLayer(testTarget(t, "/site"), time.Unix(0, 0))

	modEntry, err := dest.WriteFile("purelib", "pkg/mod.py", strings.NewReader("x = 1\n"), false)
	require.NoError(t, err)
	initEntry, err := dest.WriteFile("purelib", "pkg/__init__.py", strings.NewReader(""), false)
	require.NoError(t, err)

	err = dest.Finalize("purelib", "pkg-1.0.dist-info", []record.Entry{modEntry, initEntry}, map[string][]byte{
		"INSTALLER": []byte("wheelinstall\n"),
	})
	require.NoError(t, err)

	layer, err := dest.Build()
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, fsutil.WriteLayer(layer, f))
	return path
}

// TestLayerBuildIsDeterministic installs the same content into two independent Layer
// destinations, writes each to its own file, reopens one from disk, and checks that the two
// layers are byte-for-byte equal apart from tar timestamps.
func TestLayerBuildIsDeterministic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	pathA := buildLayerFile(t, dir, "a.tar")
	pathB := buildLayerFile(t, dir, "b.tar")

	layerA, err := fsutil.OpenLayer(pathA)
	require.NoError(t, err)
	layerB, err := fsutil.OpenLayer(pathB)
	require.NoError(t, err)

	equal, err := fsutil.LayersEqualExceptTimestamps(layerA, layerB)
	require.NoError(t, err)
	require.True(t, equal, "two installs of identical content should produce identical layers")
}
