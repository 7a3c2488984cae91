// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package destination

import (
	"archive/tar"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/wheelinstall/internal/launcher"
	"github.com/datawire/wheelinstall/internal/pep425"
	"github.com/datawire/wheelinstall/internal/platform"
	"github.com/datawire/wheelinstall/internal/record"
)

func testTarget(t *testing.T, root string) platform.Target {
	t.Helper()
	target := platform.Target{
		ConsoleShebang: "/usr/bin/python3",
		Scheme: platform.Scheme{
			PureLib: filepath.Join(root, "purelib"),
			PlatLib: filepath.Join(root, "platlib"),
			Headers: filepath.Join(root, "headers"),
			Scripts: filepath.Join(root, "bin"),
			Data:    filepath.Join(root, "data"),
		},
		Tag: pep425.Tag{Python: "cp39", ABI: "cp39", Platform: "manylinux2014_x86_64"},
	}
	require.NoError(t, target.Init())
	return target
}

func TestFilesystemWriteFileHashAndSize(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	dest := NewFilesystem(testTarget(t, root))

	entry, err := dest.WriteFile("purelib", "pkg/mod.py", strings.NewReader("print(1)\n"), false)
	require.NoError(t, err)
	assert.Equal(t, "pkg/mod.py", entry.Path)
	assert.True(t, strings.HasPrefix(entry.Hash, "sha256="))
	assert.Equal(t, "9", entry.Size)

	body, err := os.ReadFile(filepath.Join(root, "purelib", "pkg", "mod.py"))
	require.NoError(t, err)
	assert.Equal(t, "print(1)\n", string(body))
}

func TestFilesystemWriteFileExecutableBit(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	dest := NewFilesystem(testTarget(t, root))

	_, err := dest.WriteFile("scripts", "run-me", strings.NewReader("#!/bin/sh\n"), true)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(root, "bin", "run-me"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o111)
}

func TestFilesystemWriteFileRejectsEscape(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	dest := NewFilesystem(testTarget(t, root))

	_, err := dest.WriteFile("purelib", "../../etc/passwd", strings.NewReader("x"), false)
	require.Error(t, err)
}

func TestFilesystemFinalizeWritesRecord(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	dest := NewFilesystem(testTarget(t, root))

	entry, err := dest.WriteFile("purelib", "pkg/mod.py", strings.NewReader("x = 1\n"), false)
	require.NoError(t, err)

	err = dest.Finalize("purelib", "pkg-1.0.dist-info", []record.Entry{entry}, map[string][]byte{
		"INSTALLER": []byte("wheelinstall\n"),
	})
	require.NoError(t, err)

	recordBody, err := os.ReadFile(filepath.Join(root, "purelib", "pkg-1.0.dist-info", "RECORD"))
	require.NoError(t, err)
	assert.Contains(t, string(recordBody), "pkg/mod.py,")
	assert.Contains(t, string(recordBody), "pkg-1.0.dist-info/INSTALLER,")
	assert.Contains(t, string(recordBody), "pkg-1.0.dist-info/RECORD,,\r\n")

	installerBody, err := os.ReadFile(filepath.Join(root, "purelib", "pkg-1.0.dist-info", "INSTALLER"))
	require.NoError(t, err)
	assert.Equal(t, "wheelinstall\n", string(installerBody))
}

func TestFilesystemWriteScriptGeneratesPOSIXLauncher(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	dest := NewFilesystem(testTarget(t, root))

	entry, err := dest.WriteScript(launcher.Script{
		Name: "mytool", Module: "mytool.cli", Attr: "main", Section: launcher.SectionConsole,
	})
	require.NoError(t, err)
	assert.Equal(t, "mytool", entry.Path)

	body, err := os.ReadFile(filepath.Join(root, "bin", "mytool"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "#!/usr/bin/python3\n"))
}

func TestLayerWriteFileAndBuild(t *testing.T) {
	t.Parallel()
	dest := NewLayer(testTarget(t, "/site"), time.Unix(0, 0))

	entry, err := dest.WriteFile("purelib", "pkg/mod.py", strings.NewReader("x = 1\n"), false)
	require.NoError(t, err)
	assert.Equal(t, "pkg/mod.py", entry.Path)

	err = dest.Finalize("purelib", "pkg-1.0.dist-info", []record.Entry{entry}, nil)
	require.NoError(t, err)

	layer, err := dest.Build()
	require.NoError(t, err)
	digest, err := layer.Digest()
	require.NoError(t, err)
	assert.NotEmpty(t, digest.String())
}

func TestLayerAppliesTargetOwnership(t *testing.T) {
	t.Parallel()
	target := testTarget(t, "/site")
	target.UID, target.GID = 1000, 1000
	target.UName, target.GName = "app", "app"
	dest := NewLayer(target, time.Unix(0, 0))

	entry, err := dest.WriteFile("purelib", "pkg/mod.py", strings.NewReader("x = 1\n"), false)
	require.NoError(t, err)

	err = dest.Finalize("purelib", "pkg-1.0.dist-info", []record.Entry{entry}, nil)
	require.NoError(t, err)

	layer, err := dest.Build()
	require.NoError(t, err)
	rc, err := layer.Uncompressed()
	require.NoError(t, err)
	defer rc.Close()

	tr := tar.NewReader(rc)
	found := false
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		if strings.HasSuffix(hdr.Name, "pkg/mod.py") {
			found = true
			assert.Equal(t, 1000, hdr.Uid)
			assert.Equal(t, 1000, hdr.Gid)
			assert.Equal(t, "app", hdr.Uname)
			assert.Equal(t, "app", hdr.Gname)
		}
	}
	assert.True(t, found)
}
