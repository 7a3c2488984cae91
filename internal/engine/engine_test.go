// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/wheelinstall/internal/destination"
	"github.com/datawire/wheelinstall/internal/pep425"
	"github.com/datawire/wheelinstall/internal/platform"
	"github.com/datawire/wheelinstall/internal/record"
	"github.com/datawire/wheelinstall/internal/wheelsource"
)

// fakeSource is a minimal in-memory wheelsource.Source for exercising the engine without a real
// ZIP archive on disk.
type fakeSource struct {
	name, version string
	distInfoDir   string
	metadata      wheelsource.Metadata
	elements      []wheelsource.ContentElement
	cursor        int
}

func (f *fakeSource) Distribution() (string, string) { return f.name, f.version }
func (f *fakeSource) DistInfoDir() string             { return f.distInfoDir }
func (f *fakeSource) Metadata() wheelsource.Metadata  { return f.metadata }
func (f *fakeSource) Close() error                    { return nil }

func (f *fakeSource) Next() (wheelsource.ContentElement, bool, error) {
	if f.cursor >= len(f.elements) {
		return wheelsource.ContentElement{}, false, nil
	}
	elem := f.elements[f.cursor]
	f.cursor++
	return elem, true, nil
}

func contentElement(path, scheme, storePath, body string, executable bool) wheelsource.ContentElement {
	return wheelsource.ContentElement{
		Record: record.Entry{Path: path},
		Scheme: scheme, StorePath: storePath, Executable: executable,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(body)), nil },
	}
}

func testTarget(t *testing.T, root string) platform.Target {
	t.Helper()
	target := platform.Target{
		ConsoleShebang:   "/usr/bin/python3",
		GraphicalShebang: "/usr/bin/pythonw3",
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

func TestInstallHappyPath(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	target := testTarget(t, root)
	dst := destination.NewFilesystem(target)

	distInfo := "sample-1.0.0.dist-info"
	src := &fakeSource{
		name: "sample", version: "1.0.0", distInfoDir: distInfo,
		metadata: wheelsource.Metadata{WheelVersion: "1.0", RootIsPurelib: true},
		elements: []wheelsource.ContentElement{
			contentElement("sample/__init__.py", "purelib", "sample/__init__.py", "# pkg\n", false),
			contentElement(distInfo+"/entry_points.txt", "purelib", distInfo+"/entry_points.txt",
				"[console_scripts]\nsample = sample.cli:main\n", false),
			contentElement(distInfo+"/METADATA", "purelib", distInfo+"/METADATA", "Name: sample\n", false),
		},
	}

	name, version, err := Install(src, dst, target, Options{
		AdditionalMetadata: map[string][]byte{"INSTALLER": []byte("wheelinstall\n")},
	})
	require.NoError(t, err)
	assert.Equal(t, "sample", name)
	assert.Equal(t, "1.0.0", version)

	scriptBody, err := os.ReadFile(filepath.Join(root, "bin", "sample"))
	require.NoError(t, err)
	assert.Contains(t, string(scriptBody), "import sample.cli")
	assert.Contains(t, string(scriptBody), "sample.cli.main()")

	recordBody, err := os.ReadFile(filepath.Join(root, "purelib", distInfo, "RECORD"))
	require.NoError(t, err)
	assert.Contains(t, string(recordBody), "sample/__init__.py,")
	assert.Contains(t, string(recordBody), distInfo+"/INSTALLER,")
	assert.Contains(t, string(recordBody), distInfo+"/RECORD,,\r\n")
}

func TestInstallRewritesShebangScript(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	target := testTarget(t, root)
	dst := destination.NewFilesystem(target)

	distInfo := "sample-1.0.0.dist-info"
	src := &fakeSource{
		name: "sample", version: "1.0.0", distInfoDir: distInfo,
		metadata: wheelsource.Metadata{WheelVersion: "1.0", RootIsPurelib: true},
		elements: []wheelsource.ContentElement{
			contentElement("sample-1.0.0.data/scripts/run-sample", "scripts", "run-sample",
				"#!python\nprint('hi')\n", true),
		},
	}

	_, _, err := Install(src, dst, target, Options{})
	require.NoError(t, err)

	body, err := os.ReadFile(filepath.Join(root, "bin", "run-sample"))
	require.NoError(t, err)
	assert.Equal(t, "#!/usr/bin/python3\nprint('hi')\n", string(body))
}

func TestInstallDetectsRecordMismatch(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	target := testTarget(t, root)
	dst := destination.NewFilesystem(target)

	distInfo := "sample-1.0.0.dist-info"
	elem := contentElement("sample/__init__.py", "purelib", "sample/__init__.py", "# pkg\n", false)
	elem.Record.Hash = "sha256=deadbeef"
	src := &fakeSource{
		name: "sample", version: "1.0.0", distInfoDir: distInfo,
		metadata: wheelsource.Metadata{WheelVersion: "1.0", RootIsPurelib: true},
		elements: []wheelsource.ContentElement{elem},
	}

	_, _, err := Install(src, dst, target, Options{})
	require.Error(t, err)
	var mismatch *RecordMismatchError
	assert.ErrorAs(t, err, &mismatch)
}
