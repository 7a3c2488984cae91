// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package destination

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/wheelinstall/internal/launcher"
	"github.com/datawire/wheelinstall/internal/platform"
	"github.com/datawire/wheelinstall/internal/record"
)

// Filesystem is the reference Destination: a scheme-name to absolute-path mapping, writing real
// files under those roots.
type Filesystem struct {
	Target platform.Target

	written []writtenFile
}

// NewFilesystem returns a Filesystem destination rooted at target's scheme paths.
func NewFilesystem(target platform.Target) *Filesystem {
	return &Filesystem{Target: target}
}

func (d *Filesystem) resolve(scheme, relPath string) (string, error) {
	base, ok := d.Target.Scheme.Path(scheme)
	if !ok {
		return "", fmt.Errorf("unrecognized scheme %q", scheme)
	}
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("path %q escapes its scheme root", relPath)
	}
	return filepath.Join(base, clean), nil
}

// WriteFile implements Destination.
func (d *Filesystem) WriteFile(scheme, path string, r io.Reader, executable bool) (record.Entry, error) {
	dest, err := d.resolve(scheme, path)
	if err != nil {
		return record.Entry{}, &Error{Scheme: scheme, Path: path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return record.Entry{}, &Error{Scheme: scheme, Path: path, Err: err}
	}

	mode := os.FileMode(0o644)
	if executable {
		mode = 0o755
	}
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return record.Entry{}, &Error{Scheme: scheme, Path: path, Err: err}
	}

	digest, size, err := copyAndDigest(f, r)
	if err != nil {
		_ = f.Close()
		return record.Entry{}, &Error{Scheme: scheme, Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return record.Entry{}, &Error{Scheme: scheme, Path: path, Err: err}
	}
	// OpenFile's mode is subject to umask; chmod again to guarantee the executable bit lands.
	if executable {
		if err := os.Chmod(dest, mode); err != nil {
			return record.Entry{}, &Error{Scheme: scheme, Path: path, Err: err}
		}
	}

	d.written = append(d.written, writtenFile{scheme: scheme, relPath: path})

	return record.Entry{
		Path: path,
		Hash: digest,
		Size: fmt.Sprint(size),
	}, nil
}

// WriteScript implements Destination.
func (d *Filesystem) WriteScript(script launcher.Script) (record.Entry, error) {
	filename, content, executable, err := launcher.Generate(script, d.Target)
	if err != nil {
		return record.Entry{}, err
	}
	return d.WriteFile("scripts", filename, bytes.NewReader(content), executable)
}

// Finalize implements Destination.
func (d *Filesystem) Finalize(scheme, distInfoDir string, records []record.Entry, extraMetadata map[string][]byte) error {
	for _, name := range sortedKeys(extraMetadata) {
		path := distInfoDir + "/" + name
		entry, err := d.WriteFile(scheme, path, bytes.NewReader(extraMetadata[name]), false)
		if err != nil {
			return err
		}
		records = append(records, entry)
	}

	recordPath := distInfoDir + "/RECORD"

	baseDir, err := d.resolve(scheme, ".")
	if err != nil {
		return &Error{Scheme: scheme, Path: recordPath, Err: err}
	}

	finalRecords := make([]record.Entry, 0, len(records)+1)
	for i, entry := range records {
		we := d.written[i]
		absFile, err := d.resolve(we.scheme, we.relPath)
		if err != nil {
			return &Error{Scheme: we.scheme, Path: we.relPath, Err: err}
		}
		rel, err := filepath.Rel(baseDir, absFile)
		if err != nil {
			return &Error{Scheme: scheme, Path: recordPath, Err: err}
		}
		finalRecords = append(finalRecords, record.Entry{
			Path: filepath.ToSlash(rel),
			Hash: entry.Hash,
			Size: entry.Size,
		})
	}
	finalRecords = append(finalRecords, record.Entry{Path: recordPath})

	dest, err := d.resolve(scheme, recordPath)
	if err != nil {
		return &Error{Scheme: scheme, Path: recordPath, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &Error{Scheme: scheme, Path: recordPath, Err: err}
	}
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &Error{Scheme: scheme, Path: recordPath, Err: err}
	}
	if err := record.WriteAll(f, finalRecords); err != nil {
		_ = f.Close()
		return &Error{Scheme: scheme, Path: recordPath, Err: err}
	}
	return f.Close()
}

var _ Destination = (*Filesystem)(nil)
