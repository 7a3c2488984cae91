// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package destination

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	ociv1 "github.com/google/go-containerregistry/pkg/v1"
	ociv1tarball "github.com/google/go-containerregistry/pkg/v1/tarball"

	"github.com/datawire/wheelinstall/internal/launcher"
	"github.com/datawire/wheelinstall/internal/platform"
	"github.com/datawire/wheelinstall/internal/record"
	"github.com/datawire/wheelinstall/pkg/fsutil"
)

// Layer is a Destination that accumulates written files in memory and, on Build, packages them
// as a single OCI image layer instead of touching a real filesystem. It is meant for building a
// container image layer that bakes in an installed wheel without ever unpacking it to disk.
type Layer struct {
	Target    platform.Target
	ClampTime time.Time

	vfs     map[string]fsutil.FileReference
	written []writtenFile
}

// NewLayer returns a Layer destination rooted at target's scheme paths, with every file's mtime
// clamped to clampTime so that building the same wheel twice produces byte-identical layers.
func NewLayer(target platform.Target, clampTime time.Time) *Layer {
	return &Layer{
		Target:    target,
		ClampTime: clampTime,
		vfs:       make(map[string]fsutil.FileReference),
	}
}

func (d *Layer) fullName(scheme, relPath string) (string, error) {
	base, ok := d.Target.Scheme.Path(scheme)
	if !ok {
		return "", fmt.Errorf("unrecognized scheme %q", scheme)
	}
	full := path.Join(strings.TrimPrefix(base, "/"), relPath)
	return full, nil
}

func (d *Layer) put(fullName string, content []byte, executable bool) {
	mode := int64(0o644)
	if executable {
		mode = 0o755
	}
	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     fullName,
		Mode:     mode,
		Size:     int64(len(content)),
		ModTime:  d.ClampTime,
		Uid:      d.Target.UID,
		Gid:      d.Target.GID,
		Uname:    d.Target.UName,
		Gname:    d.Target.GName,
	}
	d.vfs[fullName] = &fsutil.InMemFileReference{
		FileInfo:  header.FileInfo(),
		MFullName: fullName,
		MContent:  content,
	}
}

// WriteFile implements Destination.
func (d *Layer) WriteFile(scheme, relPath string, r io.Reader, executable bool) (record.Entry, error) {
	fullName, err := d.fullName(scheme, relPath)
	if err != nil {
		return record.Entry{}, &Error{Scheme: scheme, Path: relPath, Err: err}
	}

	var buf bytes.Buffer
	digest, size, err := copyAndDigest(&buf, r)
	if err != nil {
		return record.Entry{}, &Error{Scheme: scheme, Path: relPath, Err: err}
	}

	d.put(fullName, buf.Bytes(), executable)
	d.written = append(d.written, writtenFile{scheme: scheme, relPath: relPath})

	return record.Entry{
		Path: relPath,
		Hash: digest,
		Size: fmt.Sprint(size),
	}, nil
}

// WriteScript implements Destination.
func (d *Layer) WriteScript(script launcher.Script) (record.Entry, error) {
	filename, content, executable, err := launcher.Generate(script, d.Target)
	if err != nil {
		return record.Entry{}, err
	}
	return d.WriteFile("scripts", filename, bytes.NewReader(content), executable)
}

// Finalize implements Destination. After it returns, Build assembles the accumulated files into an
// OCI layer.
func (d *Layer) Finalize(scheme, distInfoDir string, records []record.Entry, extraMetadata map[string][]byte) error {
	for _, name := range sortedKeys(extraMetadata) {
		relPath := distInfoDir + "/" + name
		entry, err := d.WriteFile(scheme, relPath, bytes.NewReader(extraMetadata[name]), false)
		if err != nil {
			return err
		}
		records = append(records, entry)
	}

	recordPath := distInfoDir + "/RECORD"

	baseFull, err := d.fullName(scheme, "")
	if err != nil {
		return &Error{Scheme: scheme, Path: recordPath, Err: err}
	}

	finalRecords := make([]record.Entry, 0, len(records)+1)
	for i, entry := range records {
		we := d.written[i]
		fileFull, err := d.fullName(we.scheme, we.relPath)
		if err != nil {
			return &Error{Scheme: we.scheme, Path: we.relPath, Err: err}
		}
		finalRecords = append(finalRecords, record.Entry{
			Path: relSlashPath(baseFull, fileFull),
			Hash: entry.Hash,
			Size: entry.Size,
		})
	}
	finalRecords = append(finalRecords, record.Entry{Path: recordPath})

	var buf bytes.Buffer
	if err := record.WriteAll(&buf, finalRecords); err != nil {
		return &Error{Scheme: scheme, Path: recordPath, Err: err}
	}

	fullName, err := d.fullName(scheme, recordPath)
	if err != nil {
		return &Error{Scheme: scheme, Path: recordPath, Err: err}
	}
	d.put(fullName, buf.Bytes(), false)
	return nil
}

// relSlashPath computes target's path relative to base, treating both as slash-separated virtual
// paths with no notion of a host filesystem root -- unlike Filesystem, a Layer's scheme roots are
// just strings, so this can't use filepath.Rel.
func relSlashPath(base, target string) string {
	baseParts := splitSlashPath(base)
	targetParts := splitSlashPath(target)

	common := 0
	for common < len(baseParts) && common < len(targetParts) && baseParts[common] == targetParts[common] {
		common++
	}

	segments := make([]string, 0, (len(baseParts)-common)+(len(targetParts)-common))
	for i := common; i < len(baseParts); i++ {
		segments = append(segments, "..")
	}
	segments = append(segments, targetParts[common:]...)
	return strings.Join(segments, "/")
}

func splitSlashPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Build packages every file written so far into a single OCI image layer, ordered and timestamped
// by fsutil.LayerFromFileReferences.
func (d *Layer) Build(opts ...ociv1tarball.LayerOption) (ociv1.Layer, error) {
	refs := make([]fsutil.FileReference, 0, len(d.vfs))
	for _, ref := range d.vfs {
		refs = append(refs, ref)
	}
	return fsutil.LayerFromFileReferences(refs, d.ClampTime, opts...)
}

var _ Destination = (*Layer)(nil)
