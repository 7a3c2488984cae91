// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package destination implements the install-time write side of a wheel install: where content
// lands, how scripts are generated, and how the final RECORD is assembled.
package destination

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"hash"
	"io"
	"sort"

	"github.com/datawire/wheelinstall/internal/launcher"
	"github.com/datawire/wheelinstall/internal/record"
)

// DefaultHashAlgo is the hash algorithm used for generated RECORD rows unless a destination is
// configured otherwise.
const DefaultHashAlgo = "sha256"

// Error reports that a destination failed to persist a file.
type Error struct {
	Scheme string
	Path   string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("write %s:%s: %s", e.Scheme, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Destination is the write side of an install: somewhere scheme-relative files and generated
// scripts land, with a final step to emit RECORD and any other dist-info metadata.
type Destination interface {
	// WriteFile persists the bytes read from r under scheme at path, marking it executable if
	// requested, and returns the RecordEntry actually written (hash and size are computed from
	// the bytes as they're copied, never trusted from the caller).
	WriteFile(scheme, path string, r io.Reader, executable bool) (record.Entry, error)

	// WriteScript builds the installed form of an entry-point script for the destination's
	// target platform and writes it to the scripts scheme.
	WriteScript(script launcher.Script) (record.Entry, error)

	// Finalize writes extraMetadata into the dist-info directory (resolved via scheme), then
	// writes out RECORD itself: records plus rows for each file in extraMetadata, plus a
	// terminal row naming RECORD with an empty hash and size.
	Finalize(scheme, distInfoDir string, records []record.Entry, extraMetadata map[string][]byte) error
}

func newHasher() hash.Hash { return sha256.New() }

// writtenFile records which scheme and scheme-relative path a WriteFile call actually landed at,
// so that Finalize can later re-express its path relative to the dist-info directory's own scheme
// root (per the RECORD format: paths are relative to the site-packages root that hosts dist-info,
// not to whichever scheme the file happened to be routed to).
type writtenFile struct {
	scheme  string
	relPath string
}

// sortedKeys returns m's keys in ascending order, so that iterating extraMetadata never depends on
// Go's randomized map order -- required for RECORD output to be deterministic across runs.
func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// copyAndDigest copies r's bytes into w, simultaneously hashing them, and returns a RECORD-format
// digest string alongside the byte count. Both destination implementations use this so that a
// file's recorded hash and size always describe exactly what was written, not what the source
// claimed.
func copyAndDigest(w io.Writer, r io.Reader) (digest string, size int64, err error) {
	h := newHasher()
	n, err := io.Copy(io.MultiWriter(w, h), r)
	if err != nil {
		return "", 0, err
	}
	return DefaultHashAlgo + "=" + base64.RawURLEncoding.EncodeToString(h.Sum(nil)), n, nil
}
