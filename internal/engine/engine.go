// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package engine orchestrates a wheel install: it drives a wheelsource.Source and a
// destination.Destination through the sequence that PEP 427 describes as "unpack, then spread".
package engine

import (
	"bytes"
	"fmt"
	"io"

	"github.com/datawire/wheelinstall/internal/destination"
	"github.com/datawire/wheelinstall/internal/launcher"
	"github.com/datawire/wheelinstall/internal/platform"
	"github.com/datawire/wheelinstall/internal/record"
	"github.com/datawire/wheelinstall/internal/wheelsource"
)

// RecordMismatchError reports that a file actually written during install does not match what the
// wheel's RECORD claimed for it.
type RecordMismatchError struct {
	Path   string
	Reason string
}

func (e *RecordMismatchError) Error() string {
	return fmt.Sprintf("RECORD mismatch for %q: %s", e.Path, e.Reason)
}

// Options configures a single Install call.
type Options struct {
	// AdditionalMetadata is written verbatim into the dist-info directory during finalize. The
	// conventional "INSTALLER" entry belongs here.
	AdditionalMetadata map[string][]byte

	// EntryPoints, if non-nil, is used instead of reading <dist-info>/entry_points.txt from the
	// source. Tests and callers that have already parsed it can avoid a second pass.
	EntryPoints []launcher.Script
}

// Install drives src through destination dst, per Options, and returns the distribution name and
// version installed.
func Install(src wheelsource.Source, dst destination.Destination, target platform.Target, opts Options) (name, version string, err error) {
	name, version = src.Distribution()

	var entryPointsContent []byte
	var records []record.Entry

	for {
		elem, ok, err := src.Next()
		if err != nil {
			return "", "", fmt.Errorf("installing %s %s: %w", name, version, err)
		}
		if !ok {
			break
		}

		if elem.Record.Path == src.DistInfoDir()+"/entry_points.txt" {
			buf, err := readAll(elem)
			if err != nil {
				return "", "", fmt.Errorf("reading entry_points.txt: %w", err)
			}
			entryPointsContent = buf
		}

		entry, err := writeElement(dst, elem, target)
		if err != nil {
			return "", "", fmt.Errorf("installing %s %s: %w", name, version, err)
		}
		if err := verify(elem.Record, entry); err != nil {
			return "", "", err
		}
		records = append(records, entry)
	}

	scripts := opts.EntryPoints
	if scripts == nil && entryPointsContent != nil {
		scripts, err = launcher.ParseEntryPoints(bytes.NewReader(entryPointsContent))
		if err != nil {
			return "", "", fmt.Errorf("parsing entry_points.txt: %w", err)
		}
	}
	scripts, err = launcher.ResolveForPlatform(scripts, !target.IsWindows())
	if err != nil {
		return "", "", err
	}

	for _, script := range scripts {
		entry, err := dst.WriteScript(script)
		if err != nil {
			return "", "", fmt.Errorf("writing script %q: %w", script.Name, err)
		}
		records = append(records, entry)
	}

	meta := src.Metadata()
	scheme := "platlib"
	if meta.RootIsPurelib {
		scheme = "purelib"
	}
	if err := dst.Finalize(scheme, src.DistInfoDir(), records, opts.AdditionalMetadata); err != nil {
		return "", "", fmt.Errorf("finalizing %s %s: %w", name, version, err)
	}

	return name, version, nil
}

// writeElement streams one content element to dst, rewriting a Python shebang first if the element
// lands in the scripts scheme and its content starts with one.
func writeElement(dst destination.Destination, elem wheelsource.ContentElement, target platform.Target) (record.Entry, error) {
	rc, err := elem.Open()
	if err != nil {
		return record.Entry{}, err
	}
	defer rc.Close()

	if elem.Scheme != "scripts" {
		return dst.WriteFile(elem.Scheme, elem.StorePath, rc, elem.Executable)
	}

	// Scripts are small enough to buffer whole; shebang detection needs to see the first line
	// before deciding whether to rewrite at all.
	content, err := io.ReadAll(rc)
	if err != nil {
		return record.Entry{}, err
	}
	body, gui, flags, isShebang := launcher.DetectShebang(content)
	if !isShebang {
		return dst.WriteFile(elem.Scheme, elem.StorePath, bytes.NewReader(content), elem.Executable)
	}

	interpreter := target.ConsoleShebang
	if gui {
		interpreter = target.GraphicalShebang
	}
	rewritten := launcher.RewritePOSIX(body, interpreter, flags)
	return dst.WriteFile(elem.Scheme, elem.StorePath, bytes.NewReader(rewritten), elem.Executable)
}

// verify checks actual (what the destination reports it wrote) against expected (the wheel's own
// RECORD row for that file). Path is deliberately not compared: expected.Path is the file's
// archive-relative path, while actual.Path is its destination-scheme-relative path, and the two
// differ by design for anything under a "<name>-<version>.data/<scheme>/" subtree.
func verify(expected record.Entry, actual record.Entry) error {
	if expected.Hash != "" && expected.Hash != actual.Hash {
		return &RecordMismatchError{Path: actual.Path, Reason: fmt.Sprintf("hash mismatch: RECORD says %q, wrote %q", expected.Hash, actual.Hash)}
	}
	if expected.Size != "" && expected.Size != actual.Size {
		return &RecordMismatchError{Path: actual.Path, Reason: fmt.Sprintf("size mismatch: RECORD says %s, wrote %s", expected.Size, actual.Size)}
	}
	return nil
}

func readAll(elem wheelsource.ContentElement) ([]byte, error) {
	rc, err := elem.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
