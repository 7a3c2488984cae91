// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package wheelsource

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"sort"
	"strings"

	"github.com/datawire/dlib/derror"

	"github.com/datawire/wheelinstall/internal/record"
	"github.com/datawire/wheelinstall/internal/wheelversion"
)

// InvalidSourceError reports that a wheel's archive layout violates expectations: a missing or
// ambiguous dist-info directory, or a RECORD that names files the archive doesn't contain.
type InvalidSourceError struct {
	Reason string
}

func (e *InvalidSourceError) Error() string {
	return "invalid wheel source: " + e.Reason
}

// Metadata is the parsed form of <dist-info>/WHEEL.
type Metadata struct {
	WheelVersion  string
	RootIsPurelib bool
	Generator     string
}

// ContentElement is one file delivered by a wheel source's enumeration: its RECORD row, the scheme
// it routes to, its path relative to that scheme's root, whether it carries the Unix executable
// bit, and a one-shot opener for its decompressed bytes. Bare directory entries are never yielded:
// per this module's design, they are ignored at every layer.
type ContentElement struct {
	Record     record.Entry
	Scheme     string
	StorePath  string
	Executable bool
	Open       func() (io.ReadCloser, error)
}

// Source is a wheel content source: something that can be opened, validated, and drained exactly
// once in RECORD order, then closed.
type Source interface {
	Distribution() (name, version string)
	DistInfoDir() string
	Metadata() Metadata
	Next() (ContentElement, bool, error)
	Close() error
}

// ZipSource is the default Source implementation, backed by the standard archive/zip reader over a
// .whl file on disk.
type ZipSource struct {
	zipReader *zip.ReadCloser
	byName    map[string]*zip.File

	name, version string
	distInfoDir   string
	metadata      Metadata

	records []record.Entry
	cursor  int
}

// Open opens filename as a wheel archive and runs the validation sequence: filename parsing,
// dist-info resolution, WHEEL parsing and version check, and a RECORD-vs-archive completeness
// check. It returns an error of a more specific type (*FilenameError, *InvalidSourceError, or
// *wheelversion.UnsupportedError) identifying which step failed.
func Open(filename string) (*ZipSource, error) {
	filenameData, err := ParseFilename(filename)
	if err != nil {
		return nil, err
	}

	zipReader, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("open wheel %q: %w", filename, err)
	}

	src := &ZipSource{
		zipReader: zipReader,
		byName:    make(map[string]*zip.File, len(zipReader.File)),
		name:      normalizeDistName(filenameData.Distribution),
		version:   filenameData.Version,
	}
	for _, f := range zipReader.File {
		src.byName[path.Clean(f.Name)] = f
	}

	if err := src.resolveDistInfoDir(); err != nil {
		_ = zipReader.Close()
		return nil, err
	}
	if err := src.parseWheelMetadata(); err != nil {
		_ = zipReader.Close()
		return nil, err
	}
	if _, err := wheelversion.Check(src.metadata.WheelVersion); err != nil {
		_ = zipReader.Close()
		return nil, err
	}
	if err := src.parseRecord(); err != nil {
		_ = zipReader.Close()
		return nil, err
	}
	if err := src.checkCompleteness(); err != nil {
		_ = zipReader.Close()
		return nil, err
	}

	return src, nil
}

func (s *ZipSource) resolveDistInfoDir() error {
	dirs := make(map[string]struct{})
	for name := range s.byName {
		first := strings.SplitN(name, "/", 2)[0]
		if strings.HasSuffix(first, ".dist-info") {
			dirs[first] = struct{}{}
		}
	}
	switch len(dirs) {
	case 0:
		return &InvalidSourceError{Reason: "no .dist-info directory found"}
	case 1:
		for dir := range dirs {
			s.distInfoDir = dir
		}
		expect := s.name + "-" + s.version + ".dist-info"
		if s.distInfoDir != expect {
			return &InvalidSourceError{
				Reason: fmt.Sprintf("dist-info directory %q does not match filename-derived %q", s.distInfoDir, expect),
			}
		}
		return nil
	default:
		names := make([]string, 0, len(dirs))
		for dir := range dirs {
			names = append(names, dir)
		}
		sort.Strings(names)
		return &InvalidSourceError{Reason: fmt.Sprintf("multiple .dist-info directories found: %v", names)}
	}
}

func (s *ZipSource) parseWheelMetadata() error {
	f, ok := s.byName[path.Join(s.distInfoDir, "WHEEL")]
	if !ok {
		return &InvalidSourceError{Reason: "dist-info directory has no WHEEL file"}
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	// net/textproto's MIME header reader wants a trailing blank line; WHEEL files don't
	// reliably have one, so pad it.
	header, err := textproto.NewReader(bufio.NewReader(io.MultiReader(rc, strings.NewReader("\r\n\r\n")))).ReadMIMEHeader()
	if err != nil && header == nil {
		return fmt.Errorf("parse WHEEL: %w", err)
	}

	wheelVersion := header.Get("Wheel-Version")
	if wheelVersion == "" {
		return &InvalidSourceError{Reason: "WHEEL file has no Wheel-Version"}
	}
	s.metadata = Metadata{
		WheelVersion:  wheelVersion,
		RootIsPurelib: strings.EqualFold(header.Get("Root-Is-Purelib"), "true"),
		Generator:     header.Get("Generator"),
	}
	return nil
}

func (s *ZipSource) parseRecord() error {
	f, ok := s.byName[path.Join(s.distInfoDir, "RECORD")]
	if !ok {
		return &InvalidSourceError{Reason: "dist-info directory has no RECORD file"}
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	entries, err := record.ParseAll(rc)
	if err != nil {
		return err
	}
	s.records = entries
	return nil
}

// checkCompleteness verifies that every non-directory archive member (other than RECORD itself and
// its detached signature siblings) is named in RECORD. Extra RECORD rows naming files absent from
// the archive are deliberately not treated as fatal here — that surfaces later, as each row is
// consumed, via the normal "file not found" path.
func (s *ZipSource) checkCompleteness() error {
	recordName := path.Join(s.distInfoDir, "RECORD")
	todo := make(map[string]struct{}, len(s.byName))
	for name, f := range s.byName {
		if f.FileInfo().IsDir() {
			continue
		}
		switch name {
		case recordName, recordName + ".jws", recordName + ".p7s":
			continue
		}
		todo[name] = struct{}{}
	}
	for _, entry := range s.records {
		delete(todo, path.Clean(entry.Path))
	}
	if len(todo) == 0 {
		return nil
	}
	missing := make([]string, 0, len(todo))
	for name := range todo {
		missing = append(missing, name)
	}
	sort.Strings(missing)

	var errs derror.MultiError
	for _, name := range missing {
		errs = append(errs, &InvalidSourceError{Reason: fmt.Sprintf("archive member %q is not listed in RECORD", name)})
	}
	return errs
}

// Distribution returns the name and version derived from the wheel's filename.
func (s *ZipSource) Distribution() (name, version string) { return s.name, s.version }

// DistInfoDir returns the "<name>-<version>.dist-info" directory name at the archive root.
func (s *ZipSource) DistInfoDir() string { return s.distInfoDir }

// Metadata returns the parsed WHEEL file contents.
func (s *ZipSource) Metadata() Metadata { return s.metadata }

// Next returns the next content element in RECORD order. Entries whose RECORD row names the RECORD
// file itself, or a bare directory marker, are skipped transparently.
func (s *ZipSource) Next() (ContentElement, bool, error) {
	for s.cursor < len(s.records) {
		entry := s.records[s.cursor]
		s.cursor++

		cleanPath := path.Clean(entry.Path)
		if cleanPath == path.Join(s.distInfoDir, "RECORD") {
			continue
		}

		f, ok := s.byName[cleanPath]
		if !ok {
			return ContentElement{}, false, &InvalidSourceError{
				Reason: fmt.Sprintf("RECORD names %q, which is not present in the archive", entry.Path),
			}
		}
		if f.FileInfo().IsDir() {
			continue
		}

		scheme, storePath := s.routeScheme(cleanPath)
		return ContentElement{
			Record:     entry,
			Scheme:     scheme,
			StorePath:  storePath,
			Executable: isExecutable(f),
			Open:       f.Open,
		}, true, nil
	}
	return ContentElement{}, false, nil
}

// routeScheme implements the §4.C scheme-routing rule: paths under
// "<name>-<version>.data/<scheme>/" route to that scheme with the prefix stripped; dist-info
// members and everything else route to purelib/platlib per Root-Is-Purelib.
func (s *ZipSource) routeScheme(cleanPath string) (scheme, storePath string) {
	dataPrefix := s.name + "-" + s.version + ".data/"
	if rest := strings.TrimPrefix(cleanPath, dataPrefix); rest != cleanPath {
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) == 2 {
			return parts[0], parts[1]
		}
		return parts[0], ""
	}

	if s.metadata.RootIsPurelib {
		return "purelib", cleanPath
	}
	return "platlib", cleanPath
}

// Close releases the underlying archive handle.
func (s *ZipSource) Close() error {
	return s.zipReader.Close()
}

var _ Source = (*ZipSource)(nil)
