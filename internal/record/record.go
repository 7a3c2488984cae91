// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package record implements the RECORD file format from the PyPA specification Recording
// installed projects (née PEP 376).
//
// https://packaging.python.org/en/latest/specifications/recording-installed-packages/
package record

import (
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"hash"
	"io"
	"strconv"
	"strings"
)

// An Entry is one row of a RECORD file: a relative path, together with the hash and size that were
// recorded for it.
//
// Hash and Size are kept in their textual form (rather than, say, parsed in to an int64) so that
// callers can tell an empty field apart from a zero value; the RECORD row for RECORD itself, and
// rows for directory placeholders, have both fields empty.
type Entry struct {
	Path string
	Hash string
	Size string
}

// HasDigest reports whether the entry carries a hash/size pair at all. Rows with neither are valid
// and are not subject to per-row verification.
func (e Entry) HasDigest() bool {
	return e.Hash != "" || e.Size != ""
}

// InvalidEntryError is returned by ParseAll (and reported by Cursor.Err) when a RECORD row is
// malformed: the wrong number of columns, or CSV that doesn't parse at all.
type InvalidEntryError struct {
	Line    int
	Content string
	Reason  string
}

func (e *InvalidEntryError) Error() string {
	return fmt.Sprintf("RECORD: line %d: %s: %q", e.Line, e.Reason, e.Content)
}

// MismatchError describes a file whose actual hash or size diverges from what RECORD claims for
// it. Validate does not return it; Validate reports a mismatch as a false result.
type MismatchError struct {
	Path     string
	Field    string // "hash" or "size"
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("RECORD mismatch: %q: %s: expected %q, got %q", e.Path, e.Field, e.Expected, e.Actual)
}

// Cursor is a one-shot, forward-only reader over a RECORD file's rows. It never buffers the whole
// file; callers advance it with Next until it reports done.
type Cursor struct {
	reader *csv.Reader
	line   int
	err    error
}

// NewCursor wraps r as a lazy sequence of Entry rows. The returned Cursor does not read anything
// until Next is called.
func NewCursor(r io.Reader) *Cursor {
	csvReader := csv.NewReader(r)
	csvReader.FieldsPerRecord = -1 // validated by hand below, so we control the error message
	csvReader.ReuseRecord = true
	return &Cursor{reader: csvReader}
}

// Next returns the next Entry in the sequence. ok is false when the sequence is exhausted; the
// caller must check Err afterward to distinguish clean EOF from a parse failure.
func (c *Cursor) Next() (entry Entry, ok bool) {
	if c.err != nil {
		return Entry{}, false
	}
	row, err := c.reader.Read()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			c.err = &InvalidEntryError{
				Line:    c.line + 1,
				Content: fmt.Sprint(row),
				Reason:  parseErr.Err.Error(),
			}
		} else if err != io.EOF {
			c.err = err
		}
		return Entry{}, false
	}
	c.line++
	if len(row) != 3 {
		c.err = &InvalidEntryError{
			Line:    c.line,
			Content: fmt.Sprint(row),
			Reason:  "does not have exactly 3 columns",
		}
		return Entry{}, false
	}
	return Entry{Path: row[0], Hash: row[1], Size: row[2]}, true
}

// Err returns the first error encountered by Next, if any.
func (c *Cursor) Err() error {
	return c.err
}

// ParseAll drains a Cursor in to a slice. It exists for the common case of small RECORD files and
// for tests; production install paths should prefer streaming via Next.
func ParseAll(r io.Reader) ([]Entry, error) {
	cursor := NewCursor(r)
	var entries []Entry
	for {
		entry, ok := cursor.Next()
		if !ok {
			break
		}
		entries = append(entries, entry)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Digest computes the RECORD-format hash string ("algo=urlsafe-base64-nopad-digest") for the bytes
// read from r, using newHash to construct the hasher. It also returns the number of bytes read, so
// that callers can fill in both the Hash and Size columns from a single pass.
func Digest(algo string, newHash func() hash.Hash, r io.Reader) (digest string, size int64, err error) {
	hasher := newHash()
	size, err = io.Copy(hasher, r)
	if err != nil {
		return "", 0, err
	}
	return algo + "=" + base64.RawURLEncoding.EncodeToString(hasher.Sum(nil)), size, nil
}

// Validate reports whether entry's recorded hash and size match the hash produced by hashing r with
// newHash, and r's actual byte count. It never returns an error for a mismatch — only for I/O
// failure reading r. A row with no digest (HasDigest() == false) is always considered valid; callers
// that need per-row verification should skip calling Validate for such rows to avoid the wasted read.
func Validate(entry Entry, newHash func() hash.Hash, r io.Reader) (bool, error) {
	if !entry.HasDigest() {
		return true, nil
	}
	algo := entry.Hash
	if idx := strings.IndexByte(entry.Hash, '='); idx >= 0 {
		algo = entry.Hash[:idx]
	}
	actualHash, actualSize, err := Digest(algo, newHash, r)
	if err != nil {
		return false, err
	}
	if entry.Hash != "" && actualHash != entry.Hash {
		return false, nil
	}
	if entry.Size != "" && strconv.FormatInt(actualSize, 10) != entry.Size {
		return false, nil
	}
	return true, nil
}

// WriteAll serializes entries as a RECORD file: CSV with a comma delimiter, CRLF line endings (to
// match what pip itself emits), and quoting only where RFC 4180 requires it. Exactly one row should
// have an empty Hash and Size, identifying the RECORD file's own path; WriteAll does not enforce
// this — callers build that row themselves, typically last.
func WriteAll(w io.Writer, entries []Entry) error {
	csvWriter := csv.NewWriter(w)
	csvWriter.UseCRLF = true
	for _, entry := range entries {
		if err := csvWriter.Write([]string{entry.Path, entry.Hash, entry.Size}); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}
