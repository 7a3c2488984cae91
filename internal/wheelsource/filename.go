// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package wheelsource implements the PEP 427 wheel source protocol: opening a .whl archive,
// validating its layout, and enumerating its contents in RECORD order.
//
// https://packaging.python.org/specifications/binary-distribution-format/
package wheelsource

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/datawire/wheelinstall/internal/pep425"
)

// FilenameError reports that a .whl filename does not conform to PEP 427 naming.
type FilenameError struct {
	Filename string
	Reason   string
}

func (e *FilenameError) Error() string {
	return fmt.Sprintf("invalid wheel filename %q: %s", e.Filename, e.Reason)
}

// FilenameData is the parsed form of a wheel filename:
// "{distribution}-{version}(-{build tag})?-{python tag}-{abi tag}-{platform tag}.whl".
type FilenameData struct {
	Distribution string
	Version      string
	BuildTag     *BuildTag
	Tag          pep425.Tag
}

// BuildTag is the optional numeric-prefixed build tag used to break ties between two wheels that
// are otherwise identical in name, version and compatibility tags.
type BuildTag struct {
	Int int
	Str string
}

func (t BuildTag) String() string {
	return fmt.Sprintf("%d%s", t.Int, t.Str)
}

// Cmp orders build tags: unset sorts before any set value; among set values, the numeric prefix
// compares first, then the remainder lexically.
func (a *BuildTag) Cmp(b *BuildTag) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if d := a.Int - b.Int; d != 0 {
		return d
	}
	switch {
	case a.Str < b.Str:
		return -1
	case a.Str > b.Str:
		return 1
	default:
		return 0
	}
}

var reFilename = regexp.MustCompile(regexp.MustCompile(`\s+`).ReplaceAllString(`
	^(?P<distribution>[^-]+)
	-(?P<version>[^-]+)
	(?:-(?P<build_n>[0-9]+)(?P<build_l>[^-0-9][^-]*)?)?
	-(?P<python>[^-]+)
	-(?P<abi>[^-]+)
	-(?P<platform>[^-]+)
	\.whl$`, ``))

// ParseFilename splits a wheel filename into its distribution, version, optional build tag and
// compatibility tag components.
func ParseFilename(filename string) (*FilenameData, error) {
	base := filename
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}

	match := reFilename.FindStringSubmatch(base)
	if match == nil {
		return nil, &FilenameError{Filename: filename, Reason: "does not match the PEP 427 naming pattern"}
	}

	var data FilenameData
	data.Distribution = match[reFilename.SubexpIndex("distribution")]
	data.Version = match[reFilename.SubexpIndex("version")]

	if buildN := match[reFilename.SubexpIndex("build_n")]; buildN != "" {
		n, _ := strconv.Atoi(buildN)
		data.BuildTag = &BuildTag{Int: n, Str: match[reFilename.SubexpIndex("build_l")]}
	}

	data.Tag = pep425.Tag{
		Python:   match[reFilename.SubexpIndex("python")],
		ABI:      match[reFilename.SubexpIndex("abi")],
		Platform: match[reFilename.SubexpIndex("platform")],
	}

	return &data, nil
}

var reDistNameSeparators = regexp.MustCompile(`[-_.]+`)

// normalizeDistName applies PEP 503 normalization (lowercase, runs of "-_." collapsed to a single
// "-") followed by wheel filename escaping (that same "-" becomes "_"), matching what the dist-info
// directory name is expected to use.
func normalizeDistName(name string) string {
	lowered := strings.ToLower(name)
	collapsed := reDistNameSeparators.ReplaceAllString(lowered, "-")
	return strings.ReplaceAll(collapsed, "-", "_")
}
