// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package platform describes the target environment an install is performed against: where the
// interpreter lives, what install scheme paths to use, and what tag identifies the target for
// Windows launcher stub selection.
package platform

import (
	"fmt"
	"path/filepath"

	"github.com/datawire/wheelinstall/internal/pep425"
)

// A Scheme maps the symbolic install categories of PEP 376/427 to absolute filesystem paths.
type Scheme struct {
	PureLib string `json:"purelib" yaml:"purelib"`
	PlatLib string `json:"platlib" yaml:"platlib"`
	Headers string `json:"headers" yaml:"headers"`
	Scripts string `json:"scripts" yaml:"scripts"`
	Data    string `json:"data" yaml:"data"`
}

// Path returns the absolute root for the named scheme category, and whether that name was
// recognized.
func (s Scheme) Path(category string) (string, bool) {
	switch category {
	case "purelib":
		return s.PureLib, true
	case "platlib":
		return s.PlatLib, true
	case "headers":
		return s.Headers, true
	case "scripts":
		return s.Scripts, true
	case "data":
		return s.Data, true
	default:
		return "", false
	}
}

// Target is the "interpreter interface" of the install engine's external contract: everything the
// engine and launcher builder need to know about the environment being installed in to, and nothing
// about how that environment was introspected (that's a caller concern, not this module's).
type Target struct {
	// ConsoleShebang and GraphicalShebang are the absolute interpreter paths substituted in for
	// "#!python" and "#!pythonw" respectively.
	ConsoleShebang   string `json:"consoleShebang" yaml:"consoleShebang"`
	GraphicalShebang string `json:"graphicalShebang" yaml:"graphicalShebang"`

	Scheme Scheme `json:"scheme" yaml:"scheme"`

	// Tag identifies the target for the purpose of picking a Windows launcher stub
	// architecture. It is ignored entirely on POSIX targets.
	Tag pep425.Tag `json:"tag" yaml:"tag"`

	// Ownership, used only when the destination is assembling archive entries (e.g. an OCI
	// image layer) that carry owner metadata; meaningless to a live filesystem destination.
	UID   int    `json:"uid" yaml:"uid"`
	GID   int    `json:"gid" yaml:"gid"`
	UName string `json:"uname" yaml:"uname"`
	GName string `json:"gname" yaml:"gname"`
}

// Init normalizes the shebangs (each defaults to the other, if one is unset) and validates that
// every scheme entry is an absolute path.
func (t *Target) Init() error {
	if t.ConsoleShebang == "" && t.GraphicalShebang == "" {
		return fmt.Errorf("platform.Target: no shebang interpreter path given")
	}
	if t.ConsoleShebang == "" {
		t.ConsoleShebang = t.GraphicalShebang
	}
	if t.GraphicalShebang == "" {
		t.GraphicalShebang = t.ConsoleShebang
	}
	for _, pair := range []struct {
		name string
		val  string
	}{
		{"purelib", t.Scheme.PureLib},
		{"platlib", t.Scheme.PlatLib},
		{"headers", t.Scheme.Headers},
		{"scripts", t.Scheme.Scripts},
		{"data", t.Scheme.Data},
	} {
		if !filepath.IsAbs(pair.val) {
			return fmt.Errorf("platform.Target: scheme %q is not an absolute path: %q", pair.name, pair.val)
		}
	}
	return nil
}

// IsWindows reports whether Tag targets a Windows platform, based on the platform component of the
// compatibility tag.
func (t Target) IsWindows() bool {
	_, ok := pep425.ResolveStubArch(t.Tag)
	return ok
}
