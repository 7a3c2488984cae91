// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pep425 implements the compressed compatibility-tag algebra from PEP 425 -- Compatibility
// Tags for Built Distributions, as used by wheel filenames and installer preference ordering.
//
// https://www.python.org/dev/peps/pep-0425/
package pep425

import "strings"

// A Tag is one (python, abi, platform) compatibility tag, possibly itself a "compressed" tag in
// which any of the three fields is a dot-separated set (e.g. "cp39.cp310").
type Tag struct {
	Python   string
	ABI      string
	Platform string
}

// Decompress expands a (possibly compressed) tag in to every concrete tag it denotes.
func (t Tag) Decompress() []Tag {
	var ret []Tag
	for _, x := range strings.Split(t.Python, ".") {
		for _, y := range strings.Split(t.ABI, ".") {
			for _, z := range strings.Split(t.Platform, ".") {
				ret = append(ret, Tag{x, y, z})
			}
		}
	}
	return ret
}

func (t Tag) String() string {
	return t.Python + "-" + t.ABI + "-" + t.Platform
}

// Intersect reports whether any tag in a matches any tag in b, considering both as compressed tag
// sets.
func Intersect(a, b []Tag) bool {
	for _, a1 := range a {
		for _, a2 := range a1.Decompress() {
			for _, b1 := range b {
				for _, b2 := range b1.Decompress() {
					if a2 == b2 {
						return true
					}
				}
			}
		}
	}
	return false
}

// Installer is a list of tags an installer supports, ordered from most-preferred to
// least-preferred.
type Installer []Tag

// Supports reports whether t is compatible with any tag the installer accepts.
func (inst Installer) Supports(t Tag) bool {
	return Intersect([]Tag(inst), []Tag{t})
}

// Preference returns a numeric representation of how strongly the installer prefers t; lower is
// more preferred. The zero value means "unset" and is never returned for a supported tag.
func (inst Installer) Preference(t Tag) int {
	for i, it := range inst {
		if Intersect([]Tag{it}, []Tag{t}) {
			return i + 1
		}
	}
	return len(inst) + 1
}

// StubArch identifies one of the six precompiled Windows launcher stub architectures.
type StubArch string

const (
	StubArch386   StubArch = "32"
	StubArchAMD64 StubArch = "64"
	StubArchARM64 StubArch = "64-arm"
)

// stubArchByPlatform maps the platform component of a PEP 425 tag to the launcher stub suffix used
// to select between {t,w}{32,64,64-arm}.exe. Tags not present here have no known Windows launcher
// stub.
var stubArchByPlatform = map[string]StubArch{
	"win32":     StubArch386,
	"win_amd64": StubArchAMD64,
	"win_arm64": StubArchARM64,
}

// ResolveStubArch decompresses tag and returns the stub architecture for the first platform
// component recognized as a Windows target. ok is false if none of the compressed platform values
// are a known Windows platform tag.
func ResolveStubArch(tag Tag) (arch StubArch, ok bool) {
	for _, platform := range strings.Split(tag.Platform, ".") {
		if arch, ok := stubArchByPlatform[platform]; ok {
			return arch, true
		}
	}
	return "", false
}
