// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package wheelversion checks a wheel's WHEEL file Wheel-Version field against the version of the
// PEP 427 specification this module implements.
package wheelversion

import (
	"fmt"
	"strconv"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// Supported is the Wheel-Version this module was written against. Wheels whose Wheel-Version has a
// greater major component are rejected outright; a greater minor component is accepted, and Check
// reports it through its newer result.
const Supported = "1.0"

// UnsupportedError is returned when a wheel's Wheel-Version major component exceeds Supported's.
type UnsupportedError struct {
	Found string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("wheel's Wheel-Version (%s) is not compatible with this installer (supports %s.x)",
		e.Found, majorOf(Supported))
}

// Check parses found (the WHEEL file's Wheel-Version field) and compares it against Supported.
// newer is true when found's minor component exceeds the supported minor, a condition callers
// should log as a warning rather than treat as fatal.
func Check(found string) (newer bool, err error) {
	if _, err := pep440.Parse(found); err != nil {
		return false, fmt.Errorf("parse Wheel-Version %q: %w", found, err)
	}

	foundMajor, err := strconv.Atoi(majorOf(found))
	if err != nil {
		return false, fmt.Errorf("parse Wheel-Version %q: non-numeric major component", found)
	}
	supportedMajor, _ := strconv.Atoi(majorOf(Supported))

	if foundMajor > supportedMajor {
		return false, &UnsupportedError{Found: found}
	}

	foundVer, _ := pep440.Parse(found)
	supportedVer, _ := pep440.Parse(Supported)
	return foundVer.GreaterThan(supportedVer), nil
}

func majorOf(version string) string {
	if idx := strings.IndexByte(version, '.'); idx >= 0 {
		return version[:idx]
	}
	return version
}
