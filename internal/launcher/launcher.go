// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"github.com/datawire/wheelinstall/internal/pep425"
	"github.com/datawire/wheelinstall/internal/platform"
)

// Generate builds the installed form of an entry-point Script for target: a Windows EXE when target
// identifies a Windows platform, or a POSIX script (with an appropriate shebang) otherwise. The
// returned filename has no extension added for POSIX, and ".exe" for Windows.
func Generate(script Script, target platform.Target) (filename string, content []byte, executable bool, err error) {
	interpreter := target.ConsoleShebang
	if script.Section == SectionGUI {
		interpreter = target.GraphicalShebang
	}

	if target.IsWindows() {
		arch, ok := pep425.ResolveStubArch(target.Tag)
		if !ok {
			return "", nil, false, &InvalidScriptError{Name: script.Name, Reason: "no launcher stub for this architecture"}
		}
		data, err := BuildWindows(script, arch, interpreter)
		if err != nil {
			return "", nil, false, err
		}
		return script.Name + ".exe", data, true, nil
	}

	body, err := renderEntryPointBody(script)
	if err != nil {
		return "", nil, false, err
	}
	return script.Name, RewritePOSIX(body, interpreter, ""), true, nil
}
