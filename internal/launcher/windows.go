// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"archive/zip"
	"bytes"
	"embed"
	"fmt"

	"github.com/datawire/wheelinstall/internal/pep425"
)

//go:embed stubs/*.exe
var stubFS embed.FS

// stubName returns the embedded asset name for the given console/GUI-ness and architecture, per the
// distlib/pip "simple_launcher" naming convention: a "t" prefix for console, "w" for GUI, then the
// architecture suffix.
func stubName(gui bool, arch pep425.StubArch) string {
	prefix := "t"
	if gui {
		prefix = "w"
	}
	return fmt.Sprintf("stubs/%s%s.exe", prefix, arch)
}

// BuildWindows assembles a simple_launcher-compatible EXE: a precompiled stub chosen by arch and
// console/GUI-ness, followed by the shebang line, followed by a ZIP archive containing a single
// __main__.py that invokes script.
func BuildWindows(script Script, arch pep425.StubArch, interpreter string) ([]byte, error) {
	stub, err := stubFS.ReadFile(stubName(script.Section == SectionGUI, arch))
	if err != nil {
		return nil, &InvalidScriptError{
			Name:   script.Name,
			Reason: fmt.Sprintf("no launcher stub for architecture %q: %v", arch, err),
		}
	}

	var out bytes.Buffer
	out.Write(stub)
	out.WriteString("#!" + interpreter + "\r\n")

	zipBytes, err := mainPyZip(script)
	if err != nil {
		return nil, err
	}
	out.Write(zipBytes)

	return out.Bytes(), nil
}

func mainPyZip(script Script) ([]byte, error) {
	call := fmt.Sprintf("import sys\nimport %s\nsys.exit(%s.%s())\n", script.Module, script.Module, script.Attr)
	if script.Section == SectionGUI {
		call = fmt.Sprintf("import %s\n%s.%s()\n", script.Module, script.Module, script.Attr)
	}

	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)
	fileWriter, err := zipWriter.Create("__main__.py")
	if err != nil {
		return nil, err
	}
	if _, err := fileWriter.Write([]byte(call)); err != nil {
		return nil, err
	}
	if err := zipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
