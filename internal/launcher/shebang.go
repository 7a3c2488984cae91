// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"bufio"
	"bytes"
	"path"
	"regexp"
	"strings"
)

// reInterpreterBase matches the basename of a Python interpreter shebang, with an optional
// version suffix (e.g. "python3", "python3.11", "pythonw3.9"), capturing whether the "w" (GUI)
// form was used.
var reInterpreterBase = regexp.MustCompile(`^python(w?)[0-9.]*$`)

// DetectShebang inspects the first line of content for a rewritable Python shebang. It recognizes
// the bare PEP 427 placeholder ("#!python", "#!pythonw") as well as a real interpreter shebang whose
// basename is "python"/"pythonw" (optionally invoked through "#!/usr/bin/env"), since real-world
// wheels frequently ship scripts already pointing at a concrete interpreter rather than the bare
// placeholder. gui reports whether the pythonw form was matched. flags holds any whitespace-
// separated tokens that followed the recognized interpreter token, to be preserved verbatim after
// the substituted interpreter path. rest is the script body following the consumed first line.
func DetectShebang(content []byte) (rest []byte, gui bool, flags string, ok bool) {
	if !bytes.HasPrefix(content, []byte("#!")) {
		return nil, false, "", false
	}
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	if !scanner.Scan() {
		return nil, false, "", false
	}
	firstLine := scanner.Text()
	fields := strings.Fields(strings.TrimPrefix(firstLine, "#!"))
	if len(fields) == 0 {
		return nil, false, "", false
	}

	idx := 0
	if base := strings.ToLower(path.Base(fields[0])); base == "env" && len(fields) > 1 {
		idx = 1
	}

	base := strings.ToLower(path.Base(fields[idx]))
	match := reInterpreterBase.FindStringSubmatch(base)
	if match == nil {
		return nil, false, "", false
	}
	gui = match[1] == "w"

	consumed := len(firstLine)
	if consumed < len(content) && content[consumed] == '\r' {
		consumed++
	}
	if consumed < len(content) && content[consumed] == '\n' {
		consumed++
	}
	return content[consumed:], gui, strings.Join(fields[idx+1:], " "), true
}

// RewritePOSIX rewrites a shebang-bearing script body so that it invokes interpreter (with flags, if
// any, preserved after the interpreter path) instead of the original shebang line. If interpreter
// contains whitespace, the output uses the standard `''':'` /bin/sh trampoline, since a literal
// shebang line cannot reliably carry a quoted interpreter path across platforms.
func RewritePOSIX(body []byte, interpreter, flags string) []byte {
	line := interpreter
	if flags != "" {
		line += " " + flags
	}

	var buf bytes.Buffer
	if strings.ContainsAny(interpreter, " \t") {
		buf.WriteString("#!/bin/sh\n")
		buf.WriteString("''':'\n")
		buf.WriteString("exec \"" + interpreter + "\" " + flags + " \"$0\" \"$@\"\n")
		buf.WriteString("'''\n")
	} else {
		buf.WriteString("#!" + line + "\n")
	}
	buf.Write(body)
	return buf.Bytes()
}
