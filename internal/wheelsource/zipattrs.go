// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package wheelsource

import "archive/zip"

// unixExecBits is the owner/group/other execute bits (0o111) of the Unix permission bits that
// occupy the upper 16 bits of a ZIP entry's external attributes field when the archive was written
// on a Unix-like platform.
const unixExecBits = 0o111 << 16

// isExecutable reports whether f's external attributes mark it executable by its owner, group, or
// other on a Unix-like platform. Archives written from non-Unix platforms don't set these bits, so
// this is conservative: it never marks a Windows-authored entry executable.
func isExecutable(f *zip.File) bool {
	return f.ExternalAttrs&unixExecBits != 0
}
