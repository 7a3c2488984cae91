// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"bytes"
	"text/template"
)

var scriptTmpl = template.Must(template.New("entry_point.py").Parse(`# -*- coding: utf-8 -*-
import re
import sys
import {{ .Module }}
if __name__ == '__main__':
    sys.argv[0] = re.sub(r'(-script\.pyw|\.exe)?$', '', sys.argv[0])
    sys.exit({{ .Module }}.{{ .Func }}())
`))

func renderEntryPointBody(script Script) ([]byte, error) {
	var buf bytes.Buffer
	if err := scriptTmpl.Execute(&buf, map[string]string{
		"Module": script.Module,
		"Func":   script.Attr,
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
