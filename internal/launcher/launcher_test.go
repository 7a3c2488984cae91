package launcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/wheelinstall/internal/pep425"
	"github.com/datawire/wheelinstall/internal/platform"
)

func TestDetectShebangBarePlaceholder(t *testing.T) {
	t.Parallel()
	rest, gui, flags, ok := DetectShebang([]byte("#!python\nprint('hi')\n"))
	require.True(t, ok)
	assert.False(t, gui)
	assert.Equal(t, "", flags)
	assert.Equal(t, "print('hi')\n", string(rest))
}

func TestDetectShebangGraphical(t *testing.T) {
	t.Parallel()
	_, gui, _, ok := DetectShebang([]byte("#!pythonw\n"))
	require.True(t, ok)
	assert.True(t, gui)
}

func TestDetectShebangEnvWithFlags(t *testing.T) {
	t.Parallel()
	_, gui, flags, ok := DetectShebang([]byte("#!/usr/bin/env python3 -u\nbody\n"))
	require.True(t, ok)
	assert.False(t, gui)
	assert.Equal(t, "-u", flags)
}

func TestDetectShebangNonPython(t *testing.T) {
	t.Parallel()
	_, _, _, ok := DetectShebang([]byte("#!/bin/sh\necho hi\n"))
	assert.False(t, ok)
}

func TestRewritePOSIXSimple(t *testing.T) {
	t.Parallel()
	out := RewritePOSIX([]byte("print(1)\n"), "/usr/bin/python3", "")
	assert.Equal(t, "#!/usr/bin/python3\nprint(1)\n", string(out))
}

func TestRewritePOSIXWithFlags(t *testing.T) {
	t.Parallel()
	out := RewritePOSIX([]byte("print(1)\n"), "/usr/bin/python3", "-u")
	assert.Equal(t, "#!/usr/bin/python3 -u\nprint(1)\n", string(out))
}

func TestRewritePOSIXWhitespaceInterpreterUsesTrampoline(t *testing.T) {
	t.Parallel()
	out := RewritePOSIX([]byte("print(1)\n"), "/opt/my env/python3", "")
	assert.True(t, strings.HasPrefix(string(out), "#!/bin/sh\n"))
	assert.Contains(t, string(out), "exec \"/opt/my env/python3\"")
}

func TestParseEntryPoints(t *testing.T) {
	t.Parallel()
	input := "[console_scripts]\nsample = sample:main\n"
	scripts, err := ParseEntryPoints(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.Equal(t, Script{Name: "sample", Module: "sample", Attr: "main", Section: SectionConsole}, scripts[0])
}

func TestParseEntryPointsRejectsDuplicate(t *testing.T) {
	t.Parallel()
	input := "[console_scripts]\nsample = sample:main\nsample = sample:other\n"
	_, err := ParseEntryPoints(strings.NewReader(input))
	require.Error(t, err)
}

func TestResolveForPlatformFoldsGUIOnPOSIX(t *testing.T) {
	t.Parallel()
	scripts := []Script{
		{Name: "app", Module: "m", Attr: "gui", Section: SectionGUI},
	}
	out, err := ResolveForPlatform(scripts, true)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, SectionConsole, out[0].Section)
}

func TestResolveForPlatformCollisionIsError(t *testing.T) {
	t.Parallel()
	scripts := []Script{
		{Name: "app", Module: "m", Attr: "console", Section: SectionConsole},
		{Name: "app", Module: "m", Attr: "gui", Section: SectionGUI},
	}
	_, err := ResolveForPlatform(scripts, true)
	require.Error(t, err)
}

func TestGenerateWindowsLauncher(t *testing.T) {
	t.Parallel()
	target := platform.Target{
		ConsoleShebang: `C:\Python\python.exe`,
		Tag:            pep425.Tag{Python: "cp39", ABI: "cp39", Platform: "win_amd64"},
	}
	script := Script{Name: "myapp", Module: "myapp.cli", Attr: "main", Section: SectionConsole}

	filename, content, executable, err := Generate(script, target)
	require.NoError(t, err)
	assert.Equal(t, "myapp.exe", filename)
	assert.True(t, executable)
	assert.True(t, strings.Contains(string(content), "#!C:\\Python\\python.exe\r\n"))
}
