package loader

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFS is an in-memory FileSystem.
type memFS map[string]string

func (m memFS) ReadFile(path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return []byte(data), nil
}

func TestTOMLLoader_Load(t *testing.T) {
	fsys := memFS{"/launch.toml": `
program = "/bin/hello"
args = ["-v", "x"]
stop_on_entry = true
command_timeout = "5s"

[debugger]
path = "/usr/bin/gdb"
`}

	config, err := NewTOMLLoaderWithFS(fsys, "/launch.toml").Load()
	require.NoError(t, err)

	assert.Equal(t, "/bin/hello", config["program"])
	assert.Equal(t, []any{"-v", "x"}, config["args"])
	assert.Equal(t, true, config["stop_on_entry"])
	v, ok := Lookup(config, "debugger.path")
	require.True(t, ok)
	assert.Equal(t, "/usr/bin/gdb", v)
}

func TestTOMLLoader_Missing(t *testing.T) {
	config, err := NewTOMLLoaderWithFS(memFS{}, "/nope.toml").Load()
	require.NoError(t, err)
	assert.Nil(t, config)
}

func TestTOMLLoader_ParseError(t *testing.T) {
	fsys := memFS{"/bad.toml": "program = \n"}
	_, err := NewTOMLLoaderWithFS(fsys, "/bad.toml").Load()

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "/bad.toml", pe.Path)
	assert.Positive(t, pe.Line)
}

func TestTOMLLoader_Includes(t *testing.T) {
	fsys := memFS{
		"/cfg/base.toml": `
program = "/bin/base"
non_stop = true
[debugger]
path = "gdb-base"
args = ["-q"]
`,
		"/cfg/launch.toml": `
include = "base.toml"
program = "/bin/hello"
[debugger]
path = "gdb-main"
`,
	}

	config, err := NewTOMLLoaderWithFS(fsys, "/cfg/launch.toml").Load()
	require.NoError(t, err)

	assert.Equal(t, "/bin/hello", config["program"])
	assert.Equal(t, true, config["non_stop"])
	assert.NotContains(t, config, "include")
	path, _ := Lookup(config, "debugger.path")
	assert.Equal(t, "gdb-main", path)
	args, _ := Lookup(config, "debugger.args")
	assert.Equal(t, []any{"-q"}, args)
}

func TestTOMLLoader_IncludeCycle(t *testing.T) {
	fsys := memFS{
		"/a.toml": `include = "b.toml"`,
		"/b.toml": `include = "a.toml"`,
	}
	_, err := NewTOMLLoaderWithFS(fsys, "/a.toml").Load()
	assert.ErrorContains(t, err, "include depth exceeded")
}

func TestTOMLLoader_FromReader(t *testing.T) {
	config, err := NewTOMLLoader("").LoadFromReader(strings.NewReader(`attach_pid = 42`))
	require.NoError(t, err)
	assert.Equal(t, int64(42), config["attach_pid"])
}

func TestYAMLLoader_Load(t *testing.T) {
	fsys := memFS{"/launch.yaml": `
program: /bin/hello
breakpoints:
  - main
  - hello.c:12
debugger:
  path: gdb
  args: ["--interpreter=mi3"]
env:
  FOO: bar
`}

	config, err := NewYAMLLoaderWithFS(fsys, "/launch.yaml").Load()
	require.NoError(t, err)

	assert.Equal(t, "/bin/hello", config["program"])
	assert.Equal(t, []any{"main", "hello.c:12"}, config["breakpoints"])
	v, _ := Lookup(config, "debugger.args")
	assert.Equal(t, []any{"--interpreter=mi3"}, v)
	v, _ = Lookup(config, "env.FOO")
	assert.Equal(t, "bar", v)
}

func TestYAMLLoader_EmptyAndInvalid(t *testing.T) {
	fsys := memFS{"/empty.yaml": "", "/bad.yaml": "program: [unclosed\n"}

	config, err := NewYAMLLoaderWithFS(fsys, "/empty.yaml").Load()
	require.NoError(t, err)
	assert.Empty(t, config)

	_, err = NewYAMLLoaderWithFS(fsys, "/bad.yaml").Load()
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestFileLoaderFor(t *testing.T) {
	l, err := FileLoaderFor(memFS{}, "x.toml")
	require.NoError(t, err)
	assert.IsType(t, &TOMLLoader{}, l)

	l, err = FileLoaderFor(memFS{}, "x.YML")
	require.NoError(t, err)
	assert.IsType(t, &YAMLLoader{}, l)

	_, err = FileLoaderFor(memFS{}, "x.json")
	assert.Error(t, err)
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"program":  "a",
		"debugger": map[string]any{"path": "gdb", "args": []any{"-q"}},
	}
	src := map[string]any{
		"program":  "b",
		"debugger": map[string]any{"path": "gdb-multiarch"},
		"cwd":      "/tmp",
	}

	got := DeepMerge(dst, src)
	assert.Equal(t, "b", got["program"])
	assert.Equal(t, "/tmp", got["cwd"])
	v, _ := Lookup(got, "debugger.path")
	assert.Equal(t, "gdb-multiarch", v)
	v, _ = Lookup(got, "debugger.args")
	assert.Equal(t, []any{"-q"}, v)
}

func TestClone(t *testing.T) {
	src := map[string]any{"a": map[string]any{"b": []any{map[string]any{"c": 1}}}}
	dst := Clone(src)
	dst["a"].(map[string]any)["b"].([]any)[0].(map[string]any)["c"] = 2

	v, _ := Lookup(src, "a.b")
	assert.Equal(t, 1, v.([]any)[0].(map[string]any)["c"])
	assert.Nil(t, Clone(nil))
}

func TestLoadLayers(t *testing.T) {
	fsys := memFS{"/launch.toml": `program = "/bin/a"
stop_on_entry = false`}
	env := NewEnvLoader(DefaultEnvPrefix)
	env.environ = func() []string { return []string{"MICTL_STOP_ON_ENTRY=true"} }

	config, err := LoadLayers(NewTOMLLoaderWithFS(fsys, "/launch.toml"), NewTOMLLoaderWithFS(fsys, "/missing.toml"), env)
	require.NoError(t, err)
	assert.Equal(t, "/bin/a", config["program"])
	assert.Equal(t, true, config["stop_on_entry"])
}
