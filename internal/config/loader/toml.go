package loader

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// TOMLLoader loads a TOML launch file.
type TOMLLoader struct {
	fs   FileSystem
	path string
}

// NewTOMLLoader creates a TOML loader for path.
func NewTOMLLoader(path string) *TOMLLoader {
	return NewTOMLLoaderWithFS(DefaultFS(), path)
}

// NewTOMLLoaderWithFS creates a TOML loader reading through fsys.
func NewTOMLLoaderWithFS(fsys FileSystem, path string) *TOMLLoader {
	return &TOMLLoader{fs: fsys, path: path}
}

// Load implements Loader. Files named by an "include" key are loaded
// first and overridden by the including file.
func (l *TOMLLoader) Load() (map[string]any, error) {
	return l.loadWithIncludes(l.path, maxIncludeDepth)
}

// LoadFromReader implements ReaderLoader. Includes are not followed.
func (l *TOMLLoader) LoadFromReader(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parseTOML("<reader>", data)
}

const maxIncludeDepth = 8

func (l *TOMLLoader) loadWithIncludes(path string, depth int) (map[string]any, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("include depth exceeded at %s", path)
	}
	data, err := readFile(l.fs, path)
	if err != nil || data == nil {
		return nil, err
	}
	config, err := parseTOML(path, data)
	if err != nil {
		return nil, err
	}

	includes, err := includeList(config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	delete(config, "include")

	merged := make(map[string]any)
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		layer, err := l.loadWithIncludes(inc, depth-1)
		if err != nil {
			return nil, fmt.Errorf("loading include %s: %w", inc, err)
		}
		merged = DeepMerge(merged, layer)
	}
	return DeepMerge(merged, config), nil
}

func includeList(config map[string]any) ([]string, error) {
	switch v := config["include"].(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("include must be a string or array of strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("include must be a string or array of strings, got %T", v)
	}
}

func parseTOML(source string, data []byte) (map[string]any, error) {
	var config map[string]any
	if err := toml.Unmarshal(data, &config); err != nil {
		pe := &ParseError{Path: source, Message: err.Error(), Err: err}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			pe.Line, pe.Column = de.Position()
		}
		return nil, pe
	}
	return config, nil
}
