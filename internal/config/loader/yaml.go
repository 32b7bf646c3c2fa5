package loader

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLLoader loads a YAML launch file.
type YAMLLoader struct {
	fs   FileSystem
	path string
}

// NewYAMLLoader creates a YAML loader for path.
func NewYAMLLoader(path string) *YAMLLoader {
	return NewYAMLLoaderWithFS(DefaultFS(), path)
}

// NewYAMLLoaderWithFS creates a YAML loader reading through fsys.
func NewYAMLLoaderWithFS(fsys FileSystem, path string) *YAMLLoader {
	return &YAMLLoader{fs: fsys, path: path}
}

// Load implements Loader.
func (l *YAMLLoader) Load() (map[string]any, error) {
	data, err := readFile(l.fs, l.path)
	if err != nil || data == nil {
		return nil, err
	}
	return parseYAML(l.path, data)
}

// LoadFromReader implements ReaderLoader.
func (l *YAMLLoader) LoadFromReader(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parseYAML("<reader>", data)
}

func parseYAML(source string, data []byte) (map[string]any, error) {
	var config map[string]any
	if err := yaml.Unmarshal(data, &config); err != nil {
		pe := &ParseError{Path: source, Message: err.Error(), Err: err}
		var te *yaml.TypeError
		if errors.As(err, &te) && len(te.Errors) > 0 {
			pe.Message = te.Errors[0]
		}
		return nil, pe
	}
	if config == nil {
		config = make(map[string]any)
	}
	return normalizeYAML(config).(map[string]any), nil
}

// normalizeYAML turns the map[any]any nodes older documents can produce
// into map[string]any so both file formats merge alike.
func normalizeYAML(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeYAML(e)
		}
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[fmt.Sprint(k)] = normalizeYAML(e)
		}
		return out
	case []any:
		for i, e := range v {
			v[i] = normalizeYAML(e)
		}
		return v
	default:
		return v
	}
}
