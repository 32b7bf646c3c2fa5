// Package loader reads launch configuration files and environment
// overrides into nested maps.
//
// TOML and YAML files are supported; FileLoaderFor picks one by file
// extension. Layers are combined with DeepMerge, later layers winning.
package loader

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Loader reads configuration from a source.
type Loader interface {
	// Load returns the configuration, or nil, nil if the source is absent.
	Load() (map[string]any, error)
}

// ReaderLoader parses configuration from a reader.
type ReaderLoader interface {
	LoadFromReader(r io.Reader) (map[string]any, error)
}

// FileSystem abstracts file reads for tests.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

// OSFS reads from the real file system.
type OSFS struct{}

// ReadFile implements FileSystem.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// DefaultFS returns the OS file system.
func DefaultFS() FileSystem {
	return OSFS{}
}

// FileLoaderFor returns a loader for path chosen by its extension.
func FileLoaderFor(fsys FileSystem, path string) (Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return NewTOMLLoaderWithFS(fsys, path), nil
	case ".yaml", ".yml":
		return NewYAMLLoaderWithFS(fsys, path), nil
	default:
		return nil, fmt.Errorf("%s: unsupported config format %q", path, filepath.Ext(path))
	}
}

// LoadLayers runs each loader in order and merges the results, later
// layers overriding earlier ones. Absent sources are skipped.
func LoadLayers(loaders ...Loader) (map[string]any, error) {
	merged := make(map[string]any)
	for _, l := range loaders {
		layer, err := l.Load()
		if err != nil {
			return nil, err
		}
		merged = DeepMerge(merged, layer)
	}
	return merged, nil
}

func readFile(fsys FileSystem, path string) ([]byte, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return data, nil
}

// ParseError reports a file that could not be parsed.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DeepMerge merges src into dst and returns dst. Nested maps merge
// recursively; any other src value replaces the dst value.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
			continue
		}
		if srcIsMap {
			dst[key] = Clone(srcMap)
			continue
		}
		dst[key] = srcVal
	}
	return dst
}

// Clone deep-copies a configuration map.
func Clone(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, val := range src {
		dst[key] = cloneValue(val)
	}
	return dst
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return Clone(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Lookup returns the value at a dot-separated path.
func Lookup(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := data
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
