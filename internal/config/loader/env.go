package loader

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
)

// DefaultEnvPrefix is the prefix of launch configuration variables.
const DefaultEnvPrefix = "MICTL_"

// EnvLoader reads overrides from environment variables.
//
// Variables in the mapping go to their mapped path. Any other variable
// with the prefix maps by lower-casing the rest of its name and turning
// "__" into a path separator: MICTL_DEBUGGER__PATH sets debugger.path,
// MICTL_STOP_ON_ENTRY sets stop_on_entry. Keys below a verbatim section
// keep their case, so MICTL_ENV__LD_LIBRARY_PATH sets env.LD_LIBRARY_PATH.
type EnvLoader struct {
	prefix  string
	mapping map[string]string
	environ func() []string
}

// NewEnvLoader creates a loader for variables starting with prefix.
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: defaultEnvMapping(prefix),
		environ: os.Environ,
	}
}

func defaultEnvMapping(prefix string) map[string]string {
	return map[string]string{
		prefix + "GDB":      "debugger.path",
		prefix + "GDB_ARGS": "debugger.args",
	}
}

// AddMapping maps envVar to a configuration path.
func (l *EnvLoader) AddMapping(envVar, path string) {
	l.mapping[envVar] = path
}

// Load implements Loader. Empty values count as set.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		path, mapped := l.mapping[name]
		if !mapped {
			path = l.envToPath(name)
		}
		if path == "" {
			continue
		}
		setByPath(config, path, parseValue(value))
	}
	return config, nil
}

// verbatimSections hold user-named keys such as debuggee variables.
var verbatimSections = map[string]bool{"env": true}

func (l *EnvLoader) envToPath(name string) string {
	segments := strings.Split(strings.TrimPrefix(name, l.prefix), "__")
	path := make([]string, 0, len(segments))
	for i, seg := range segments {
		seg = strings.ToLower(seg)
		path = append(path, seg)
		if verbatimSections[seg] && i+1 < len(segments) {
			path = append(path, strings.Join(segments[i+1:], "__"))
			break
		}
	}
	return strings.Join(path, ".")
}

// parseValue types an environment value. Durations stay strings; the
// launch config decoder parses them.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	return s
}
