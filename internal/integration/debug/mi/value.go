package mi

import (
	"slices"
	"strings"
)

// Value is a node in the value tree of an MI record: a Const, a Tuple or a
// List. Values are immutable once parsed.
type Value interface {
	// String renders the value in MI syntax.
	String() string

	isValue()
}

// Const is a quoted C-string constant, stored unescaped.
type Const string

func (Const) isValue() {}

// String renders the constant as a quoted, escaped C string.
func (c Const) String() string {
	return quote(string(c))
}

// Text returns the unescaped text.
func (c Const) Text() string {
	return string(c)
}

// Result is a name=value pair.
type Result struct {
	Name  string
	Value Value
}

// String renders the result in MI syntax.
func (r Result) String() string {
	if r.Name == "" {
		return r.Value.String()
	}
	return r.Name + "=" + r.Value.String()
}

// Tuple is an ordered collection of name=value pairs. Names may repeat.
type Tuple struct {
	results []Result
}

func (Tuple) isValue() {}

// NewTuple creates a tuple from results.
func NewTuple(results ...Result) Tuple {
	return Tuple{results: slices.Clone(results)}
}

// Len returns the number of results.
func (t Tuple) Len() int {
	return len(t.results)
}

// Results returns a copy of the results.
func (t Tuple) Results() []Result {
	return slices.Clone(t.results)
}

// Get returns the first value named name.
func (t Tuple) Get(name string) (Value, bool) {
	for _, r := range t.results {
		if r.Name == name {
			return r.Value, true
		}
	}
	return nil, false
}

// GetAll returns every value named name, in order.
func (t Tuple) GetAll(name string) []Value {
	var out []Value
	for _, r := range t.results {
		if r.Name == name {
			out = append(out, r.Value)
		}
	}
	return out
}

// Const returns the text of the constant named name, or "" if it is absent
// or not a constant.
func (t Tuple) Const(name string) string {
	v, ok := t.Get(name)
	if !ok {
		return ""
	}
	if c, ok := v.(Const); ok {
		return string(c)
	}
	return ""
}

// Tuple returns the tuple named name.
func (t Tuple) Tuple(name string) (Tuple, bool) {
	v, ok := t.Get(name)
	if !ok {
		return Tuple{}, false
	}
	tup, ok := v.(Tuple)
	return tup, ok
}

// List returns the list named name.
func (t Tuple) List(name string) (List, bool) {
	v, ok := t.Get(name)
	if !ok {
		return List{}, false
	}
	l, ok := v.(List)
	return l, ok
}

// String renders the tuple in MI syntax.
func (t Tuple) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	writeResults(&sb, t.results)
	sb.WriteByte('}')
	return sb.String()
}

// List is an ordered collection of either bare values or name=value pairs.
// MI never mixes the two in one list.
type List struct {
	values  []Value
	results []Result
}

func (List) isValue() {}

// NewList creates a list of bare values.
func NewList(values ...Value) List {
	return List{values: slices.Clone(values)}
}

// NewResultList creates a list of name=value pairs.
func NewResultList(results ...Result) List {
	return List{results: slices.Clone(results)}
}

// Len returns the number of elements.
func (l List) Len() int {
	return len(l.values) + len(l.results)
}

// Values returns a copy of the bare values.
func (l List) Values() []Value {
	return slices.Clone(l.values)
}

// Results returns a copy of the name=value elements.
func (l List) Results() []Result {
	return slices.Clone(l.results)
}

// String renders the list in MI syntax.
func (l List) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	if len(l.results) > 0 {
		writeResults(&sb, l.results)
	} else {
		for i, v := range l.values {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(v.String())
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

func writeResults(sb *strings.Builder, results []Result) {
	for i, r := range results {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(r.String())
	}
}

// quote escapes s as an MI C string.
func quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
