package mi

import (
	"strconv"
	"strings"
)

// Parse parses one line of MI output into a Record.
//
// Lines that do not start with an MI sigil (after an optional token) are
// returned as target stream records: the debuggee shares the debugger's
// terminal unless given its own. Structural errors such as unbalanced
// delimiters return a *DecodeError.
func Parse(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")

	if strings.TrimSpace(line) == "(gdb)" {
		return PromptRecord{}, nil
	}

	sigilAt := strings.IndexAny(line, "^*+=~@&")
	if sigilAt < 0 || !isTokenText(line[:sigilAt]) {
		return StreamRecord{Type: KindTargetStream, Text: line}, nil
	}

	tokenText := line[:sigilAt]
	token := parseToken(tokenText)
	p := &parser{line: line, pos: sigilAt + 1}

	switch line[sigilAt] {
	case '~', '@', '&':
		text, err := p.streamText()
		if err != nil {
			return nil, err
		}
		return StreamRecord{Type: streamKind(line[sigilAt]), Text: text}, nil

	case '^':
		class := p.className()
		if class == "" {
			return nil, p.errorf("missing result class")
		}
		results, err := p.resultList()
		if err != nil {
			return nil, err
		}
		return ResultRecord{
			Token:    token,
			HasToken: tokenText != "",
			Class:    ResultClass(class),
			Results:  results,
		}, nil

	default:
		class := p.className()
		if class == "" {
			return nil, p.errorf("missing async class")
		}
		results, err := p.resultList()
		if err != nil {
			return nil, err
		}
		return AsyncRecord{
			Token:   token,
			Type:    asyncKind(line[sigilAt]),
			Class:   class,
			Results: results,
		}, nil
	}
}

// isTokenText reports whether s can be a token prefix. Only digits
// qualify; program output such as "count=3" must not look like MI.
func isTokenText(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// parseToken converts token text to an int, yielding 0 when it does not
// fit in an int.
func parseToken(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func streamKind(c byte) RecordKind {
	switch c {
	case '~':
		return KindConsoleStream
	case '@':
		return KindTargetStream
	default:
		return KindLogStream
	}
}

func asyncKind(c byte) RecordKind {
	switch c {
	case '*':
		return KindExecAsync
	case '+':
		return KindStatusAsync
	default:
		return KindNotifyAsync
	}
}

// parser is a recursive-descent reader over a single line.
type parser struct {
	line string
	pos  int
}

func (p *parser) errorf(reason string) *DecodeError {
	return &DecodeError{Line: p.line, Offset: p.pos, Reason: reason}
}

func (p *parser) eof() bool {
	return p.pos >= len(p.line)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.line[p.pos]
}

// className reads up to the first ',' or end of line.
func (p *parser) className() string {
	start := p.pos
	for !p.eof() && p.line[p.pos] != ',' {
		p.pos++
	}
	return strings.TrimSpace(p.line[start:p.pos])
}

// streamText reads the C string of a stream record. Some debuggers emit
// unquoted stream text; it is taken verbatim.
func (p *parser) streamText() (string, error) {
	if p.peek() != '"' {
		text := p.line[p.pos:]
		p.pos = len(p.line)
		return text, nil
	}
	s, err := p.cstring()
	if err != nil {
		return "", err
	}
	if !p.eof() {
		return "", p.errorf("trailing data after stream text")
	}
	return s, nil
}

// resultList reads ("," result)* to the end of the line. A bare tuple in
// name position is kept as a nameless result: older debuggers emit extra
// breakpoint locations as bkpt={...},{...}.
func (p *parser) resultList() (Tuple, error) {
	var results []Result
	for !p.eof() {
		if p.peek() != ',' {
			return Tuple{}, p.errorf("expected ','")
		}
		p.pos++

		if p.peek() == '{' || p.peek() == '[' {
			v, err := p.value()
			if err != nil {
				return Tuple{}, err
			}
			results = append(results, Result{Value: v})
			continue
		}

		r, err := p.result()
		if err != nil {
			return Tuple{}, err
		}
		results = append(results, r)
	}
	return Tuple{results: results}, nil
}

func (p *parser) result() (Result, error) {
	start := p.pos
	for !p.eof() && p.line[p.pos] != '=' {
		switch p.line[p.pos] {
		case ',', '{', '}', '[', ']', '"':
			return Result{}, p.errorf("expected '=' after name")
		}
		p.pos++
	}
	if p.eof() {
		return Result{}, p.errorf("unexpected end of line in name")
	}
	name := p.line[start:p.pos]
	if name == "" {
		return Result{}, p.errorf("empty name")
	}
	p.pos++ // '='

	v, err := p.value()
	if err != nil {
		return Result{}, err
	}
	return Result{Name: name, Value: v}, nil
}

func (p *parser) value() (Value, error) {
	switch p.peek() {
	case '"':
		s, err := p.cstring()
		if err != nil {
			return nil, err
		}
		return Const(s), nil
	case '{':
		return p.tuple()
	case '[':
		return p.list()
	case 0:
		return nil, p.errorf("unexpected end of line, expected value")
	default:
		return nil, p.errorf("expected value")
	}
}

func (p *parser) tuple() (Value, error) {
	p.pos++ // '{'
	if p.peek() == '}' {
		p.pos++
		return Tuple{}, nil
	}

	var results []Result
	for {
		r, err := p.result()
		if err != nil {
			return nil, err
		}
		results = append(results, r)

		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return Tuple{results: results}, nil
		case 0:
			return nil, p.errorf("unterminated tuple")
		default:
			return nil, p.errorf("expected ',' or '}'")
		}
	}
}

func (p *parser) list() (Value, error) {
	p.pos++ // '['
	if p.peek() == ']' {
		p.pos++
		return List{}, nil
	}

	byValue := p.peek() == '"' || p.peek() == '{' || p.peek() == '['
	var l List
	for {
		if byValue {
			v, err := p.value()
			if err != nil {
				return nil, err
			}
			l.values = append(l.values, v)
		} else {
			r, err := p.result()
			if err != nil {
				return nil, err
			}
			l.results = append(l.results, r)
		}

		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return l, nil
		case 0:
			return nil, p.errorf("unterminated list")
		default:
			return nil, p.errorf("expected ',' or ']'")
		}
	}
}

// cstring reads a quoted C string and unescapes it.
func (p *parser) cstring() (string, error) {
	p.pos++ // opening quote

	var sb strings.Builder
	for !p.eof() {
		c := p.line[p.pos]
		switch c {
		case '"':
			p.pos++
			return sb.String(), nil
		case '\\':
			p.pos++
			if p.eof() {
				return "", p.errorf("unterminated escape")
			}
			p.escape(&sb)
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errorf("unterminated string")
}

// escape decodes the escape sequence at p.pos (just past the backslash).
func (p *parser) escape(sb *strings.Builder) {
	c := p.line[p.pos]
	p.pos++
	switch c {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case 'e':
		sb.WriteByte(0x1b)
	case '0', '1', '2', '3', '4', '5', '6', '7':
		// Up to three octal digits; non-ASCII bytes arrive this way.
		n := int(c - '0')
		for i := 0; i < 2 && !p.eof(); i++ {
			d := p.line[p.pos]
			if d < '0' || d > '7' {
				break
			}
			n = n*8 + int(d-'0')
			p.pos++
		}
		sb.WriteByte(byte(n))
	default:
		sb.WriteByte(c)
	}
}
