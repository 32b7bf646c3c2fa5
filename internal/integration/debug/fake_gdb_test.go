package debug

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dshills/mictl/internal/integration/process"
)

// fakeGDB answers MI commands over in-memory pipes.
type fakeGDB struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter
	done    chan struct{}

	mu       sync.Mutex
	ops      []string
	fail     map[string]string
	hang     map[string]bool
	extra    map[string][]string
	noise    map[string][]string
	nextBkpt int
	exited   bool
}

func newFakeGDB() *fakeGDB {
	f := &fakeGDB{
		done:  make(chan struct{}),
		fail:  make(map[string]string),
		hang:  make(map[string]bool),
		extra: make(map[string][]string),
		noise: make(map[string][]string),
	}
	f.stdinR, f.stdinW = io.Pipe()
	f.stdoutR, f.stdoutW = io.Pipe()
	f.stderrR, f.stderrW = io.Pipe()
	go f.serve()
	return f
}

// failOn makes commands named name answer ^error with msg.
func (f *fakeGDB) failOn(name, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[name] = msg
}

// hangOn makes commands named name never answer.
func (f *fakeGDB) hangOn(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hang[name] = true
}

// after emits lines following the result of commands named name.
func (f *fakeGDB) after(name string, lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extra[name] = append(f.extra[name], lines...)
}

// stderrOn writes lines to stderr before answering commands named name.
// The pipe is unbuffered, so the answer waits until they are read.
func (f *fakeGDB) stderrOn(name string, lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noise[name] = append(f.noise[name], lines...)
}

// operations returns the received commands without tokens.
func (f *fakeGDB) operations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeGDB) saw(name string) bool {
	for _, op := range f.operations() {
		if opName(op) == name {
			return true
		}
	}
	return false
}

// crash ends the output stream as if the debugger died.
func (f *fakeGDB) crash() {
	f.mu.Lock()
	f.exited = true
	f.mu.Unlock()
	_ = f.stdoutW.Close()
}

func (f *fakeGDB) stopped() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func opName(op string) string {
	name, _, _ := strings.Cut(op, " ")
	return name
}

func splitToken(line string) (string, string) {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	return line[:i], line[i:]
}

func (f *fakeGDB) serve() {
	defer close(f.done)
	defer f.stderrW.Close()
	defer f.stdoutW.Close()

	scanner := bufio.NewScanner(f.stdinR)
	for scanner.Scan() {
		token, op := splitToken(scanner.Text())
		f.mu.Lock()
		noise := f.noise[opName(op)]
		f.mu.Unlock()
		for _, l := range noise {
			if _, err := io.WriteString(f.stderrW, l+"\n"); err != nil {
				break
			}
		}
		lines, closeOutput := f.reply(token, op)
		for _, l := range lines {
			if _, err := io.WriteString(f.stdoutW, l+"\n"); err != nil {
				break
			}
		}
		if closeOutput {
			_ = f.stdoutW.Close()
		}
	}
}

// reply returns the lines answering op and whether output ends after them.
func (f *fakeGDB) reply(token, op string) ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ops = append(f.ops, op)
	if f.exited {
		return nil, false
	}
	name := opName(op)
	if f.hang[name] {
		return nil, false
	}
	if msg, ok := f.fail[name]; ok {
		return []string{fmt.Sprintf(`%s^error,msg=%q`, token, msg), "(gdb)"}, false
	}

	var out []string
	switch name {
	case "-break-insert":
		f.nextBkpt++
		fields := strings.Fields(op)
		loc := fields[len(fields)-1]
		disp := "keep"
		if strings.Contains(op, " -t ") {
			disp = "del"
		}
		out = append(out, fmt.Sprintf(
			`%s^done,bkpt={number="%d",type="breakpoint",disp="%s",enabled="y",addr="0x1000",func="%s",file="hello.c",fullname="/src/hello.c",line="%d",times="0"}`,
			token, f.nextBkpt, disp, loc, f.nextBkpt))
	case "-break-watch":
		f.nextBkpt++
		fields := strings.Fields(op)
		out = append(out, fmt.Sprintf(`%s^done,wpt={number="%d",exp="%s"}`, token, f.nextBkpt, fields[len(fields)-1]))
	case "-exec-run":
		out = append(out,
			`=thread-group-started,id="i1",pid="4242"`,
			`=thread-created,id="1",group-id="i1"`,
			token+"^running",
			`*running,thread-id="all"`,
		)
	case "-exec-continue", "-exec-next", "-exec-step", "-exec-finish":
		out = append(out, token+"^running", `*running,thread-id="all"`)
	case "-gdb-exit":
		f.exited = true
		return []string{token + "^exit"}, true
	default:
		out = append(out, token+"^done")
	}
	out = append(out, f.extra[name]...)
	return append(out, "(gdb)"), false
}

// Debugger implementation.

func (f *fakeGDB) Stdin() io.WriteCloser { return f.stdinW }
func (f *fakeGDB) Stdout() io.Reader     { return f.stdoutR }
func (f *fakeGDB) Stderr() io.Reader     { return f.stderrR }
func (f *fakeGDB) Done() <-chan struct{} { return f.done }
func (f *fakeGDB) PID() int              { return 4241 }

func (f *fakeGDB) Stop(ctx context.Context, _ time.Duration) error {
	_ = f.stdinR.CloseWithError(io.ErrClosedPipe)
	_ = f.stdoutW.Close()
	_ = f.stderrW.Close()
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fakeLauncher hands out one fakeGDB.
type fakeLauncher struct {
	gdb *fakeGDB
	err error

	mu    sync.Mutex
	specs []process.Spec
}

func (l *fakeLauncher) Launch(spec process.Spec) (Debugger, error) {
	l.mu.Lock()
	l.specs = append(l.specs, spec)
	l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return l.gdb, nil
}

var _ Debugger = (*fakeGDB)(nil)

