package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mictl/internal/integration/debug/mi"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		_ = decodeCmd.Flags().Set("strict", "false")
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDecodeCommand(t *testing.T) {
	transcript := strings.Join([]string{
		`=thread-group-added,id="i1"`,
		`~"GNU gdb (GDB) 14.2\n"`,
		`(gdb)`,
		`1^done,bkpt={number="1",type="breakpoint",disp="keep",enabled="y",addr="0x1139",func="main",file="hello.c",fullname="/src/hello.c",line="4",times="0"}`,
		`2^running`,
		`*running,thread-id="all"`,
		`*stopped,reason="breakpoint-hit",disp="keep",bkptno="1",frame={addr="0x1139",func="main",args=[],file="hello.c",fullname="/src/hello.c",line="4"},thread-id="1",stopped-threads="all"`,
		`3^error,msg="No symbol \"nope\" in current context."`,
		`*stopped,reason="exited",exit-code="03"`,
	}, "\n")

	out, err := execute(t, transcript, "decode")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"[thread-group-added]",
		"GNU gdb (GDB) 14.2",
		`1^done bkpt={number="1",type="breakpoint",disp="keep",enabled="y",addr="0x1139",func="main",file="hello.c",fullname="/src/hello.c",line="4",times="0"}`,
		"2^running",
		"[running] thread=all",
		"[breakpoint-hit] breakpoint 1 thread=1 at main (hello.c:4)",
		`3^error No symbol "nope" in current context.`,
		"[exited] code 03",
	}, strings.Split(strings.TrimRight(out, "\n"), "\n"))
}

func TestDecodeCommand_Strict(t *testing.T) {
	out, err := execute(t, "^done,x={\n", "decode")
	require.NoError(t, err)
	assert.Contains(t, out, "line 1:")

	_, err = execute(t, "^done,x={\n", "decode", "--strict")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mictl dev")
}

func TestFormatEvent_Streams(t *testing.T) {
	ev := mi.ConsoleOutput{Base: mi.NewBase("console", mi.Context{}, 0, mi.Tuple{}), Text: "hello\n"}
	assert.Equal(t, "hello", formatEvent(ev))
}

func TestFormatResult(t *testing.T) {
	assert.Equal(t, "7^done", formatResult(mi.CommandResult{Token: 7, Class: mi.ClassDone}))
	assert.Equal(t, "8^error boom (undefined-command)", formatResult(mi.CommandResult{
		Token: 8, Outcome: mi.OutcomeError, Class: mi.ClassError,
		ErrorMessage: "boom", ErrorCode: "undefined-command",
	}))
}
