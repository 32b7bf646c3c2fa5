package mi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ResultRecord(t *testing.T) {
	rec, err := Parse(`1^done,bkpt={number="2",type="breakpoint"}`)
	require.NoError(t, err)

	rr, ok := rec.(ResultRecord)
	require.True(t, ok, "got %T", rec)
	assert.Equal(t, 1, rr.Token)
	assert.True(t, rr.HasToken)
	assert.Equal(t, ClassDone, rr.Class)

	bkpt, ok := rr.Results.Tuple("bkpt")
	require.True(t, ok)
	assert.Equal(t, "2", bkpt.Const("number"))
	assert.Equal(t, "breakpoint", bkpt.Const("type"))
}

func TestParse_NoToken(t *testing.T) {
	rec, err := Parse(`^done`)
	require.NoError(t, err)

	rr := rec.(ResultRecord)
	assert.False(t, rr.HasToken)
	assert.Equal(t, 0, rr.Token)
	assert.Equal(t, 0, rr.Results.Len())
}

func TestParse_OverflowingToken(t *testing.T) {
	rec, err := Parse(`99999999999999999999999^done`)
	require.NoError(t, err)

	rr := rec.(ResultRecord)
	assert.True(t, rr.HasToken)
	assert.Equal(t, 0, rr.Token)
}

func TestParse_ProgramOutputIsTargetStream(t *testing.T) {
	for _, line := range []string{`count=3`, `sum=1,avg=2`, `ptr*2`, `abc^done`, `x~y`} {
		rec, err := Parse(line)
		require.NoError(t, err, line)

		sr, ok := rec.(StreamRecord)
		require.True(t, ok, "%q parsed as %T", line, rec)
		assert.Equal(t, KindTargetStream, sr.Type)
		assert.Equal(t, line, sr.Text)
	}
}

func TestParse_AsyncKinds(t *testing.T) {
	tests := []struct {
		line  string
		kind  RecordKind
		class string
		token int
	}{
		{`*stopped,reason="end-stepping-range"`, KindExecAsync, "stopped", 0},
		{`12*running,thread-id="all"`, KindExecAsync, "running", 12},
		{`+download,section=".text"`, KindStatusAsync, "download", 0},
		{`=thread-group-added,id="i1"`, KindNotifyAsync, "thread-group-added", 0},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			rec, err := Parse(tt.line)
			require.NoError(t, err)
			ar, ok := rec.(AsyncRecord)
			require.True(t, ok, "got %T", rec)
			assert.Equal(t, tt.kind, ar.Kind())
			assert.Equal(t, tt.class, ar.Class)
			assert.Equal(t, tt.token, ar.Token)
		})
	}
}

func TestParse_Streams(t *testing.T) {
	tests := []struct {
		line string
		kind RecordKind
		text string
	}{
		{`~"Reading symbols...\n"`, KindConsoleStream, "Reading symbols...\n"},
		{`@"hello"`, KindTargetStream, "hello"},
		{`&"warning: \"x\"\n"`, KindLogStream, "warning: \"x\"\n"},
		{`Hello, world!`, KindTargetStream, "Hello, world!"},
		{`  indented output`, KindTargetStream, "  indented output"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			rec, err := Parse(tt.line)
			require.NoError(t, err)
			sr, ok := rec.(StreamRecord)
			require.True(t, ok, "got %T", rec)
			assert.Equal(t, tt.kind, sr.Kind())
			assert.Equal(t, tt.text, sr.Text)
		})
	}
}

func TestParse_Prompt(t *testing.T) {
	for _, line := range []string{"(gdb)", "(gdb) ", "(gdb)\r\n"} {
		rec, err := Parse(line)
		require.NoError(t, err)
		assert.Equal(t, KindPrompt, rec.Kind())
	}
}

func TestParse_Escapes(t *testing.T) {
	rec, err := Parse(`~"tab\there \\ quote\" octal\101\303\251 bell\a"`)
	require.NoError(t, err)
	assert.Equal(t, "tab\there \\ quote\" octalAé bell\a", rec.(StreamRecord).Text)
}

func TestParse_Lists(t *testing.T) {
	rec, err := Parse(`^done,names=["a","b"],frames=[frame={level="0"},frame={level="1"}],empty=[],tuples=[{x="1"},{x="2"}]`)
	require.NoError(t, err)
	res := rec.(ResultRecord).Results

	names, ok := res.List("names")
	require.True(t, ok)
	require.Equal(t, 2, names.Len())
	assert.Equal(t, Const("a"), names.Values()[0])

	frames, ok := res.List("frames")
	require.True(t, ok)
	require.Len(t, frames.Results(), 2)
	assert.Equal(t, "frame", frames.Results()[1].Name)
	assert.Equal(t, "1", frames.Results()[1].Value.(Tuple).Const("level"))

	empty, ok := res.List("empty")
	require.True(t, ok)
	assert.Equal(t, 0, empty.Len())

	tuples, ok := res.List("tuples")
	require.True(t, ok)
	assert.Equal(t, "2", tuples.Values()[1].(Tuple).Const("x"))
}

func TestParse_RepeatedNamesAndBareTuples(t *testing.T) {
	rec, err := Parse(`^done,bkpt={number="1",addr="<MULTIPLE>"},{number="1.1"},{number="1.2"}`)
	require.NoError(t, err)
	res := rec.(ResultRecord).Results

	require.Equal(t, 3, res.Len())
	assert.Equal(t, "", res.Results()[1].Name)
	assert.Equal(t, "1.2", res.Results()[2].Value.(Tuple).Const("number"))

	rec, err = Parse(`=x,id="1",id="2"`)
	require.NoError(t, err)
	assert.Len(t, rec.(AsyncRecord).Results.GetAll("id"), 2)
}

func TestParse_Malformed(t *testing.T) {
	lines := []string{
		`^`,
		`1^done,bkpt={number="2"`,
		`^done,x=[1,2]`,
		`^done,x="unterminated`,
		`^done,x=`,
		`^done,=1`,
		`^done,bkpt={number="2"}}`,
		`~"stream" trailing`,
		`*stopped,reason`,
	}

	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			_, err := Parse(line)
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, line, de.Line)
		})
	}
}

func TestParse_Idempotent(t *testing.T) {
	lines := []string{
		`*stopped,reason="breakpoint-hit",bkptno="1",thread-id="0",frame={addr="0x08048468",func="main",file="hello.c",line="4"}`,
		`1^done,bkpt={number="2",type="breakpoint"}`,
		`=thread-group-exited,id="i1",exit-code="04"`,
	}
	for _, line := range lines {
		a, err := Parse(line)
		require.NoError(t, err)
		b, err := Parse(line)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestValue_String(t *testing.T) {
	rec, err := Parse(`^done,a="x\"y",b={c="1"},d=["e"],f=[g="2"]`)
	require.NoError(t, err)
	assert.Equal(t, `{a="x\"y",b={c="1"},d=["e"],f=[g="2"]}`, rec.(ResultRecord).Results.String())
}

func TestTuple_ResultsIsCopy(t *testing.T) {
	tup := NewTuple(Result{Name: "a", Value: Const("1")})
	rs := tup.Results()
	rs[0].Value = Const("2")
	assert.Equal(t, "1", tup.Const("a"))
}
