package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mictl/internal/integration/debug/mi"
)

func parseResult(t *testing.T, line string) mi.CommandResult {
	t.Helper()
	rec, err := mi.Parse(line)
	require.NoError(t, err)
	rr, ok := rec.(mi.ResultRecord)
	require.True(t, ok, "not a result record: %T", rec)
	return mi.NewCommandResult(rr)
}

func TestBreakpointTable_RecordResult(t *testing.T) {
	table := NewBreakpointTable()

	info, ok := table.RecordResult(parseResult(t,
		`5^done,bkpt={number="1",type="breakpoint",disp="keep",enabled="y",addr="0x1139",func="main",file="hello.c",fullname="/src/hello.c",line="4",times="0"}`))
	require.True(t, ok)
	assert.Equal(t, "main", info.Func)
	assert.Equal(t, 4, info.Line)

	_, ok = table.RecordResult(parseResult(t, `6^done,wpt={number="2",exp="counter"}`))
	require.True(t, ok)

	_, ok = table.RecordResult(parseResult(t,
		`7^done,bkpt={number="3",type="catchpoint",disp="keep",enabled="y",what="exception throw",catch-type="throw",times="0"}`))
	require.True(t, ok)

	_, ok = table.RecordResult(parseResult(t, `8^done`))
	assert.False(t, ok)

	assert.Equal(t, 3, table.Len())
	assert.Equal(t, mi.KindBreakpoint, table.BreakpointKind(1))
	assert.Equal(t, mi.KindWatchpoint, table.BreakpointKind(2))
	assert.Equal(t, mi.KindCatchpoint, table.BreakpointKind(3))
	assert.Equal(t, mi.KindUnknown, table.BreakpointKind(4))

	wp, ok := table.Get(2)
	require.True(t, ok)
	assert.Equal(t, "counter", wp.What)

	list := table.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{list[0].Number, list[1].Number, list[2].Number})
}

func TestBreakpointTable_Apply(t *testing.T) {
	table := NewBreakpointTable()
	decoder := mi.NewDecoder("s1")

	apply := func(line string) {
		d, err := decoder.Decode(line, table)
		require.NoError(t, err)
		require.NotNil(t, d.Event)
		table.Apply(d.Event)
	}

	apply(`=breakpoint-created,bkpt={number="4",type="catchpoint",disp="keep",enabled="y",what="fork",times="0"}`)
	assert.Equal(t, mi.KindCatchpoint, table.BreakpointKind(4))

	apply(`=breakpoint-modified,bkpt={number="4",type="catchpoint",disp="keep",enabled="n",what="fork",times="1"}`)
	info, ok := table.Get(4)
	require.True(t, ok)
	assert.False(t, info.Enabled)
	assert.Equal(t, 1, info.Times)

	apply(`=breakpoint-deleted,id="4"`)
	assert.Equal(t, 0, table.Len())

	// Unrelated events leave the table alone.
	apply(`=thread-created,id="1",group-id="i1"`)
	assert.Equal(t, 0, table.Len())
}

func TestBreakpointTable_SubLocations(t *testing.T) {
	table := NewBreakpointTable()

	n, ok := table.Record(mi.BreakpointInfo{Number: "2", Kind: mi.KindBreakpoint})
	require.True(t, ok)
	assert.Equal(t, 2, n)

	// A location update keeps the parent's kind.
	n, ok = table.Record(mi.BreakpointInfo{Number: "2.1"})
	require.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, mi.KindBreakpoint, table.BreakpointKind(2))

	_, ok = table.Record(mi.BreakpointInfo{Number: "x"})
	assert.False(t, ok)
	_, ok = table.Record(mi.BreakpointInfo{Number: "0"})
	assert.False(t, ok)

	assert.True(t, table.Remove(2))
	assert.False(t, table.Remove(2))
}
