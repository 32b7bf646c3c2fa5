package debug

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dshills/mictl/internal/integration/debug/mi"
)

// BreakpointTable tracks the session's breakpoints by number. It is fed
// from command results and =breakpoint-* notifications, and serves as the
// decoder's KindResolver for telling catchpoint hits from breakpoint hits.
//
// Sub-locations ("2.1") of a multi-location breakpoint are folded into
// their parent number.
type BreakpointTable struct {
	mu      sync.RWMutex // protects entries
	entries map[int]mi.BreakpointInfo
}

// NewBreakpointTable creates an empty table.
func NewBreakpointTable() *BreakpointTable {
	return &BreakpointTable{entries: make(map[int]mi.BreakpointInfo)}
}

// majorNumber parses "3" or "3.1" into 3.
func majorNumber(number string) (int, bool) {
	major, _, _ := strings.Cut(strings.TrimSpace(number), ".")
	n, err := strconv.Atoi(major)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Record adds or replaces a breakpoint. It returns the breakpoint's number
// and false when the number is not usable.
func (t *BreakpointTable) Record(info mi.BreakpointInfo) (int, bool) {
	n, ok := majorNumber(info.Number)
	if !ok {
		return 0, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, exists := t.entries[n]; exists && info.Kind == mi.KindUnknown {
		info.Kind = prev.Kind
	}
	t.entries[n] = info
	return n, true
}

// Remove deletes a breakpoint and reports whether it was present.
func (t *BreakpointTable) Remove(number int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[number]; !ok {
		return false
	}
	delete(t.entries, number)
	return true
}

// Get returns the breakpoint with the given number.
func (t *BreakpointTable) Get(number int) (mi.BreakpointInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info, ok := t.entries[number]
	return info, ok
}

// List returns all breakpoints ordered by number.
func (t *BreakpointTable) List() []mi.BreakpointInfo {
	t.mu.RLock()
	nums := make([]int, 0, len(t.entries))
	for n := range t.entries {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	out := make([]mi.BreakpointInfo, 0, len(nums))
	for _, n := range nums {
		out = append(out, t.entries[n])
	}
	t.mu.RUnlock()
	return out
}

// Len returns the number of breakpoints.
func (t *BreakpointTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// BreakpointKind implements mi.KindResolver.
func (t *BreakpointTable) BreakpointKind(number int) mi.BreakpointKind {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[number].Kind
}

// Apply updates the table from a breakpoint notification. Other events
// are ignored.
func (t *BreakpointTable) Apply(ev mi.Event) {
	switch e := ev.(type) {
	case mi.BreakpointCreated:
		t.Record(e.Breakpoint)
	case mi.BreakpointModified:
		t.Record(e.Breakpoint)
	case mi.BreakpointDeleted:
		if e.Number > 0 {
			t.Remove(e.Number)
		}
	}
}

// resultBreakpointKeys are the result tuples that describe a new
// breakpoint, with the kind implied by each key.
var resultBreakpointKeys = []struct {
	key  string
	kind mi.BreakpointKind
}{
	{"bkpt", mi.KindUnknown},
	{"wpt", mi.KindWatchpoint},
	{"hw-rwpt", mi.KindWatchpoint},
	{"hw-awpt", mi.KindWatchpoint},
}

// RecordResult records the breakpoint described by a -break-insert,
// -break-watch, -dprintf-insert or -catch-* result.
func (t *BreakpointTable) RecordResult(res mi.CommandResult) (mi.BreakpointInfo, bool) {
	for _, k := range resultBreakpointKeys {
		tup, ok := res.Results.Tuple(k.key)
		if !ok {
			continue
		}
		info := mi.ParseBreakpoint(tup)
		if k.kind != mi.KindUnknown {
			info.Kind = k.kind
			if info.What == "" {
				info.What = tup.Const("exp")
			}
		}
		if _, ok := t.Record(info); !ok {
			return mi.BreakpointInfo{}, false
		}
		return info, true
	}
	return mi.BreakpointInfo{}, false
}
