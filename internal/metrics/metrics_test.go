package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/mictl/internal/integration/debug"
	"github.com/dshills/mictl/internal/integration/debug/mi"
)

var (
	_ mi.Observer    = (*Collector)(nil)
	_ debug.Observer = (*Collector)(nil)
)

func TestCollector_Commands(t *testing.T) {
	c := New()

	c.CommandIssued("-break-insert")
	c.CommandIssued("-exec-run")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.pending))

	c.CommandCompleted("-break-insert", "success", 3*time.Millisecond)
	c.CommandCompleted("-exec-run", "error", time.Millisecond)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commandsIssued.WithLabelValues("-exec-run")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.commandsCompleted.WithLabelValues("-exec-run", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.commandLatency))
}

func TestCollector_EventsAndErrors(t *testing.T) {
	c := New()
	c.EventPublished("breakpoint-hit")
	c.EventPublished("breakpoint-hit")
	c.DecodeFailed()
	c.ResultDropped("unmatched")
	c.SessionState("running")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues("breakpoint-hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.resultsDropped.WithLabelValues("unmatched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessions.WithLabelValues("running")))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.CommandIssued("-gdb-version")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `mictl_commands_issued_total{operation="-gdb-version"} 1`)
	assert.Contains(t, string(body), "mictl_commands_pending 1")
}
