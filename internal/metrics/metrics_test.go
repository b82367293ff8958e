package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridkernel/internal/diff"
)

func TestCollectors_ObserveCommit(t *testing.T) {
	c := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))

	c.ObserveCommit("kernel", 3, []diff.FieldDiff{
		diff.Insert("r", "a", 1, diff.SourceLocal),
		diff.Insert("r", "b", 2, diff.SourceLocal),
		diff.Remove("r", "c", 3, diff.SourceServer),
	}, 7)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.commits.WithLabelValues("kernel")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.actions.WithLabelValues("kernel")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.diffs.WithLabelValues("insert", "local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.diffs.WithLabelValues("remove", "server")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.rows))

	expected := `
# HELP gridkernel_kernel_commits_total Commits delivered, by commit label
# TYPE gridkernel_kernel_commits_total counter
gridkernel_kernel_commits_total{label="kernel"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "gridkernel_kernel_commits_total"))
}

func TestCollectors_Counters(t *testing.T) {
	c := New()
	c.Dropped(2)
	c.Dropped(0)
	c.Evicted()
	c.Evicted()
	c.GuardViolation()
	c.ListenerPanic()
	c.SetColumns(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.dropped))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.guardViolations))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.listenerPanics))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.columns))
}

func TestCollectors_RegisterTwice(t *testing.T) {
	c := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, c.Register(reg))
	require.NoError(t, c.Register(reg))

	other := New()
	assert.Error(t, other.Register(reg), "a second store on one registry collides")
}

func TestCollectors_NilIsNoop(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.ObserveCommit("x", 1, nil, 0)
		c.Dropped(1)
		c.Evicted()
		c.GuardViolation()
		c.ListenerPanic()
		c.SetColumns(1)
	})
}
