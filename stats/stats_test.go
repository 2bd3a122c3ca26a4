package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryCountersIncrement(t *testing.T) {
	r := NewRegistry()
	r.DCSEGLookups.WithLabelValues("local").Inc()
	r.DCSEGLookups.WithLabelValues("remote").Inc()
	r.DCSEGSplits.Inc()
	r.ProxAdditions.WithLabelValues("permanent").Add(3)
	r.SessionConnects.WithLabelValues("ok").Inc()

	mfs, err := r.Gatherer().Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, mfs)

	var found bool
	for _, mf := range mfs {
		if mf.GetName() == "space_prox_additions_total" {
			found = true
			assert.Equal(t, float64(3), mf.Metric[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "expected space_prox_additions_total metric family")
}

func TestSnapshotLineChangesOnUpdate(t *testing.T) {
	r := NewRegistry()
	before := r.snapshotLine()
	r.DCSEGSplits.Inc()
	after := r.snapshotLine()
	assert.NotEqual(t, before, after)
}
