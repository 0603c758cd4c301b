package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicprompt/loom/pkg/domain"
	"github.com/magicprompt/loom/pkg/observability"
)

func TestMetrics_HooksFeedCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	hooks := observability.NewMetrics(reg).Hooks()
	ctx := context.Background()

	hooks.OnNodeEnter(ctx, &domain.StepEvent{NodeID: "idea:seed", Layer: "idea"})
	hooks.OnNodeEnter(ctx, &domain.StepEvent{NodeID: "idea:seed", Layer: "idea"})
	hooks.OnLLMReturn(ctx, &domain.LLMEvent{NodeID: "idea:seed", Duration: 120 * time.Millisecond})
	hooks.OnBranch(ctx, &domain.BranchEvent{NodeID: "story:genre", Targets: []string{"a", "b"}})
	hooks.OnFailure(ctx, &domain.FailureEvent{NodeID: "story:genre", Kind: "llm"})

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				byName[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				byName[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}

	assert.Equal(t, 2.0, byName["loom_node_visits_total"])
	assert.Equal(t, 1.0, byName["loom_llm_duration_seconds"])
	assert.Equal(t, 1.0, byName["loom_branches_total"])
	assert.Equal(t, 1.0, byName["loom_failures_total"])
}

func TestMetrics_RegistersWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	observability.NewMetrics(reg)

	// A second registration of the same collectors must panic per the
	// prometheus MustRegister contract.
	assert.Panics(t, func() { observability.NewMetrics(reg) })
}
