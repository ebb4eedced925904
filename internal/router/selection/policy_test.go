package selection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

var priority = []types.ProviderKind{types.ProviderSageMaker, types.ProviderOpenAI}

func health(kind types.ProviderKind, available bool, ms int64) types.ProviderHealth {
	return types.ProviderHealth{Provider: kind, Available: available, ResponseTimeMs: ms, LastCheckedAt: time.Now()}
}

func snapshot(hs ...types.ProviderHealth) map[types.ProviderKind]types.ProviderHealth {
	m := make(map[types.ProviderKind]types.ProviderHealth, len(hs))
	for _, h := range hs {
		m[h.Provider] = h
	}
	return m
}

func TestRecommend(t *testing.T) {
	p := NewPolicy(types.ProviderSageMaker, priority, time.Second)

	tests := []struct {
		name   string
		health map[types.ProviderKind]types.ProviderHealth
		want   types.ProviderKind
	}{
		{"cold start", nil, types.ProviderSageMaker},
		{"nothing available", snapshot(health(types.ProviderSageMaker, false, 0), health(types.ProviderOpenAI, false, 0)), types.ProviderSageMaker},
		{"primary down", snapshot(health(types.ProviderSageMaker, false, 0), health(types.ProviderOpenAI, true, 900)), types.ProviderOpenAI},
		{"primary fastest", snapshot(health(types.ProviderSageMaker, true, 200), health(types.ProviderOpenAI, true, 900)), types.ProviderSageMaker},
		{"within tolerance", snapshot(health(types.ProviderSageMaker, true, 1500), health(types.ProviderOpenAI, true, 800)), types.ProviderSageMaker},
		{"exactly tolerance keeps primary", snapshot(health(types.ProviderSageMaker, true, 1800), health(types.ProviderOpenAI, true, 800)), types.ProviderSageMaker},
		{"beyond tolerance", snapshot(health(types.ProviderSageMaker, true, 3000), health(types.ProviderOpenAI, true, 800)), types.ProviderOpenAI},
		{"only primary known", snapshot(health(types.ProviderSageMaker, true, 5000)), types.ProviderSageMaker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Recommend(tt.health))
		})
	}
}

func TestRecommend_Deterministic(t *testing.T) {
	p := NewPolicy("", priority, 0)
	assert.Equal(t, types.ProviderSageMaker, p.Primary)
	assert.Equal(t, DefaultTolerance, p.Tolerance)

	h := snapshot(health(types.ProviderSageMaker, true, 4000), health(types.ProviderOpenAI, true, 100))
	for i := 0; i < 50; i++ {
		assert.Equal(t, types.ProviderOpenAI, p.Recommend(h))
	}
}

func TestOrder(t *testing.T) {
	p := NewPolicy(types.ProviderSageMaker, priority, time.Second)

	assert.Equal(t, priority, p.Order(nil))

	h := snapshot(health(types.ProviderSageMaker, false, 0), health(types.ProviderOpenAI, true, 300))
	assert.Equal(t, []types.ProviderKind{types.ProviderOpenAI, types.ProviderSageMaker}, p.Order(h))

	// Order never drops a provider, even one that is down
	assert.Len(t, p.Order(h), len(priority))
}

func TestParseKinds(t *testing.T) {
	got := ParseKinds([]string{"openai", "bogus", "sagemaker", "openai", "static"})
	assert.Equal(t, []types.ProviderKind{types.ProviderOpenAI, types.ProviderSageMaker}, got)
}
