package selection

import (
	"time"

	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// DefaultTolerance is the latency margin a provider must beat the primary by
const DefaultTolerance = time.Second

// Policy picks the provider to try first from last-known health
type Policy struct {
	Primary   types.ProviderKind
	Priority  []types.ProviderKind
	Tolerance time.Duration
}

// NewPolicy builds a policy; an empty primary defaults to the head of the priority list
func NewPolicy(primary types.ProviderKind, priority []types.ProviderKind, tolerance time.Duration) Policy {
	if primary == "" && len(priority) > 0 {
		primary = priority[0]
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return Policy{Primary: primary, Priority: priority, Tolerance: tolerance}
}

// ParseKinds converts configured provider names, dropping unknown and duplicate entries
func ParseKinds(names []string) []types.ProviderKind {
	seen := make(map[types.ProviderKind]bool, len(names))
	kinds := make([]types.ProviderKind, 0, len(names))
	for _, name := range names {
		k := types.ProviderKind(name)
		if k != types.ProviderSageMaker && k != types.ProviderOpenAI {
			continue
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	return kinds
}

// Recommend returns the provider to try first.
//
// Among available providers the fastest one wins over the primary only when it is
// faster by strictly more than Tolerance. An unavailable primary yields the first
// available provider in priority order. With nothing known or nothing available
// the primary is returned.
func (p Policy) Recommend(health map[types.ProviderKind]types.ProviderHealth) types.ProviderKind {
	available := make([]types.ProviderHealth, 0, len(p.Priority))
	for _, kind := range p.Priority {
		if h, ok := health[kind]; ok && h.Available {
			available = append(available, h)
		}
	}
	if len(available) == 0 {
		return p.Primary
	}

	primary, ok := health[p.Primary]
	if !ok || !primary.Available {
		return available[0].Provider
	}

	// Ties resolve to the earlier priority entry
	fastest := available[0]
	for _, h := range available[1:] {
		if h.ResponseTimeMs < fastest.ResponseTimeMs {
			fastest = h
		}
	}

	tolerance := p.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if time.Duration(primary.ResponseTimeMs-fastest.ResponseTimeMs)*time.Millisecond > tolerance {
		return fastest.Provider
	}
	return p.Primary
}

// Order returns the priority list with the recommendation moved to the front
func (p Policy) Order(health map[types.ProviderKind]types.ProviderHealth) []types.ProviderKind {
	first := p.Recommend(health)
	if first == "" {
		return append([]types.ProviderKind(nil), p.Priority...)
	}

	order := make([]types.ProviderKind, 0, len(p.Priority)+1)
	order = append(order, first)
	for _, kind := range p.Priority {
		if kind != first {
			order = append(order, kind)
		}
	}
	return order
}
