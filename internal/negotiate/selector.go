package negotiate

import (
	"sync"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// Strategy picks among capable candidates.
type Strategy string

const (
	// FirstMatch takes the first enabled candidate with every required
	// capability.
	FirstMatch Strategy = "first_match"
	// BestFit takes the candidate whose manifest satisfies the most
	// capabilities overall.
	BestFit Strategy = "best_fit"
	// PriorityOrder takes the capable candidate with the lowest priority
	// value.
	PriorityOrder Strategy = "priority"
	// RoundRobin rotates through capable candidates across calls.
	RoundRobin Strategy = "round_robin"
)

// Candidate is one registered backend under consideration.
type Candidate struct {
	Name         string
	Capabilities contract.CapabilityManifest
	Priority     int
	Enabled      bool
	Metadata     map[string]string
}

// SelectionResult reports what was picked, or which capabilities no
// candidate could satisfy.
type SelectionResult struct {
	Selected            string
	Matched             bool
	UnmetCapabilities   []contract.Capability
}

// Selector applies a strategy over a fixed candidate list. Safe for
// concurrent use; round-robin state is the only mutable field.
type Selector struct {
	strategy   Strategy
	candidates []Candidate

	mu   sync.Mutex
	next int
}

// NewSelector builds a selector over the given candidates.
func NewSelector(strategy Strategy, candidates []Candidate) *Selector {
	return &Selector{strategy: strategy, candidates: candidates}
}

// CandidateCount returns the number of registered candidates.
func (s *Selector) CandidateCount() int { return len(s.candidates) }

// EnabledCount returns the number of enabled candidates.
func (s *Selector) EnabledCount() int {
	n := 0
	for _, c := range s.candidates {
		if c.Enabled {
			n++
		}
	}
	return n
}

func capable(c Candidate, required []contract.Capability) bool {
	if !c.Enabled {
		return false
	}
	for _, cap := range required {
		level, ok := c.Capabilities[cap]
		if !ok || level.Level == contract.SupportUnsupported {
			return false
		}
	}
	return true
}

// SelectAll returns every enabled candidate that satisfies all required
// capabilities, in registration order.
func (s *Selector) SelectAll(required []contract.Capability) []Candidate {
	var out []Candidate
	for _, c := range s.candidates {
		if capable(c, required) {
			out = append(out, c)
		}
	}
	return out
}

// Select applies the strategy. Matched is false when no enabled
// candidate satisfies the requirements; UnmetCapabilities then lists the
// required capabilities that no enabled candidate provides.
func (s *Selector) Select(required []contract.Capability) SelectionResult {
	matching := s.SelectAll(required)
	if len(matching) == 0 {
		return SelectionResult{UnmetCapabilities: s.unmet(required)}
	}

	var pick Candidate
	switch s.strategy {
	case BestFit:
		pick = matching[0]
		bestCount := manifestStrength(pick.Capabilities)
		for _, c := range matching[1:] {
			if count := manifestStrength(c.Capabilities); count > bestCount {
				pick, bestCount = c, count
			}
		}
	case PriorityOrder:
		pick = matching[0]
		for _, c := range matching[1:] {
			if c.Priority < pick.Priority {
				pick = c
			}
		}
	case RoundRobin:
		s.mu.Lock()
		pick = matching[s.next%len(matching)]
		s.next++
		s.mu.Unlock()
	default: // FirstMatch
		pick = matching[0]
	}

	return SelectionResult{Selected: pick.Name, Matched: true}
}

// manifestStrength counts capabilities that are at least restricted.
func manifestStrength(m contract.CapabilityManifest) int {
	n := 0
	for _, level := range m {
		if level.Level != contract.SupportUnsupported {
			n++
		}
	}
	return n
}

// unmet lists required capabilities no enabled candidate provides.
func (s *Selector) unmet(required []contract.Capability) []contract.Capability {
	var out []contract.Capability
	for _, cap := range required {
		provided := false
		for _, c := range s.candidates {
			if !c.Enabled {
				continue
			}
			if level, ok := c.Capabilities[cap]; ok && level.Level != contract.SupportUnsupported {
				provided = true
				break
			}
		}
		if !provided {
			out = append(out, cap)
		}
	}
	return out
}
