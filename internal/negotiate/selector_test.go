package negotiate

import (
	"testing"

	"github.com/antigravity-dev/backplane/internal/contract"
)

func candidate(name string, priority int, caps ...contract.Capability) Candidate {
	m := make(contract.CapabilityManifest, len(caps))
	for _, c := range caps {
		m[c] = contract.Native()
	}
	return Candidate{Name: name, Capabilities: m, Priority: priority, Enabled: true}
}

func disabled(name string, caps ...contract.Capability) Candidate {
	c := candidate(name, 0, caps...)
	c.Enabled = false
	return c
}

func TestEmptySelector(t *testing.T) {
	s := NewSelector(FirstMatch, nil)
	if s.CandidateCount() != 0 || s.EnabledCount() != 0 {
		t.Errorf("counts = %d/%d", s.CandidateCount(), s.EnabledCount())
	}
	result := s.Select([]contract.Capability{contract.CapStreaming})
	if result.Matched {
		t.Error("empty selector matched")
	}
	if all := s.SelectAll(nil); len(all) != 0 {
		t.Errorf("SelectAll = %v", all)
	}
}

func TestFirstMatchPicksFirstCapable(t *testing.T) {
	s := NewSelector(FirstMatch, []Candidate{
		candidate("a", 0, contract.CapStreaming),
		candidate("b", 0, contract.CapStreaming, contract.CapToolRead),
	})
	result := s.Select([]contract.Capability{contract.CapStreaming})
	if !result.Matched || result.Selected != "a" {
		t.Errorf("selected = %+v", result)
	}
}

func TestFirstMatchSkipsIncapable(t *testing.T) {
	s := NewSelector(FirstMatch, []Candidate{
		candidate("a", 0, contract.CapStreaming),
		candidate("b", 0, contract.CapToolRead),
	})
	result := s.Select([]contract.Capability{contract.CapToolRead})
	if result.Selected != "b" {
		t.Errorf("selected = %+v", result)
	}
}

func TestBestFitPicksMostCapable(t *testing.T) {
	s := NewSelector(BestFit, []Candidate{
		candidate("narrow", 0, contract.CapStreaming),
		candidate("wide", 0, contract.CapStreaming, contract.CapToolRead, contract.CapToolWrite),
	})
	result := s.Select([]contract.Capability{contract.CapStreaming})
	if result.Selected != "wide" {
		t.Errorf("selected = %+v", result)
	}
}

func TestPriorityPicksLowestValue(t *testing.T) {
	s := NewSelector(PriorityOrder, []Candidate{
		candidate("slow", 10, contract.CapStreaming),
		candidate("fast", 1, contract.CapStreaming),
	})
	result := s.Select([]contract.Capability{contract.CapStreaming})
	if result.Selected != "fast" {
		t.Errorf("selected = %+v", result)
	}
}

func TestPriorityRespectsCapabilityFilter(t *testing.T) {
	s := NewSelector(PriorityOrder, []Candidate{
		candidate("fast", 1, contract.CapStreaming),
		candidate("slow", 10, contract.CapStreaming, contract.CapToolBash),
	})
	result := s.Select([]contract.Capability{contract.CapToolBash})
	if result.Selected != "slow" {
		t.Errorf("selected = %+v", result)
	}
}

func TestRoundRobinRotates(t *testing.T) {
	s := NewSelector(RoundRobin, []Candidate{
		candidate("a", 0, contract.CapStreaming),
		candidate("b", 0, contract.CapStreaming),
	})
	req := []contract.Capability{contract.CapStreaming}

	seen := []string{
		s.Select(req).Selected,
		s.Select(req).Selected,
		s.Select(req).Selected,
	}
	if seen[0] != "a" || seen[1] != "b" || seen[2] != "a" {
		t.Errorf("rotation = %v", seen)
	}
}

func TestDisabledCandidatesSkipped(t *testing.T) {
	s := NewSelector(FirstMatch, []Candidate{
		disabled("off", contract.CapStreaming),
		candidate("on", 0, contract.CapStreaming),
	})
	result := s.Select([]contract.Capability{contract.CapStreaming})
	if result.Selected != "on" {
		t.Errorf("selected = %+v", result)
	}
	if s.EnabledCount() != 1 {
		t.Errorf("enabled count = %d", s.EnabledCount())
	}
}

func TestAllDisabledNoMatch(t *testing.T) {
	s := NewSelector(FirstMatch, []Candidate{disabled("off", contract.CapStreaming)})
	result := s.Select([]contract.Capability{contract.CapStreaming})
	if result.Matched {
		t.Error("disabled candidate matched")
	}
	if len(result.UnmetCapabilities) != 1 {
		t.Errorf("unmet = %v", result.UnmetCapabilities)
	}
}

func TestUnmetCapabilitiesNamed(t *testing.T) {
	s := NewSelector(FirstMatch, []Candidate{candidate("a", 0, contract.CapStreaming)})
	result := s.Select([]contract.Capability{contract.CapStreaming, contract.CapMcpClient})
	if result.Matched {
		t.Error("should not match")
	}
	if len(result.UnmetCapabilities) != 1 || result.UnmetCapabilities[0] != contract.CapMcpClient {
		t.Errorf("unmet = %v", result.UnmetCapabilities)
	}
}

func TestEmptyRequirementsMatchAllEnabled(t *testing.T) {
	s := NewSelector(FirstMatch, []Candidate{
		candidate("a", 0),
		disabled("b"),
		candidate("c", 0),
	})
	all := s.SelectAll(nil)
	if len(all) != 2 {
		t.Errorf("SelectAll = %d candidates, want 2", len(all))
	}
}
