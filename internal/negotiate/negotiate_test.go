package negotiate

import (
	"testing"

	"github.com/antigravity-dev/backplane/internal/contract"
)

func manifest(pairs map[contract.Capability]contract.SupportLevel) contract.CapabilityManifest {
	m := make(contract.CapabilityManifest, len(pairs))
	for k, v := range pairs {
		m[k] = v
	}
	return m
}

func TestNegotiateAllRequiredSatisfied(t *testing.T) {
	m := manifest(map[contract.Capability]contract.SupportLevel{
		contract.CapStreaming: contract.Native(),
		contract.CapToolRead:  contract.Native(),
	})
	req := Request{
		Required:       []contract.Capability{contract.CapStreaming, contract.CapToolRead},
		MinimumSupport: contract.Emulated(),
	}

	result := Negotiate(req, m)
	if !result.IsCompatible {
		t.Fatal("expected compatible")
	}
	if len(result.Satisfied) != 2 || len(result.Unsatisfied) != 0 {
		t.Errorf("satisfied=%v unsatisfied=%v", result.Satisfied, result.Unsatisfied)
	}
	if result.Error() != nil {
		t.Errorf("compatible result produced error: %v", result.Error())
	}
}

func TestNegotiateMissingRequired(t *testing.T) {
	m := manifest(map[contract.Capability]contract.SupportLevel{
		contract.CapStreaming: contract.Native(),
	})
	req := Request{
		Required:       []contract.Capability{contract.CapStreaming, contract.CapToolWrite},
		MinimumSupport: contract.Emulated(),
	}

	result := Negotiate(req, m)
	if result.IsCompatible {
		t.Fatal("expected incompatible")
	}
	if len(result.Unsatisfied) != 1 || result.Unsatisfied[0] != contract.CapToolWrite {
		t.Errorf("unsatisfied = %v", result.Unsatisfied)
	}
	if result.Error() == nil {
		t.Error("incompatible result produced no error")
	}
}

func TestNegotiateEmptyRequiredAlwaysCompatible(t *testing.T) {
	result := Negotiate(Request{MinimumSupport: contract.Native()}, manifest(nil))
	if !result.IsCompatible {
		t.Error("empty requirements should always be compatible")
	}
}

func TestNegotiateMinimumLevels(t *testing.T) {
	tests := []struct {
		name  string
		min   contract.SupportLevel
		level contract.SupportLevel
		want  bool
	}{
		{"native minimum rejects emulated", contract.Native(), contract.Emulated(), false},
		{"native minimum accepts native", contract.Native(), contract.Native(), true},
		{"emulated minimum accepts native", contract.Emulated(), contract.Native(), true},
		{"emulated minimum accepts restricted", contract.Emulated(), contract.Restricted("policy"), true},
		{"emulated minimum rejects unsupported", contract.Emulated(), contract.Unsupported(), false},
		{"restricted minimum rejects unsupported", contract.Restricted("x"), contract.Unsupported(), false},
		{"restricted minimum accepts emulated", contract.Restricted("x"), contract.Emulated(), true},
		{"unsupported minimum accepts anything", contract.Unsupported(), contract.Unsupported(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := manifest(map[contract.Capability]contract.SupportLevel{contract.CapStreaming: tt.level})
			req := Request{
				Required:       []contract.Capability{contract.CapStreaming},
				MinimumSupport: tt.min,
			}
			if got := Negotiate(req, m).IsCompatible; got != tt.want {
				t.Errorf("compatible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNegotiatePreferredBonus(t *testing.T) {
	m := manifest(map[contract.Capability]contract.SupportLevel{
		contract.CapStreaming: contract.Native(),
		contract.CapMcpClient: contract.Native(),
	})
	req := Request{
		Required:       []contract.Capability{contract.CapStreaming},
		Preferred:      []contract.Capability{contract.CapMcpClient, contract.CapMcpServer},
		MinimumSupport: contract.Emulated(),
	}

	result := Negotiate(req, m)
	if len(result.Bonus) != 1 || result.Bonus[0] != contract.CapMcpClient {
		t.Errorf("bonus = %v", result.Bonus)
	}
	if result.Score != 1.0 {
		t.Errorf("score = %v, want 1.0", result.Score)
	}
}

func TestNegotiatePreferredBelowMinimumNotBonus(t *testing.T) {
	m := manifest(map[contract.Capability]contract.SupportLevel{
		contract.CapMcpClient: contract.Emulated(),
	})
	req := Request{
		Preferred:      []contract.Capability{contract.CapMcpClient},
		MinimumSupport: contract.Native(),
	}
	if result := Negotiate(req, m); len(result.Bonus) != 0 {
		t.Errorf("bonus = %v, want empty", result.Bonus)
	}
}

func TestNegotiateScoreWeights(t *testing.T) {
	m := manifest(map[contract.Capability]contract.SupportLevel{
		contract.CapStreaming:     contract.Native(),
		contract.CapToolRead:      contract.Emulated(),
		contract.CapCheckpointing: contract.Restricted("flagged off"),
	})
	req := Request{
		Preferred: []contract.Capability{
			contract.CapStreaming, contract.CapToolRead, contract.CapCheckpointing,
		},
		MinimumSupport: contract.Emulated(),
	}

	result := Negotiate(req, m)
	if result.Score != 1.0+0.5+0.25 {
		t.Errorf("score = %v, want 1.75", result.Score)
	}
}

func TestBestMatchNoneCompatible(t *testing.T) {
	manifests := map[string]contract.CapabilityManifest{
		"a": manifest(map[contract.Capability]contract.SupportLevel{
			contract.CapStreaming: contract.Unsupported(),
		}),
	}
	req := Request{
		Required:       []contract.Capability{contract.CapStreaming},
		MinimumSupport: contract.Emulated(),
	}
	if _, _, ok := BestMatch(req, manifests); ok {
		t.Error("expected no match")
	}
}

func TestBestMatchSelectsHighestScore(t *testing.T) {
	manifests := map[string]contract.CapabilityManifest{
		"basic": manifest(map[contract.Capability]contract.SupportLevel{
			contract.CapStreaming: contract.Native(),
		}),
		"rich": manifest(map[contract.Capability]contract.SupportLevel{
			contract.CapStreaming: contract.Native(),
			contract.CapToolRead:  contract.Native(),
		}),
	}
	req := Request{
		Required:       []contract.Capability{contract.CapStreaming},
		Preferred:      []contract.Capability{contract.CapToolRead},
		MinimumSupport: contract.Emulated(),
	}

	name, result, ok := BestMatch(req, manifests)
	if !ok || name != "rich" {
		t.Errorf("best match = %q (ok=%v), want rich", name, ok)
	}
	if len(result.Bonus) != 1 {
		t.Errorf("bonus = %v", result.Bonus)
	}
}

func TestBestMatchTieBreaksLexicographically(t *testing.T) {
	m := manifest(map[contract.Capability]contract.SupportLevel{
		contract.CapStreaming: contract.Native(),
	})
	manifests := map[string]contract.CapabilityManifest{"beta": m, "alpha": m.Clone()}
	req := Request{
		Required:       []contract.Capability{contract.CapStreaming},
		MinimumSupport: contract.Emulated(),
	}

	for i := 0; i < 10; i++ {
		name, _, ok := BestMatch(req, manifests)
		if !ok || name != "alpha" {
			t.Fatalf("tie-break = %q (ok=%v), want alpha every time", name, ok)
		}
	}
}

func TestBestMatchEmpty(t *testing.T) {
	if _, _, ok := BestMatch(Request{}, nil); ok {
		t.Error("empty manifest set should not match")
	}
}

func TestFromRequirements(t *testing.T) {
	req := FromRequirements(contract.CapabilityRequirements{
		Required: []contract.CapabilityRequirement{
			{Capability: contract.CapStreaming, MinSupport: contract.MinEmulated},
			{Capability: contract.CapToolRead, MinSupport: contract.MinNative},
		},
	})
	if len(req.Required) != 2 {
		t.Errorf("required = %v", req.Required)
	}
	if req.MinimumSupport.Level != contract.SupportNative {
		t.Errorf("minimum = %v, want native (strictest wins)", req.MinimumSupport)
	}
}
