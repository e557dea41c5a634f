package contract

import (
	"encoding/json"
	"testing"
)

func TestSatisfactionTruthTable(t *testing.T) {
	tests := []struct {
		min   MinSupport
		level SupportLevel
		want  bool
	}{
		{MinNative, Native(), true},
		{MinNative, Emulated(), false},
		{MinNative, Restricted("policy"), false},
		{MinNative, Unsupported(), false},
		{MinEmulated, Native(), true},
		{MinEmulated, Emulated(), true},
		{MinEmulated, Restricted("policy"), true},
		{MinEmulated, Unsupported(), false},
	}

	for _, tt := range tests {
		if got := tt.level.Satisfies(tt.min); got != tt.want {
			t.Errorf("%s.Satisfies(%s) = %v, want %v", tt.level, tt.min, got, tt.want)
		}
	}
}

func TestSupportLevelJSONRoundtrip(t *testing.T) {
	tests := []struct {
		level SupportLevel
		wire  string
	}{
		{Native(), `"native"`},
		{Emulated(), `"emulated"`},
		{Unsupported(), `"unsupported"`},
		{Restricted("no sandbox"), `{"restricted":{"reason":"no sandbox"}}`},
	}

	for _, tt := range tests {
		out, err := json.Marshal(tt.level)
		if err != nil {
			t.Fatalf("marshal %s: %v", tt.level, err)
		}
		if string(out) != tt.wire {
			t.Errorf("marshal %s = %s, want %s", tt.level, out, tt.wire)
		}

		var back SupportLevel
		if err := json.Unmarshal(out, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", out, err)
		}
		if back != tt.level {
			t.Errorf("roundtrip %s = %+v, want %+v", tt.wire, back, tt.level)
		}
	}
}

func TestSupportLevelRejectsUnknown(t *testing.T) {
	var l SupportLevel
	if err := json.Unmarshal([]byte(`"superb"`), &l); err == nil {
		t.Error("expected error for unknown level string")
	}
	if err := json.Unmarshal([]byte(`{"other":{}}`), &l); err == nil {
		t.Error("expected error for unknown level object")
	}
}

func TestManifestJSONSortsByCapability(t *testing.T) {
	m := CapabilityManifest{
		CapToolWrite: Native(),
		CapStreaming: Native(),
		CapToolBash:  Emulated(),
	}
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"streaming":"native","tool_bash":"emulated","tool_write":"native"}`
	if string(out) != want {
		t.Errorf("manifest = %s, want %s", out, want)
	}
}

func TestManifestClone(t *testing.T) {
	m := CapabilityManifest{CapStreaming: Native()}
	c := m.Clone()
	c[CapToolRead] = Emulated()
	if _, ok := m[CapToolRead]; ok {
		t.Error("clone mutated the original manifest")
	}
}

func TestKnownCapabilitiesAreDistinct(t *testing.T) {
	seen := make(map[Capability]bool)
	for _, c := range KnownCapabilities() {
		if seen[c] {
			t.Errorf("duplicate capability %s", c)
		}
		seen[c] = true
	}
	if len(seen) != 18 {
		t.Errorf("expected 18 capabilities, got %d", len(seen))
	}
}
