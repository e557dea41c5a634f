package negotiate

import (
	"testing"

	"github.com/antigravity-dev/backplane/internal/contract"
)

func TestDiffAddedRemoved(t *testing.T) {
	old := contract.CapabilityManifest{}
	new := contract.CapabilityManifest{contract.CapStreaming: contract.Native()}

	d := DiffManifests(old, new)
	if len(d.Added) != 1 || d.Added[0] != contract.CapStreaming {
		t.Errorf("added = %v", d.Added)
	}

	back := DiffManifests(new, old)
	if len(back.Removed) != 1 || back.Removed[0] != contract.CapStreaming {
		t.Errorf("removed = %v", back.Removed)
	}
}

func TestDiffNoChange(t *testing.T) {
	m := contract.CapabilityManifest{
		contract.CapStreaming: contract.Native(),
		contract.CapToolRead:  contract.Emulated(),
	}
	d := DiffManifests(m, m.Clone())
	if !d.IsEmpty() {
		t.Errorf("diff of identical manifests = %+v", d)
	}
}

func TestDiffUpgradeDowngrade(t *testing.T) {
	old := contract.CapabilityManifest{
		contract.CapStreaming: contract.Emulated(),
		contract.CapToolRead:  contract.Native(),
	}
	new := contract.CapabilityManifest{
		contract.CapStreaming: contract.Native(),
		contract.CapToolRead:  contract.Emulated(),
	}

	d := DiffManifests(old, new)
	if len(d.Upgraded) != 1 || d.Upgraded[0].Capability != contract.CapStreaming {
		t.Errorf("upgraded = %+v", d.Upgraded)
	}
	if len(d.Downgraded) != 1 || d.Downgraded[0].Capability != contract.CapToolRead {
		t.Errorf("downgraded = %+v", d.Downgraded)
	}
}

func TestDiffRestrictedToNativeIsUpgrade(t *testing.T) {
	old := contract.CapabilityManifest{contract.CapToolBash: contract.Restricted("sandbox")}
	new := contract.CapabilityManifest{contract.CapToolBash: contract.Native()}

	d := DiffManifests(old, new)
	if len(d.Upgraded) != 1 {
		t.Errorf("upgraded = %+v", d.Upgraded)
	}
}

func TestDiffLevelOrder(t *testing.T) {
	// unsupported < restricted < emulated < native
	levels := []contract.SupportLevel{
		contract.Unsupported(),
		contract.Restricted("r"),
		contract.Emulated(),
		contract.Native(),
	}
	for i := 0; i < len(levels); i++ {
		for j := 0; j < len(levels); j++ {
			old := contract.CapabilityManifest{contract.CapStreaming: levels[i]}
			new := contract.CapabilityManifest{contract.CapStreaming: levels[j]}
			d := DiffManifests(old, new)
			switch {
			case j > i:
				if len(d.Upgraded) != 1 {
					t.Errorf("level %d -> %d should be upgrade", i, j)
				}
			case j < i:
				if len(d.Downgraded) != 1 {
					t.Errorf("level %d -> %d should be downgrade", i, j)
				}
			default:
				if !d.IsEmpty() {
					t.Errorf("level %d -> %d should be empty", i, j)
				}
			}
		}
	}
}

func TestDiffBothEmpty(t *testing.T) {
	if d := DiffManifests(nil, nil); !d.IsEmpty() {
		t.Errorf("diff of empty manifests = %+v", d)
	}
}

func TestDiffMixedChanges(t *testing.T) {
	old := contract.CapabilityManifest{
		contract.CapStreaming:     contract.Native(),
		contract.CapToolRead:      contract.Emulated(),
		contract.CapCheckpointing: contract.Native(),
	}
	new := contract.CapabilityManifest{
		contract.CapStreaming: contract.Native(),
		contract.CapToolRead:  contract.Native(),
		contract.CapMcpClient: contract.Emulated(),
	}

	d := DiffManifests(old, new)
	if len(d.Added) != 1 || d.Added[0] != contract.CapMcpClient {
		t.Errorf("added = %v", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0] != contract.CapCheckpointing {
		t.Errorf("removed = %v", d.Removed)
	}
	if len(d.Upgraded) != 1 || d.Upgraded[0].Capability != contract.CapToolRead {
		t.Errorf("upgraded = %+v", d.Upgraded)
	}
	if len(d.Downgraded) != 0 {
		t.Errorf("downgraded = %+v", d.Downgraded)
	}
}
