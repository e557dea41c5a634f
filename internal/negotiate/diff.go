package negotiate

import (
	"sort"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// LevelChange records a capability whose support level moved.
type LevelChange struct {
	Capability contract.Capability
	Old        contract.SupportLevel
	New        contract.SupportLevel
}

// Diff partitions the change between two manifests. Capabilities are
// sorted within each partition for stable output.
type Diff struct {
	Added      []contract.Capability
	Removed    []contract.Capability
	Upgraded   []LevelChange
	Downgraded []LevelChange
}

// IsEmpty reports whether nothing changed.
func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 &&
		len(d.Upgraded) == 0 && len(d.Downgraded) == 0
}

// DiffManifests compares an old and new manifest. A level change counts
// as upgraded when it strictly improves in the order
// unsupported < restricted < emulated < native, downgraded when it
// strictly worsens.
func DiffManifests(old, new contract.CapabilityManifest) Diff {
	var d Diff

	for cap, newLevel := range new {
		oldLevel, ok := old[cap]
		if !ok {
			d.Added = append(d.Added, cap)
			continue
		}
		switch {
		case rank(newLevel) > rank(oldLevel):
			d.Upgraded = append(d.Upgraded, LevelChange{Capability: cap, Old: oldLevel, New: newLevel})
		case rank(newLevel) < rank(oldLevel):
			d.Downgraded = append(d.Downgraded, LevelChange{Capability: cap, Old: oldLevel, New: newLevel})
		}
	}
	for cap := range old {
		if _, ok := new[cap]; !ok {
			d.Removed = append(d.Removed, cap)
		}
	}

	sortCaps(d.Added)
	sortCaps(d.Removed)
	sort.Slice(d.Upgraded, func(i, j int) bool { return d.Upgraded[i].Capability < d.Upgraded[j].Capability })
	sort.Slice(d.Downgraded, func(i, j int) bool { return d.Downgraded[i].Capability < d.Downgraded[j].Capability })
	return d
}

func sortCaps(caps []contract.Capability) {
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
}
