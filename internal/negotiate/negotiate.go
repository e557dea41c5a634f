// Package negotiate matches required capability sets against backend
// manifests, scores candidates, and reports manifest drift.
package negotiate

import (
	"fmt"
	"sort"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// Request describes what a work order needs from a backend and what it
// would additionally like to have.
type Request struct {
	Required       []contract.Capability
	Preferred      []contract.Capability
	MinimumSupport contract.SupportLevel
}

// FromRequirements builds a Request from the work-order requirement list.
// The strictest min_support across requirements becomes the request
// minimum, and every required capability is checked against that one
// minimum; per-capability minimums are not kept.
func FromRequirements(reqs contract.CapabilityRequirements) Request {
	out := Request{MinimumSupport: contract.Emulated()}
	for _, r := range reqs.Required {
		out.Required = append(out.Required, r.Capability)
		if r.MinSupport == contract.MinNative {
			out.MinimumSupport = contract.Native()
		}
	}
	return out
}

// Result is the outcome of negotiating one manifest.
type Result struct {
	IsCompatible bool
	Satisfied    []contract.Capability
	Unsatisfied  []contract.Capability
	Bonus        []contract.Capability
	Score        float64
}

// Error converts an incompatible result into a fatal negotiation error.
func (r Result) Error() error {
	if r.IsCompatible {
		return nil
	}
	return fmt.Errorf("unsatisfied capabilities: %v", r.Unsatisfied)
}

// rank orders support levels for minimum comparisons and diffs:
// unsupported < restricted < emulated < native.
func rank(l contract.SupportLevel) int {
	switch l.Level {
	case contract.SupportNative:
		return 3
	case contract.SupportEmulated:
		return 2
	case contract.SupportRestricted:
		return 1
	default:
		return 0
	}
}

// satisfiesLevel extends the contract satisfaction relation to arbitrary
// minimum levels: a native minimum accepts native only; emulated and
// restricted minimums accept anything except unsupported; an unsupported
// minimum accepts anything.
func satisfiesLevel(level, min contract.SupportLevel) bool {
	switch min.Level {
	case contract.SupportNative:
		return level.Level == contract.SupportNative
	case contract.SupportEmulated, contract.SupportRestricted:
		return level.Level != contract.SupportUnsupported
	default:
		return true
	}
}

// scoreContribution weighs one satisfied preferred capability.
func scoreContribution(level contract.SupportLevel) float64 {
	switch level.Level {
	case contract.SupportNative:
		return 1.0
	case contract.SupportEmulated:
		return 0.5
	case contract.SupportRestricted:
		return 0.25
	default:
		return 0
	}
}

// Negotiate checks a manifest against a request. Unsatisfied required
// capabilities make the result incompatible; satisfied preferred
// capabilities contribute to the score.
func Negotiate(req Request, manifest contract.CapabilityManifest) Result {
	var result Result

	for _, cap := range req.Required {
		level, ok := manifest[cap]
		if ok && satisfiesLevel(level, req.MinimumSupport) {
			result.Satisfied = append(result.Satisfied, cap)
		} else {
			result.Unsatisfied = append(result.Unsatisfied, cap)
		}
	}
	result.IsCompatible = len(result.Unsatisfied) == 0

	for _, cap := range req.Preferred {
		level, ok := manifest[cap]
		if ok && satisfiesLevel(level, req.MinimumSupport) {
			result.Bonus = append(result.Bonus, cap)
			result.Score += scoreContribution(level)
		}
	}

	return result
}

// BestMatch negotiates every named manifest and returns the compatible
// one with the highest score. Ties break lexicographically by backend id
// so selection is deterministic. Returns ok=false when nothing is
// compatible.
func BestMatch(req Request, manifests map[string]contract.CapabilityManifest) (string, Result, bool) {
	names := make([]string, 0, len(manifests))
	for name := range manifests {
		names = append(names, name)
	}
	sort.Strings(names)

	var bestName string
	var best Result
	found := false
	for _, name := range names {
		result := Negotiate(req, manifests[name])
		if !result.IsCompatible {
			continue
		}
		if !found || result.Score > best.Score {
			bestName, best, found = name, result, true
		}
	}
	return bestName, best, found
}
