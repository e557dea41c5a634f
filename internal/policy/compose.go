package policy

import (
	"github.com/antigravity-dev/backplane/internal/contract"
)

// Precedence selects how a ComposedEngine resolves conflicting votes.
type Precedence string

const (
	// DenyOverrides: any deny wins.
	DenyOverrides Precedence = "deny_overrides"
	// AllowOverrides: any allow wins; all-deny stays deny.
	AllowOverrides Precedence = "allow_overrides"
	// FirstApplicable: the first profile whose vote is not abstain wins.
	FirstApplicable Precedence = "first_applicable"
)

// MergeProfiles unions the rule lists of several profiles, deduplicating
// while preserving first-seen order.
func MergeProfiles(profiles ...contract.PolicyProfile) contract.PolicyProfile {
	var out contract.PolicyProfile
	out.AllowedTools = unionStrings(pluck(profiles, func(p contract.PolicyProfile) []string { return p.AllowedTools }))
	out.DisallowedTools = unionStrings(pluck(profiles, func(p contract.PolicyProfile) []string { return p.DisallowedTools }))
	out.DenyRead = unionStrings(pluck(profiles, func(p contract.PolicyProfile) []string { return p.DenyRead }))
	out.DenyWrite = unionStrings(pluck(profiles, func(p contract.PolicyProfile) []string { return p.DenyWrite }))
	out.AllowNetwork = unionStrings(pluck(profiles, func(p contract.PolicyProfile) []string { return p.AllowNetwork }))
	out.DenyNetwork = unionStrings(pluck(profiles, func(p contract.PolicyProfile) []string { return p.DenyNetwork }))
	out.RequireApprovalFor = unionStrings(pluck(profiles, func(p contract.PolicyProfile) []string { return p.RequireApprovalFor }))
	return out
}

func pluck(profiles []contract.PolicyProfile, f func(contract.PolicyProfile) []string) [][]string {
	out := make([][]string, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, f(p))
	}
	return out
}

func unionStrings(lists [][]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// ComposedEngine evaluates several profiles under one precedence mode.
// Each profile contributes its full decision (including default allow);
// abstention arises only from an engine with no profiles at all, which
// abstains on every query.
type ComposedEngine struct {
	engines    []*Engine
	precedence Precedence
}

// NewComposed compiles each profile and fixes the precedence mode.
func NewComposed(profiles []contract.PolicyProfile, precedence Precedence) *ComposedEngine {
	engines := make([]*Engine, 0, len(profiles))
	for _, p := range profiles {
		engines = append(engines, Compile(p))
	}
	return &ComposedEngine{engines: engines, precedence: precedence}
}

func (c *ComposedEngine) combine(votes []Decision) Decision {
	switch c.precedence {
	case AllowOverrides:
		var deny *Decision
		for i := range votes {
			switch votes[i].Verdict {
			case Allow:
				return votes[i]
			case Deny:
				if deny == nil {
					deny = &votes[i]
				}
			}
		}
		if deny != nil {
			return *deny
		}
		return abstained()
	case FirstApplicable:
		for _, v := range votes {
			if !v.IsAbstain() {
				return v
			}
		}
		return abstained()
	default: // DenyOverrides
		var allow *Decision
		for i := range votes {
			switch votes[i].Verdict {
			case Deny:
				return votes[i]
			case Allow:
				if allow == nil {
					allow = &votes[i]
				}
			}
		}
		if allow != nil {
			return *allow
		}
		return abstained()
	}
}

func (c *ComposedEngine) votes(f func(*Engine) Decision) []Decision {
	out := make([]Decision, 0, len(c.engines))
	for _, e := range c.engines {
		out = append(out, f(e))
	}
	return out
}

// DecideTool composes per-profile tool votes under the precedence mode.
func (c *ComposedEngine) DecideTool(tool string) Decision {
	return c.combine(c.votes(func(e *Engine) Decision { return e.DecideTool(tool) }))
}

// DecideRead composes per-profile read votes.
func (c *ComposedEngine) DecideRead(path string) Decision {
	return c.combine(c.votes(func(e *Engine) Decision { return e.DecideRead(path) }))
}

// DecideWrite composes per-profile write votes.
func (c *ComposedEngine) DecideWrite(path string) Decision {
	return c.combine(c.votes(func(e *Engine) Decision { return e.DecideWrite(path) }))
}

// DecideNetwork composes per-profile network votes.
func (c *ComposedEngine) DecideNetwork(host string) Decision {
	return c.combine(c.votes(func(e *Engine) Decision { return e.DecideNetwork(host) }))
}
