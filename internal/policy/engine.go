// Package policy compiles work-order policy profiles into fast, pure
// decision engines for tool, path, and network authorization.
package policy

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// Verdict is the outcome of a policy query.
type Verdict string

const (
	Allow   Verdict = "allow"
	Deny    Verdict = "deny"
	Abstain Verdict = "abstain"
)

// Decision pairs a verdict with the rule that produced it.
type Decision struct {
	Verdict Verdict
	Reason  string
}

func (d Decision) IsAllow() bool   { return d.Verdict == Allow }
func (d Decision) IsDeny() bool    { return d.Verdict == Deny }
func (d Decision) IsAbstain() bool { return d.Verdict == Abstain }

func allowed(pattern string) Decision { return Decision{Verdict: Allow, Reason: pattern} }
func denied(reason string) Decision   { return Decision{Verdict: Deny, Reason: reason} }
func abstained() Decision             { return Decision{Verdict: Abstain} }

// matchGlob matches subject against a doublestar pattern. A malformed
// pattern matches nothing.
func matchGlob(pattern, subject string) bool {
	ok, err := doublestar.Match(pattern, subject)
	return err == nil && ok
}

func matchAny(patterns []string, subject string) (string, bool) {
	for _, p := range patterns {
		if matchGlob(p, subject) {
			return p, true
		}
	}
	return "", false
}

// Engine is a compiled PolicyProfile. Decisions are pure and safe for
// concurrent use; the engine is immutable after Compile.
//
// The decision function is the same for every subject kind: a matching
// deny rule denies with the pattern as reason; a present-but-unmatched
// allowlist denies; otherwise the subject is allowed.
type Engine struct {
	profile contract.PolicyProfile
}

// Compile builds an engine from a profile. Malformed globs are kept (they
// match nothing); use Validate to surface them as warnings.
func Compile(p contract.PolicyProfile) *Engine {
	return &Engine{profile: p}
}

// DecideTool answers "may tool run?". An empty allowed_tools list means no
// explicit allowlist, i.e. default allow.
func (e *Engine) DecideTool(tool string) Decision {
	if pattern, ok := matchAny(e.profile.DisallowedTools, tool); ok {
		return denied(pattern)
	}
	if len(e.profile.AllowedTools) > 0 {
		if pattern, ok := matchAny(e.profile.AllowedTools, tool); ok {
			return allowed(pattern)
		}
		return denied(fmt.Sprintf("tool %q not in allowlist", tool))
	}
	return allowed("default allow")
}

// DecideRead answers "may path be read?".
func (e *Engine) DecideRead(path string) Decision {
	if pattern, ok := matchAny(e.profile.DenyRead, path); ok {
		return denied(pattern)
	}
	return allowed("default allow")
}

// DecideWrite answers "may path be written?".
func (e *Engine) DecideWrite(path string) Decision {
	if pattern, ok := matchAny(e.profile.DenyWrite, path); ok {
		return denied(pattern)
	}
	return allowed("default allow")
}

// DecideNetwork answers "may host be contacted?".
func (e *Engine) DecideNetwork(host string) Decision {
	if pattern, ok := matchAny(e.profile.DenyNetwork, host); ok {
		return denied(pattern)
	}
	if len(e.profile.AllowNetwork) > 0 {
		if pattern, ok := matchAny(e.profile.AllowNetwork, host); ok {
			return allowed(pattern)
		}
		return denied(fmt.Sprintf("host %q not in network allowlist", host))
	}
	return allowed("default allow")
}

// RequiresApproval reports whether the profile demands explicit approval
// before running the tool.
func (e *Engine) RequiresApproval(tool string) bool {
	_, ok := matchAny(e.profile.RequireApprovalFor, tool)
	return ok
}
