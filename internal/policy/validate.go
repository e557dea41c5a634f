package policy

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// WarningKind classifies validator findings.
type WarningKind string

const (
	WarnEmptyGlob        WarningKind = "empty_glob"
	WarnMalformedGlob    WarningKind = "malformed_glob"
	WarnOverlap          WarningKind = "allow_deny_overlap"
	WarnUnreachableAllow WarningKind = "unreachable_allow"
)

// Warning is a non-fatal validator finding. Warnings never block a run.
type Warning struct {
	Kind    WarningKind
	Message string
}

func warn(kind WarningKind, format string, args ...any) Warning {
	return Warning{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func isCatchAll(pattern string) bool {
	return pattern == "*" || pattern == "**" || pattern == "**/*"
}

// Validate inspects a profile for suspicious rules: empty or malformed
// glob strings, identical patterns in both an allow and a deny list, and
// catch-all deny rules that make explicit allows unreachable.
func Validate(p contract.PolicyProfile) []Warning {
	var warnings []Warning

	lists := []struct {
		name  string
		globs []string
	}{
		{"allowed_tools", p.AllowedTools},
		{"disallowed_tools", p.DisallowedTools},
		{"deny_read", p.DenyRead},
		{"deny_write", p.DenyWrite},
		{"allow_network", p.AllowNetwork},
		{"deny_network", p.DenyNetwork},
	}
	for _, list := range lists {
		for i, g := range list.globs {
			if strings.TrimSpace(g) == "" {
				warnings = append(warnings, warn(WarnEmptyGlob, "%s[%d] is empty", list.name, i))
				continue
			}
			if !doublestar.ValidatePattern(g) {
				warnings = append(warnings, warn(WarnMalformedGlob, "%s[%d] pattern %q is malformed and matches nothing", list.name, i, g))
			}
		}
	}

	warnings = append(warnings, overlapWarnings("tool", p.AllowedTools, p.DisallowedTools)...)
	warnings = append(warnings, overlapWarnings("network", p.AllowNetwork, p.DenyNetwork)...)

	for _, deny := range p.DisallowedTools {
		if isCatchAll(deny) && len(p.AllowedTools) > 0 {
			warnings = append(warnings, warn(WarnUnreachableAllow,
				"catch-all deny %q makes the tool allowlist unreachable", deny))
		}
	}
	for _, deny := range p.DenyNetwork {
		if isCatchAll(deny) && len(p.AllowNetwork) > 0 {
			warnings = append(warnings, warn(WarnUnreachableAllow,
				"catch-all deny %q makes the network allowlist unreachable", deny))
		}
	}

	return warnings
}

func overlapWarnings(kind string, allow, deny []string) []Warning {
	var warnings []Warning
	denySet := make(map[string]bool, len(deny))
	for _, d := range deny {
		denySet[d] = true
	}
	for _, a := range allow {
		if denySet[a] {
			warnings = append(warnings, warn(WarnOverlap,
				"%s pattern %q appears in both allow and deny lists", kind, a))
		}
	}
	return warnings
}
