package contract

import (
	"fmt"
	"strings"
)

// ValidationErrors accumulates every contract violation found in one pass
// so callers see the complete picture instead of the first failure.
type ValidationErrors struct {
	Problems []string
}

func (e *ValidationErrors) Error() string {
	return fmt.Sprintf("invalid work order: %s", strings.Join(e.Problems, "; "))
}

func (e *ValidationErrors) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// ValidateWorkOrder checks the work-order invariants. Returns nil when the
// order is valid, otherwise a *ValidationErrors listing every problem.
func ValidateWorkOrder(wo WorkOrder) error {
	errs := &ValidationErrors{}

	if strings.TrimSpace(wo.Task) == "" {
		errs.add("task must be non-empty")
	}
	if strings.TrimSpace(wo.Workspace.Root) == "" {
		errs.add("workspace.root must be non-empty")
	}
	switch wo.Lane {
	case LanePatchFirst, LaneWorkspaceFirst:
	default:
		errs.add("lane %q is not a valid execution lane", wo.Lane)
	}
	switch wo.Workspace.Mode {
	case ModePassThrough, ModeStaged:
	default:
		errs.add("workspace.mode %q is not a valid workspace mode", wo.Workspace.Mode)
	}

	for listName, globs := range map[string][]string{
		"allowed_tools":        wo.Policy.AllowedTools,
		"disallowed_tools":     wo.Policy.DisallowedTools,
		"deny_read":            wo.Policy.DenyRead,
		"deny_write":           wo.Policy.DenyWrite,
		"allow_network":        wo.Policy.AllowNetwork,
		"deny_network":         wo.Policy.DenyNetwork,
		"require_approval_for": wo.Policy.RequireApprovalFor,
	} {
		for i, g := range globs {
			if strings.TrimSpace(g) == "" {
				errs.add("policy.%s[%d] is an empty glob", listName, i)
			}
		}
	}

	if wo.Config.MaxBudgetUSD != nil && *wo.Config.MaxBudgetUSD < 0 {
		errs.add("config.max_budget_usd must be >= 0, got %v", *wo.Config.MaxBudgetUSD)
	}
	if wo.Config.MaxTurns != nil && *wo.Config.MaxTurns < 1 {
		errs.add("config.max_turns must be >= 1, got %d", *wo.Config.MaxTurns)
	}

	for i, req := range wo.Requirements.Required {
		switch req.MinSupport {
		case MinNative, MinEmulated:
		default:
			errs.add("requirements[%d].min_support %q is not valid", i, req.MinSupport)
		}
	}

	if len(errs.Problems) > 0 {
		return errs
	}
	return nil
}
