// Package runtime composes the stages of one run: validation, workspace
// staging, policy compilation, capability negotiation, dispatch, budget
// enforcement, receipt assembly, and persistence.
package runtime

import (
	"errors"
	"fmt"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// ErrUnknownBackend rejects a run naming an unregistered backend.
var ErrUnknownBackend = errors.New("unknown backend")

// CapabilityCheckError rejects a run whose requirements the selected
// backend cannot satisfy. Raised before any event is streamed.
type CapabilityCheckError struct {
	Backend     string
	Unsatisfied []contract.Capability
}

func (e *CapabilityCheckError) Error() string {
	return fmt.Sprintf("backend %q cannot satisfy capabilities %v", e.Backend, e.Unsatisfied)
}

// workspaceFailed and backendFailed tag stage failures so callers can distinguish error classes with
// errors.Is/As while the source chain stays intact.
func workspaceFailed(err error) error { return fmt.Errorf("runtime: workspace: %w", err) }
func backendFailed(err error) error   { return fmt.Errorf("runtime: backend: %w", err) }
