// Package contract defines the stable Agent Backplane vocabulary: work
// orders, receipts, events, capabilities, and the canonical JSON hashing
// that makes receipts content-addressable.
package contract

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ContractVersion is the protocol contract spoken by this supervisor.
// Two versions are compatible iff their major components match.
const ContractVersion = "abp/v0.1"

// ExecutionLane controls how an agent may mutate the repository.
type ExecutionLane string

const (
	// LanePatchFirst means the agent proposes a patch; no direct mutation.
	LanePatchFirst ExecutionLane = "patch_first"
	// LaneWorkspaceFirst lets the agent mutate a (usually staged) workspace.
	LaneWorkspaceFirst ExecutionLane = "workspace_first"
)

// WorkspaceMode selects how the runtime treats the workspace root.
type WorkspaceMode string

const (
	// ModePassThrough uses the workspace as-is.
	ModePassThrough WorkspaceMode = "pass_through"
	// ModeStaged copies the workspace before any tool runs.
	ModeStaged WorkspaceMode = "staged"
)

// WorkspaceSpec describes the directory a run operates in.
type WorkspaceSpec struct {
	Root    string        `json:"root"`
	Mode    WorkspaceMode `json:"mode"`
	Include []string      `json:"include"`
	Exclude []string      `json:"exclude"`
}

// ContextSnippet is a named block of preloaded text context.
type ContextSnippet struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ContextPacket carries seed files and snippets into the backend.
type ContextPacket struct {
	Files    []string         `json:"files"`
	Snippets []ContextSnippet `json:"snippets"`
}

// PolicyProfile lists tool, path, and network allow/deny rules. Globs are
// evaluated relative to the workspace root.
type PolicyProfile struct {
	AllowedTools       []string `json:"allowed_tools"`
	DisallowedTools    []string `json:"disallowed_tools"`
	DenyRead           []string `json:"deny_read"`
	DenyWrite          []string `json:"deny_write"`
	AllowNetwork       []string `json:"allow_network"`
	DenyNetwork        []string `json:"deny_network"`
	RequireApprovalFor []string `json:"require_approval_for"`
}

// RuntimeConfig carries model hints, vendor-scoped flags, and hard caps.
type RuntimeConfig struct {
	Model        string                     `json:"model,omitempty"`
	Vendor       map[string]json.RawMessage `json:"vendor,omitempty"`
	Env          map[string]string          `json:"env,omitempty"`
	MaxBudgetUSD *float64                   `json:"max_budget_usd,omitempty"`
	MaxTurns     *int                       `json:"max_turns,omitempty"`
}

// CapabilityRequirement names one capability a backend must provide.
type CapabilityRequirement struct {
	Capability Capability `json:"capability"`
	MinSupport MinSupport `json:"min_support"`
}

// CapabilityRequirements is the required set on a work order.
type CapabilityRequirements struct {
	Required []CapabilityRequirement `json:"required"`
}

// WorkOrder is a single immutable unit of agent work. It is intentionally
// not a chat session; sessions may exist underneath, but the contract is
// step-oriented.
type WorkOrder struct {
	ID           uuid.UUID              `json:"id"`
	Task         string                 `json:"task"`
	Lane         ExecutionLane          `json:"lane"`
	Workspace    WorkspaceSpec          `json:"workspace"`
	Context      ContextPacket          `json:"context"`
	Policy       PolicyProfile          `json:"policy"`
	Requirements CapabilityRequirements `json:"requirements"`
	Config       RuntimeConfig          `json:"config"`
}

// BackendIdentity identifies a backend and its adapter.
type BackendIdentity struct {
	ID             string `json:"id"`
	BackendVersion string `json:"backend_version,omitempty"`
	AdapterVersion string `json:"adapter_version,omitempty"`
}

// ExecutionMode reports whether a run's semantics were translated to the
// vendor dialect or preserved end-to-end.
type ExecutionMode string

const (
	ModeMapped      ExecutionMode = "mapped"
	ModePassthrough ExecutionMode = "passthrough"
)

// ModeFromConfig derives the execution mode from config.vendor.abp.mode.
// Anything other than an explicit "passthrough" means mapped.
func ModeFromConfig(cfg RuntimeConfig) ExecutionMode {
	raw, ok := cfg.Vendor["abp"]
	if !ok {
		return ModeMapped
	}
	var abp struct {
		Mode string `json:"mode"`
	}
	if err := json.Unmarshal(raw, &abp); err != nil {
		return ModeMapped
	}
	if abp.Mode == string(ModePassthrough) {
		return ModePassthrough
	}
	return ModeMapped
}
