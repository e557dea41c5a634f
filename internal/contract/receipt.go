package contract

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Outcome is the sole high-level verdict of a run.
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomePartial  Outcome = "partial"
	OutcomeFailed   Outcome = "failed"
)

// RunMetadata identifies a run and bounds it in time.
// DurationMS is finished_at minus started_at in whole milliseconds.
type RunMetadata struct {
	RunID           uuid.UUID `json:"run_id"`
	WorkOrderID     uuid.UUID `json:"work_order_id"`
	ContractVersion string    `json:"contract_version"`
	StartedAt       Timestamp `json:"started_at"`
	FinishedAt      Timestamp `json:"finished_at"`
	DurationMS      int64     `json:"duration_ms"`
}

// UsageNormalized holds best-effort normalized usage counters.
type UsageNormalized struct {
	InputTokens      *int64   `json:"input_tokens,omitempty"`
	OutputTokens     *int64   `json:"output_tokens,omitempty"`
	CacheReadTokens  *int64   `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens *int64   `json:"cache_write_tokens,omitempty"`
	RequestUnits     *int64   `json:"request_units,omitempty"`
	EstimatedCostUSD *float64 `json:"estimated_cost_usd,omitempty"`
}

// ArtifactRef names an output produced by a run (patch file, log, ...).
type ArtifactRef struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// VerificationReport is the post-run repository check.
type VerificationReport struct {
	GitDiff   string `json:"git_diff,omitempty"`
	GitStatus string `json:"git_status,omitempty"`
	HarnessOK bool   `json:"harness_ok"`
}

// Receipt is the content-addressable record of a completed run. Its trace
// is complete and element-wise identical to the streamed event sequence.
type Receipt struct {
	Meta         RunMetadata        `json:"meta"`
	Backend      BackendIdentity    `json:"backend"`
	Capabilities CapabilityManifest `json:"capabilities"`
	Mode         ExecutionMode      `json:"mode"`
	UsageRaw     json.RawMessage    `json:"usage_raw"`
	Usage        UsageNormalized    `json:"usage"`
	Trace        []AgentEvent       `json:"trace"`
	Artifacts    []ArtifactRef      `json:"artifacts"`
	Verification VerificationReport `json:"verification"`
	Outcome      Outcome            `json:"outcome"`

	// Hex SHA-256 of the canonical receipt; empty during construction,
	// filled by WithHash.
	ReceiptSHA256 string `json:"receipt_sha256,omitempty"`
}
