// Package protocol implements the sidecar wire protocol: tagged JSON
// envelopes, one per line, plus the incremental JSONL codec and contract
// version parsing.
package protocol

import (
	"fmt"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// EnvelopeType discriminates the wire variants via the "t" field.
type EnvelopeType string

const (
	TypeHello EnvelopeType = "hello"
	TypeRun   EnvelopeType = "run"
	TypeEvent EnvelopeType = "event"
	TypeFinal EnvelopeType = "final"
	TypeFatal EnvelopeType = "fatal"
)

// Envelope is one wire message. The T field selects the variant; only the
// fields belonging to that variant are populated.
type Envelope struct {
	T EnvelopeType `json:"t"`

	// hello
	ContractVersion string                      `json:"contract_version,omitempty"`
	Backend         *contract.BackendIdentity   `json:"backend,omitempty"`
	Capabilities    contract.CapabilityManifest `json:"capabilities,omitempty"`
	Mode            contract.ExecutionMode      `json:"mode,omitempty"`

	// run
	ID        string              `json:"id,omitempty"`
	WorkOrder *contract.WorkOrder `json:"work_order,omitempty"`

	// event / final / fatal correlation. Fatal may carry a null ref_id
	// when the failure precedes any run.
	RefID *string `json:"ref_id,omitempty"`

	// event
	Event *contract.AgentEvent `json:"event,omitempty"`

	// final
	Receipt *contract.Receipt `json:"receipt,omitempty"`

	// fatal
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Hello builds the handshake envelope a sidecar emits as its first line.
func Hello(backend contract.BackendIdentity, caps contract.CapabilityManifest, mode contract.ExecutionMode) Envelope {
	if mode == "" {
		mode = contract.ModeMapped
	}
	return Envelope{
		T:               TypeHello,
		ContractVersion: contract.ContractVersion,
		Backend:         &backend,
		Capabilities:    caps,
		Mode:            mode,
	}
}

// Run builds the envelope the supervisor sends once per session.
func Run(id string, wo contract.WorkOrder) Envelope {
	return Envelope{T: TypeRun, ID: id, WorkOrder: &wo}
}

// Event wraps one streamed agent event for the given run.
func Event(refID string, ev contract.AgentEvent) Envelope {
	return Envelope{T: TypeEvent, RefID: &refID, Event: &ev}
}

// Final closes a successful run with its receipt.
func Final(refID string, receipt contract.Receipt) Envelope {
	return Envelope{T: TypeFinal, RefID: &refID, Receipt: &receipt}
}

// Fatal terminates the session with failure. refID may be nil when the
// failure precedes any run.
func Fatal(refID *string, errMsg, errorCode string) Envelope {
	return Envelope{T: TypeFatal, RefID: refID, Error: errMsg, ErrorCode: errorCode}
}

// Validate checks that the envelope carries the fields its variant
// requires.
func (e Envelope) Validate() error {
	switch e.T {
	case TypeHello:
		if e.ContractVersion == "" {
			return fmt.Errorf("hello envelope missing contract_version")
		}
		if e.Backend == nil || e.Backend.ID == "" {
			return fmt.Errorf("hello envelope missing backend identity")
		}
	case TypeRun:
		if e.ID == "" {
			return fmt.Errorf("run envelope missing id")
		}
		if e.WorkOrder == nil {
			return fmt.Errorf("run envelope missing work_order")
		}
	case TypeEvent:
		if e.RefID == nil || *e.RefID == "" {
			return fmt.Errorf("event envelope missing ref_id")
		}
		if e.Event == nil {
			return fmt.Errorf("event envelope missing event")
		}
	case TypeFinal:
		if e.RefID == nil || *e.RefID == "" {
			return fmt.Errorf("final envelope missing ref_id")
		}
		if e.Receipt == nil {
			return fmt.Errorf("final envelope missing receipt")
		}
	case TypeFatal:
		if e.Error == "" {
			return fmt.Errorf("fatal envelope missing error")
		}
	case "":
		return fmt.Errorf("envelope missing discriminator t")
	default:
		return fmt.Errorf("unknown envelope type %q", e.T)
	}
	return nil
}
