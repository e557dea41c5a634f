package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// MockBackend is the in-process reference backend: it emits run_started
// with the task text and run_completed, and produces a well-formed
// receipt. Tests use Delay and FailWith to shape timing and failure.
type MockBackend struct {
	// Delay is inserted between the two events.
	Delay time.Duration
	// FailWith, when set, aborts the run after run_started with an error
	// event and a failed receipt.
	FailWith string
}

// NewMock returns a mock backend with no delay and no scripted failure.
func NewMock() *MockBackend {
	return &MockBackend{}
}

func (m *MockBackend) Identity() contract.BackendIdentity {
	return contract.BackendIdentity{
		ID:             "mock",
		BackendVersion: "0.0.0",
		AdapterVersion: "0.1.0",
	}
}

// Capabilities declares streaming plus basic tool emulation — enough for
// bring-up, deliberately modest.
func (m *MockBackend) Capabilities() contract.CapabilityManifest {
	return contract.CapabilityManifest{
		contract.CapStreaming: contract.Native(),
		contract.CapToolRead:  contract.Emulated(),
		contract.CapToolWrite: contract.Emulated(),
		contract.CapToolEdit:  contract.Emulated(),
		contract.CapToolGlob:  contract.Emulated(),
		contract.CapToolGrep:  contract.Emulated(),
	}
}

func (m *MockBackend) Run(ctx context.Context, runID uuid.UUID, wo contract.WorkOrder, events chan<- contract.AgentEvent) (contract.Receipt, error) {
	started := contract.Now()
	var trace []contract.AgentEvent

	emit := func(ev contract.AgentEvent) bool {
		if !Send(ctx, events, ev) {
			return false
		}
		trace = append(trace, ev)
		return true
	}

	if !emit(contract.RunStarted(wo.Task)) {
		return contract.Receipt{}, ctx.Err()
	}

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return contract.Receipt{}, ctx.Err()
		}
	}

	outcome := contract.OutcomeComplete
	if m.FailWith != "" {
		if !emit(contract.ErrorEvent(m.FailWith, "E_MOCK")) {
			return contract.Receipt{}, ctx.Err()
		}
		outcome = contract.OutcomeFailed
	} else if !emit(contract.RunCompleted(fmt.Sprintf("mock run complete: %s", wo.Task))) {
		return contract.Receipt{}, ctx.Err()
	}

	finished := contract.Now()
	receipt := contract.Receipt{
		Meta: contract.RunMetadata{
			RunID:           runID,
			WorkOrderID:     wo.ID,
			ContractVersion: contract.ContractVersion,
			StartedAt:       started,
			FinishedAt:      finished,
			DurationMS:      finished.Sub(started.Time).Milliseconds(),
		},
		Backend:      m.Identity(),
		Capabilities: m.Capabilities(),
		Mode:         contract.ModeFromConfig(wo.Config),
		UsageRaw:     json.RawMessage(`{"note":"mock"}`),
		Trace:        trace,
		Verification: contract.VerificationReport{HarnessOK: outcome == contract.OutcomeComplete},
		Outcome:      outcome,
	}
	return receipt, nil
}
