package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/backplane/internal/backend"
	"github.com/antigravity-dev/backplane/internal/contract"
	"github.com/antigravity-dev/backplane/internal/cost"
	"github.com/antigravity-dev/backplane/internal/policy"
	"github.com/antigravity-dev/backplane/internal/store"
	"github.com/antigravity-dev/backplane/internal/workspace"
)

const (
	defaultEventBuffer    = 256
	defaultBudgetInterval = 50 * time.Millisecond
)

// Options tune a Runtime.
type Options struct {
	// Store persists receipts. Nil disables persistence.
	Store *store.FileStore
	// Index catalogs saved receipts. Nil disables indexing.
	Index *store.Index
	Logger *slog.Logger
	// EventBuffer is the per-run event channel capacity.
	EventBuffer int
	// BudgetInterval is how often the budget watchdog polls.
	BudgetInterval time.Duration
	// MaxRunDuration caps every run's wall-clock time. Zero means no cap.
	MaxRunDuration time.Duration
}

// Runtime drives runs against registered backends.
type Runtime struct {
	registry *backend.Registry
	receipts *store.FileStore
	index    *store.Index
	logger   *slog.Logger
	metrics  *Metrics

	eventBuffer    int
	budgetInterval time.Duration
	maxRunDuration time.Duration
}

// New builds a runtime over a backend registry.
func New(registry *backend.Registry, opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	eventBuffer := opts.EventBuffer
	if eventBuffer <= 0 {
		eventBuffer = defaultEventBuffer
	}
	interval := opts.BudgetInterval
	if interval <= 0 {
		interval = defaultBudgetInterval
	}
	return &Runtime{
		registry:       registry,
		receipts:       opts.Store,
		index:          opts.Index,
		logger:         logger.With("component", "runtime"),
		metrics:        &Metrics{},
		eventBuffer:    eventBuffer,
		budgetInterval: interval,
		maxRunDuration: opts.MaxRunDuration,
	}
}

// Metrics snapshots the run counters.
func (rt *Runtime) Metrics() MetricsSnapshot {
	return rt.metrics.Snapshot()
}

// runOutcome pairs the (possibly best-effort) receipt with the error.
type runOutcome struct {
	receipt contract.Receipt
	err     error
}

// RunHandle is a live view of one run.
type RunHandle struct {
	RunID uuid.UUID
	// Events streams the backend's events as they occur. Closed when the
	// backend finishes.
	Events <-chan contract.AgentEvent

	outcome chan runOutcome
	cancel  context.CancelFunc
}

// Receipt blocks until the run resolves. On failure the returned receipt
// is the persisted best-effort record with outcome failed.
func (h *RunHandle) Receipt(ctx context.Context) (contract.Receipt, error) {
	select {
	case out := <-h.outcome:
		return out.receipt, out.err
	case <-ctx.Done():
		return contract.Receipt{}, ctx.Err()
	}
}

// Cancel aborts the run. The receipt resolves with a cancellation error
// in bounded time.
func (h *RunHandle) Cancel() { h.cancel() }

// unsatisfiedCaps applies the satisfaction relation per requirement.
func unsatisfiedCaps(reqs contract.CapabilityRequirements, manifest contract.CapabilityManifest) []contract.Capability {
	var out []contract.Capability
	for _, r := range reqs.Required {
		level, ok := manifest[r.Capability]
		if !ok || !level.Satisfies(r.MinSupport) {
			out = append(out, r.Capability)
		}
	}
	return out
}

// RunStreaming validates and prepares a run, then dispatches the backend
// on its own task. Pre-flight rejections (invalid order, unknown
// backend, failed capability check) return before any event is streamed
// and are not counted in the metrics.
func (rt *Runtime) RunStreaming(ctx context.Context, backendName string, wo contract.WorkOrder) (*RunHandle, error) {
	if err := contract.ValidateWorkOrder(wo); err != nil {
		return nil, err
	}

	b, ok := rt.registry.Get(backendName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backendName)
	}

	manifest := b.Capabilities()
	if missing := unsatisfiedCaps(wo.Requirements, manifest); len(missing) > 0 {
		return nil, &CapabilityCheckError{Backend: backendName, Unsatisfied: missing}
	}

	prepared, err := workspace.Stage(wo.Workspace, workspace.StageOptions{
		GitInit: wo.Workspace.Mode == contract.ModeStaged,
	})
	if err != nil {
		return nil, workspaceFailed(err)
	}

	engine := policy.Compile(wo.Policy)
	for _, w := range policy.Validate(wo.Policy) {
		rt.logger.Warn("policy warning", "kind", w.Kind, "message", w.Message)
	}
	// Context files the policy forbids reading never reach the backend.
	if len(wo.Context.Files) > 0 {
		kept := make([]string, 0, len(wo.Context.Files))
		for _, f := range wo.Context.Files {
			if d := engine.DecideRead(f); d.IsDeny() {
				rt.logger.Warn("dropping context file denied by policy",
					"path", f, "rule", d.Reason)
				continue
			}
			kept = append(kept, f)
		}
		wo.Context.Files = kept
	}

	rt.metrics.recordStart()

	limit := LimitFromConfig(wo.Config)
	if rt.maxRunDuration > 0 && limit.MaxDuration == nil {
		d := rt.maxRunDuration
		limit.MaxDuration = &d
	}
	tracker := NewBudgetTracker(limit)
	tracker.StartTimer()

	runID := uuid.New()
	runCtx, cancel := context.WithCancel(ctx)

	internal := make(chan contract.AgentEvent, rt.eventBuffer)
	out := make(chan contract.AgentEvent, rt.eventBuffer)
	handle := &RunHandle{
		RunID:   runID,
		Events:  out,
		outcome: make(chan runOutcome, 1),
		cancel:  cancel,
	}

	// Forwarder: tee events to the caller while capturing the trace for
	// best-effort receipts. Owns the captured slice until internal closes.
	captured := make(chan []contract.AgentEvent, 1)
	go func() {
		var trace []contract.AgentEvent
		for ev := range internal {
			trace = append(trace, ev)
			select {
			case out <- ev:
			case <-runCtx.Done():
				// Caller is gone; keep capturing so the receipt is complete.
			}
		}
		close(out)
		captured <- trace
	}()

	// Budget watchdog: concurrent with dispatch; a violation cancels the
	// backend task.
	watchdogStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(rt.budgetInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if check := tracker.Check(); check.State == Exceeded {
					rt.logger.Warn("budget exceeded, cancelling run",
						"run_id", runID.String(), "violation", check.Violation.Error())
					cancel()
					return
				}
			case <-watchdogStop:
				return
			}
		}
	}()

	// Backend task.
	go func() {
		defer cancel()
		startedAt := contract.Now()

		receipt, runErr := b.Run(runCtx, runID, wo, internal)
		close(internal)
		trace := <-captured
		close(watchdogStop)

		finishedAt := contract.Now()

		if runErr != nil {
			receipt = rt.failedReceipt(b, wo, trace, runErr)
			runErr = backendFailed(runErr)
		}

		rt.assemble(&receipt, b, wo, runID, startedAt, finishedAt)
		rt.verify(&receipt, prepared)

		hashed, err := receipt.WithHash()
		if err != nil {
			runErr = fmt.Errorf("runtime: hash receipt: %w", err)
		} else {
			receipt = hashed
		}

		if persistErr := rt.persist(receipt); persistErr != nil && runErr == nil {
			runErr = persistErr
		}

		tracker.RecordTokens(cost.TotalTokens(receipt.Usage))
		if receipt.Usage.EstimatedCostUSD != nil {
			tracker.RecordCost(*receipt.Usage.EstimatedCostUSD)
		}
		if check := tracker.Check(); check.State == Exceeded && runErr == nil {
			rt.logger.Warn("run finished over budget",
				"run_id", runID.String(), "violation", check.Violation.Error())
		}

		rt.metrics.recordFinish(receipt.Meta.DurationMS, receipt.Outcome == contract.OutcomeFailed)
		if closeErr := prepared.Close(); closeErr != nil {
			rt.logger.Warn("workspace cleanup failed", "error", closeErr)
		}

		handle.outcome <- runOutcome{receipt: receipt, err: runErr}
	}()

	return handle, nil
}

// Run dispatches and drains the event stream, returning only the
// receipt. Convenience for callers that do not consume live events.
func (rt *Runtime) Run(ctx context.Context, backendName string, wo contract.WorkOrder) (contract.Receipt, error) {
	handle, err := rt.RunStreaming(ctx, backendName, wo)
	if err != nil {
		return contract.Receipt{}, err
	}
	for range handle.Events {
	}
	return handle.Receipt(ctx)
}

// failedReceipt is the best-effort record of a run whose backend errored:
// the captured trace plus the failure message in the usage payload.
func (rt *Runtime) failedReceipt(b backend.Backend, wo contract.WorkOrder, trace []contract.AgentEvent, runErr error) contract.Receipt {
	usageRaw, err := json.Marshal(map[string]string{"error": runErr.Error()})
	if err != nil {
		usageRaw = json.RawMessage(`{"error":"unserializable"}`)
	}
	return contract.Receipt{
		Backend:      b.Identity(),
		Capabilities: b.Capabilities(),
		UsageRaw:     usageRaw,
		Trace:        trace,
		Outcome:      contract.OutcomeFailed,
	}
}

// assemble stamps the runtime-authoritative receipt fields.
func (rt *Runtime) assemble(receipt *contract.Receipt, b backend.Backend, wo contract.WorkOrder, runID uuid.UUID, startedAt, finishedAt contract.Timestamp) {
	receipt.Meta.RunID = runID
	receipt.Meta.WorkOrderID = wo.ID
	receipt.Meta.ContractVersion = contract.ContractVersion
	receipt.Meta.StartedAt = startedAt
	receipt.Meta.FinishedAt = finishedAt
	receipt.Meta.DurationMS = finishedAt.Sub(startedAt.Time).Milliseconds()

	receipt.Backend = b.Identity()
	if receipt.Capabilities == nil {
		receipt.Capabilities = b.Capabilities()
	}
	receipt.Mode = contract.ModeFromConfig(wo.Config)

	if receipt.Usage == (contract.UsageNormalized{}) {
		receipt.Usage = cost.Normalize(receipt.UsageRaw)
	}
}

// verify captures the post-run repository check for staged workspaces
// with a git baseline.
func (rt *Runtime) verify(receipt *contract.Receipt, prepared *workspace.PreparedWorkspace) {
	if prepared == nil || !prepared.GitInit {
		return
	}
	diff, status, err := workspace.RawDiff(prepared)
	if err != nil {
		rt.logger.Warn("verification diff failed", "error", err)
		return
	}
	receipt.Verification.GitDiff = diff
	receipt.Verification.GitStatus = status
}

func (rt *Runtime) persist(receipt contract.Receipt) error {
	if rt.receipts == nil {
		return nil
	}
	if err := rt.receipts.Save(receipt); err != nil {
		return fmt.Errorf("runtime: persist receipt: %w", err)
	}
	if rt.index != nil {
		if err := rt.index.Record(receipt); err != nil {
			return fmt.Errorf("runtime: index receipt: %w", err)
		}
	}
	return nil
}
