package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/antigravity-dev/backplane/internal/contract"
	"github.com/antigravity-dev/backplane/internal/sidecar"
)

// SidecarBackend hosts a backend behind the envelope protocol. Each Run
// spawns a fresh child (with retry), relays its event stream, and
// returns its receipt. Identity and capabilities come from a probe
// handshake performed at construction, so they stay pure afterwards.
type SidecarBackend struct {
	spec   sidecar.Spec
	retry  sidecar.RetryConfig
	logger *slog.Logger

	identity     contract.BackendIdentity
	capabilities contract.CapabilityManifest
}

// NewSidecarBackend probes the sidecar once to capture its hello, then
// returns a backend ready for dispatch.
func NewSidecarBackend(ctx context.Context, spec sidecar.Spec, retry sidecar.RetryConfig, logger *slog.Logger) (*SidecarBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	probe, _, err := sidecar.SpawnWithRetry(ctx, spec, retry, logger)
	if err != nil {
		return nil, fmt.Errorf("sidecar backend: probe handshake: %w", err)
	}
	hello := probe.Hello
	probe.Close()

	return &SidecarBackend{
		spec:         spec,
		retry:        retry,
		logger:       logger,
		identity:     hello.Backend,
		capabilities: hello.Capabilities,
	}, nil
}

func (b *SidecarBackend) Identity() contract.BackendIdentity { return b.identity }

func (b *SidecarBackend) Capabilities() contract.CapabilityManifest {
	return b.capabilities.Clone()
}

func (b *SidecarBackend) Run(ctx context.Context, runID uuid.UUID, wo contract.WorkOrder, events chan<- contract.AgentEvent) (contract.Receipt, error) {
	client, retryMeta, err := sidecar.SpawnWithRetry(ctx, b.spec, b.retry, b.logger)
	if err != nil {
		return contract.Receipt{}, fmt.Errorf("sidecar backend: spawn: %w", err)
	}

	run, err := client.Run(ctx, runID.String(), wo)
	if err != nil {
		return contract.Receipt{}, fmt.Errorf("sidecar backend: start run: %w", err)
	}
	defer run.Cancel()

	// Relay the child's events to the caller until its stream closes.
	for ev := range run.Events {
		if !Send(ctx, events, ev) {
			run.Cancel()
			break
		}
	}

	receipt, err := run.Receipt(ctx)
	run.Wait()
	if err != nil {
		return contract.Receipt{}, fmt.Errorf("sidecar backend: %w", err)
	}

	if len(retryMeta.FailedAttempts) > 0 {
		receipt.UsageRaw = mergeRetryMetadata(receipt.UsageRaw, retryMeta)
	}
	return receipt, nil
}

// mergeRetryMetadata folds spawn-retry records into the opaque usage
// payload under "abp_retry" so receipts keep evidence of earlier
// attempts. Non-object payloads are left alone.
func mergeRetryMetadata(usageRaw json.RawMessage, meta sidecar.RetryMetadata) json.RawMessage {
	obj := map[string]any{}
	if len(usageRaw) > 0 {
		if err := json.Unmarshal(usageRaw, &obj); err != nil || obj == nil {
			return usageRaw
		}
	}
	obj["abp_retry"] = meta.ToReceiptMetadata()
	merged, err := json.Marshal(obj)
	if err != nil {
		return usageRaw
	}
	return merged
}
