package contract

import (
	"encoding/json"

	"github.com/google/uuid"
)

// WorkOrderBuilder assembles a work order with sensible defaults: a fresh
// id, patch-first lane, pass-through workspace rooted at ".".
type WorkOrderBuilder struct {
	wo WorkOrder
}

// NewWorkOrder starts a builder for the given task.
func NewWorkOrder(task string) *WorkOrderBuilder {
	return &WorkOrderBuilder{wo: WorkOrder{
		ID:   uuid.New(),
		Task: task,
		Lane: LanePatchFirst,
		Workspace: WorkspaceSpec{
			Root: ".",
			Mode: ModePassThrough,
		},
	}}
}

func (b *WorkOrderBuilder) ID(id uuid.UUID) *WorkOrderBuilder {
	b.wo.ID = id
	return b
}

func (b *WorkOrderBuilder) Lane(lane ExecutionLane) *WorkOrderBuilder {
	b.wo.Lane = lane
	return b
}

func (b *WorkOrderBuilder) Workspace(root string, mode WorkspaceMode) *WorkOrderBuilder {
	b.wo.Workspace.Root = root
	b.wo.Workspace.Mode = mode
	return b
}

func (b *WorkOrderBuilder) Include(globs ...string) *WorkOrderBuilder {
	b.wo.Workspace.Include = append(b.wo.Workspace.Include, globs...)
	return b
}

func (b *WorkOrderBuilder) Exclude(globs ...string) *WorkOrderBuilder {
	b.wo.Workspace.Exclude = append(b.wo.Workspace.Exclude, globs...)
	return b
}

func (b *WorkOrderBuilder) ContextFile(paths ...string) *WorkOrderBuilder {
	b.wo.Context.Files = append(b.wo.Context.Files, paths...)
	return b
}

func (b *WorkOrderBuilder) Snippet(name, content string) *WorkOrderBuilder {
	b.wo.Context.Snippets = append(b.wo.Context.Snippets, ContextSnippet{Name: name, Content: content})
	return b
}

func (b *WorkOrderBuilder) Policy(p PolicyProfile) *WorkOrderBuilder {
	b.wo.Policy = p
	return b
}

func (b *WorkOrderBuilder) Require(cap Capability, min MinSupport) *WorkOrderBuilder {
	b.wo.Requirements.Required = append(b.wo.Requirements.Required, CapabilityRequirement{
		Capability: cap,
		MinSupport: min,
	})
	return b
}

func (b *WorkOrderBuilder) Model(model string) *WorkOrderBuilder {
	b.wo.Config.Model = model
	return b
}

func (b *WorkOrderBuilder) Env(key, value string) *WorkOrderBuilder {
	if b.wo.Config.Env == nil {
		b.wo.Config.Env = make(map[string]string)
	}
	b.wo.Config.Env[key] = value
	return b
}

func (b *WorkOrderBuilder) Vendor(key string, value json.RawMessage) *WorkOrderBuilder {
	if b.wo.Config.Vendor == nil {
		b.wo.Config.Vendor = make(map[string]json.RawMessage)
	}
	b.wo.Config.Vendor[key] = value
	return b
}

func (b *WorkOrderBuilder) MaxBudgetUSD(usd float64) *WorkOrderBuilder {
	b.wo.Config.MaxBudgetUSD = &usd
	return b
}

func (b *WorkOrderBuilder) MaxTurns(turns int) *WorkOrderBuilder {
	b.wo.Config.MaxTurns = &turns
	return b
}

// Build returns the assembled work order.
func (b *WorkOrderBuilder) Build() WorkOrder {
	return b.wo
}
