package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// Stage is one step of the diagnostic pipeline. Process may mutate the
// in-flight work order or fail.
type Stage interface {
	Name() string
	Process(ctx context.Context, wo *contract.WorkOrder) error
}

// StageResult reports one stage execution.
type StageResult struct {
	Name       string
	Passed     bool
	DurationMS int64
	Message    string
}

// StagePipeline runs every stage unconditionally and reports a result
// per stage, so callers get the complete diagnostic picture instead of
// the first failure. The core run path short-circuits instead.
type StagePipeline struct {
	stages []Stage
}

// PipelineBuilder assembles a StagePipeline.
type PipelineBuilder struct {
	stages []Stage
}

// NewPipeline starts an empty builder.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{}
}

// Add appends a stage.
func (b *PipelineBuilder) Add(stage Stage) *PipelineBuilder {
	b.stages = append(b.stages, stage)
	return b
}

// StageCount returns the number of stages added so far.
func (b *PipelineBuilder) StageCount() int { return len(b.stages) }

// Build produces the pipeline.
func (b *PipelineBuilder) Build() *StagePipeline {
	return &StagePipeline{stages: b.stages}
}

// StageNames lists the stages in execution order.
func (p *StagePipeline) StageNames() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name())
	}
	return names
}

// Execute runs all stages against the work order.
func (p *StagePipeline) Execute(ctx context.Context, wo *contract.WorkOrder) []StageResult {
	results := make([]StageResult, 0, len(p.stages))
	for _, stage := range p.stages {
		start := time.Now()
		err := stage.Process(ctx, wo)
		result := StageResult{
			Name:       stage.Name(),
			Passed:     err == nil,
			DurationMS: time.Since(start).Milliseconds(),
		}
		if err != nil {
			result.Message = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// AllPassed reports whether every stage in the result list passed.
func AllPassed(results []StageResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// ValidationStage checks work-order invariants.
type ValidationStage struct{}

func (ValidationStage) Name() string { return "validation" }

func (ValidationStage) Process(_ context.Context, wo *contract.WorkOrder) error {
	return contract.ValidateWorkOrder(*wo)
}

// RateLimitStage bounds how many work orders pass per 60-second window.
type RateLimitStage struct {
	maxPerMinute int

	mu         sync.Mutex
	timestamps []time.Time
}

// NewRateLimitStage allows maxPerMinute runs per rolling minute.
func NewRateLimitStage(maxPerMinute int) *RateLimitStage {
	return &RateLimitStage{maxPerMinute: maxPerMinute}
}

func (s *RateLimitStage) Name() string { return "rate_limit" }

func (s *RateLimitStage) Process(_ context.Context, _ *contract.WorkOrder) error {
	now := time.Now()
	window := time.Minute

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.timestamps[:0]
	for _, ts := range s.timestamps {
		if now.Sub(ts) < window {
			kept = append(kept, ts)
		}
	}
	s.timestamps = kept

	if len(s.timestamps) >= s.maxPerMinute {
		return fmt.Errorf("rate limit exceeded: %d runs in the last 60s (max %d)",
			len(s.timestamps), s.maxPerMinute)
	}
	s.timestamps = append(s.timestamps, now)
	return nil
}

// DeduplicationStage rejects structurally identical work orders within a
// window. The fingerprint covers task, workspace root, and config — not
// the id — so resubmissions with fresh ids are still caught.
type DeduplicationStage struct {
	window time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDeduplicationStage rejects duplicates within the window.
func NewDeduplicationStage(window time.Duration) *DeduplicationStage {
	return &DeduplicationStage{window: window, seen: make(map[string]time.Time)}
}

func (s *DeduplicationStage) Name() string { return "deduplication" }

func dedupKey(wo *contract.WorkOrder) string {
	cfg, _ := contract.CanonicalJSON(wo.Config)
	return wo.Task + ":" + wo.Workspace.Root + ":" + string(cfg)
}

func (s *DeduplicationStage) Process(_ context.Context, wo *contract.WorkOrder) error {
	key := dedupKey(wo)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ts := range s.seen {
		if now.Sub(ts) >= s.window {
			delete(s.seen, k)
		}
	}
	if _, dup := s.seen[key]; dup {
		return fmt.Errorf("duplicate work order within deduplication window")
	}
	s.seen[key] = now
	return nil
}

// LoggingStage records work-order entry at info level.
type LoggingStage struct {
	prefix string
	logger *slog.Logger
}

// NewLoggingStage logs each order with the given prefix.
func NewLoggingStage(prefix string, logger *slog.Logger) *LoggingStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingStage{prefix: prefix, logger: logger}
}

func (s *LoggingStage) Name() string { return "logging" }

func (s *LoggingStage) Process(_ context.Context, wo *contract.WorkOrder) error {
	s.logger.Info("processing work order",
		"prefix", s.prefix, "id", wo.ID.String(), "task", wo.Task)
	return nil
}
