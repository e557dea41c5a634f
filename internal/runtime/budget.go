package runtime

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// Warning fires at this fraction of any limit.
const warningThreshold = 0.8

// BudgetLimit caps a single run per dimension. Nil means unlimited.
type BudgetLimit struct {
	MaxTokens   *int64
	MaxCostUSD  *float64
	MaxTurns    *int32
	MaxDuration *time.Duration
}

// LimitFromConfig derives the per-run budget from work-order config.
func LimitFromConfig(cfg contract.RuntimeConfig) BudgetLimit {
	var limit BudgetLimit
	if cfg.MaxBudgetUSD != nil {
		v := *cfg.MaxBudgetUSD
		limit.MaxCostUSD = &v
	}
	if cfg.MaxTurns != nil {
		v := int32(*cfg.MaxTurns)
		limit.MaxTurns = &v
	}
	return limit
}

// BudgetState classifies a check result.
type BudgetState string

const (
	WithinLimits BudgetState = "within_limits"
	Warning      BudgetState = "warning"
	Exceeded     BudgetState = "exceeded"
)

// Dimension names the budget axis a violation occurred on.
type Dimension string

const (
	DimTokens   Dimension = "tokens"
	DimCost     Dimension = "cost_usd"
	DimTurns    Dimension = "turns"
	DimDuration Dimension = "duration"
)

// BudgetViolation reports the first dimension that exceeded its cap.
type BudgetViolation struct {
	Dimension Dimension
	Used      float64
	Limit     float64
}

func (v BudgetViolation) Error() string {
	switch v.Dimension {
	case DimTokens:
		return fmt.Sprintf("token budget exceeded: used %d, limit %d", int64(v.Used), int64(v.Limit))
	case DimTurns:
		return fmt.Sprintf("turn budget exceeded: used %d, limit %d", int64(v.Used), int64(v.Limit))
	case DimDuration:
		return fmt.Sprintf("duration budget exceeded: used %s, limit %s",
			time.Duration(v.Used), time.Duration(v.Limit))
	default:
		return fmt.Sprintf("cost budget exceeded: used $%.6f, limit $%.6f", v.Used, v.Limit)
	}
}

// BudgetCheck is the outcome of one Check call.
type BudgetCheck struct {
	State     BudgetState
	UsagePct  float64
	Violation *BudgetViolation
}

// BudgetTracker atomically accumulates tokens, cost, turns, and
// wall-clock time against a limit. Cost is stored as integer
// micro-dollars so concurrent updates stay exact. The boundary is strict
// exceedance: used > limit violates, used == limit does not.
type BudgetTracker struct {
	limit BudgetLimit

	tokens    atomic.Int64
	costMicro atomic.Int64
	turns     atomic.Int32

	mu    sync.Mutex
	start time.Time
}

// NewBudgetTracker creates a tracker with zeroed counters.
func NewBudgetTracker(limit BudgetLimit) *BudgetTracker {
	return &BudgetTracker{limit: limit}
}

// StartTimer marks the beginning of execution for the duration dimension.
func (t *BudgetTracker) StartTimer() {
	t.mu.Lock()
	t.start = time.Now()
	t.mu.Unlock()
}

// RecordTokens adds consumed tokens.
func (t *BudgetTracker) RecordTokens(n int64) {
	t.tokens.Add(n)
}

// RecordCost adds spend in USD.
func (t *BudgetTracker) RecordCost(usd float64) {
	t.costMicro.Add(int64(usd * 1_000_000))
}

// RecordTurn counts one agent turn.
func (t *BudgetTracker) RecordTurn() {
	t.turns.Add(1)
}

// Elapsed returns wall-clock time since StartTimer, zero before it.
func (t *BudgetTracker) Elapsed() time.Duration {
	t.mu.Lock()
	start := t.start
	t.mu.Unlock()
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}

// Tokens returns the current token count.
func (t *BudgetTracker) Tokens() int64 { return t.tokens.Load() }

// CostUSD returns the current spend.
func (t *BudgetTracker) CostUSD() float64 { return float64(t.costMicro.Load()) / 1_000_000 }

// Turns returns the current turn count.
func (t *BudgetTracker) Turns() int32 { return t.turns.Load() }

// Check compares usage to the limits. Exceeded wins over Warning; the
// first exceeded dimension (tokens, cost, turns, duration) is reported.
func (t *BudgetTracker) Check() BudgetCheck {
	tokens := t.tokens.Load()
	costUSD := t.CostUSD()
	turns := t.turns.Load()
	elapsed := t.Elapsed()

	if t.limit.MaxTokens != nil && tokens > *t.limit.MaxTokens {
		return exceeded(DimTokens, float64(tokens), float64(*t.limit.MaxTokens))
	}
	if t.limit.MaxCostUSD != nil && costUSD > *t.limit.MaxCostUSD {
		return exceeded(DimCost, costUSD, *t.limit.MaxCostUSD)
	}
	if t.limit.MaxTurns != nil && turns > *t.limit.MaxTurns {
		return exceeded(DimTurns, float64(turns), float64(*t.limit.MaxTurns))
	}
	if t.limit.MaxDuration != nil && elapsed > *t.limit.MaxDuration {
		return exceeded(DimDuration, float64(elapsed), float64(*t.limit.MaxDuration))
	}

	maxPct := 0.0
	track := func(used, limit float64) {
		if limit > 0 {
			if pct := used / limit; pct > maxPct {
				maxPct = pct
			}
		}
	}
	if t.limit.MaxTokens != nil {
		track(float64(tokens), float64(*t.limit.MaxTokens))
	}
	if t.limit.MaxCostUSD != nil {
		track(costUSD, *t.limit.MaxCostUSD)
	}
	if t.limit.MaxTurns != nil {
		track(float64(turns), float64(*t.limit.MaxTurns))
	}
	if t.limit.MaxDuration != nil {
		track(float64(elapsed), float64(*t.limit.MaxDuration))
	}

	if maxPct >= warningThreshold {
		return BudgetCheck{State: Warning, UsagePct: maxPct}
	}
	return BudgetCheck{State: WithinLimits, UsagePct: maxPct}
}

func exceeded(dim Dimension, used, limit float64) BudgetCheck {
	return BudgetCheck{
		State:     Exceeded,
		UsagePct:  usagePct(used, limit),
		Violation: &BudgetViolation{Dimension: dim, Used: used, Limit: limit},
	}
}

func usagePct(used, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return used / limit
}
