// Package work runs backtests and optimizations asynchronously. Submitted
// runs are journaled in results.db, executed by a fixed worker pool, and
// publish lifecycle events as they move through the queue.
package work

import (
	"encoding/json"
	"time"
)

// RunKind identifies what a queued run executes.
type RunKind string

const (
	KindBacktestSingle    RunKind = "single"
	KindBacktestPortfolio RunKind = "portfolio"
	KindBacktestMargin    RunKind = "margin"
	KindGridSearch        RunKind = "grid"
	KindWalkForward       RunKind = "walk_forward"
)

// table returns the results.db table a kind is journaled in.
func (k RunKind) table() string {
	switch k {
	case KindGridSearch, KindWalkForward:
		return "optimization_runs"
	default:
		return "backtest_runs"
	}
}

// RunStatus is a run's position in its lifecycle. Terminal statuses are
// completed, failed and cancelled.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Run is one journaled queue entry. Params holds the submitted request
// verbatim; Result holds the runner's output once the run completes.
type Run struct {
	ID         string          `json:"id"`
	Kind       RunKind         `json:"kind"`
	Symbol     string          `json:"symbol,omitempty"`
	Strategy   string          `json:"strategy,omitempty"`
	Metric     string          `json:"metric,omitempty"`
	Status     RunStatus       `json:"status"`
	Params     json.RawMessage `json:"params,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}
