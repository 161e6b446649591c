package engine

import (
	"sync"
	"time"
)

// DefaultLedgerCapacity is the default size of the recent-history ring.
const DefaultLedgerCapacity = 10

// ExecutionSummary is one compact entry in the ledger's recent-history ring.
type ExecutionSummary struct {
	// Timestamp is when the execution completed.
	Timestamp time.Time `json:"timestamp"`

	// Prompt is the user prompt, truncated to 100 characters.
	Prompt string `json:"prompt"`

	// Strategy is the strategy name that ran.
	Strategy string `json:"strategy"`

	// Models is the number of models invoked.
	Models int `json:"models"`

	// Elapsed is the end-to-end execution time.
	Elapsed Millis `json:"elapsed_ms"`

	// Speedup is the reported concurrency gain.
	Speedup float64 `json:"speedup"`
}

// Snapshot is a consistent read of the ledger's counters and recent history.
type Snapshot struct {
	// TotalExecutions counts every recorded execution.
	TotalExecutions int64 `json:"total_executions"`

	// ParallelExecutions counts executions that invoked more than one model.
	ParallelExecutions int64 `json:"parallel_executions"`

	// SingleExecutions counts executions that invoked at most one model.
	SingleExecutions int64 `json:"single_executions"`

	// AverageSpeedup is the running mean of reported speedups.
	AverageSpeedup float64 `json:"average_speedup"`

	// TotalTimeSavedMS accumulates the estimated time saved versus running
	// each execution's calls sequentially.
	TotalTimeSavedMS float64 `json:"total_time_saved_ms"`

	// Recent holds the most recent execution summaries, oldest first.
	Recent []ExecutionSummary `json:"recent"`
}

// Ledger is the process-wide statistics store. It is created once, mutated
// under a single mutex on every execution completion, and lives for the
// process lifetime. Record and Snapshot are mutually atomic: a snapshot never
// observes a counter update without its matching ring append.
type Ledger struct {
	mu sync.Mutex

	total    int64
	parallel int64
	single   int64

	avgSpeedup  float64
	timeSavedMS float64

	recent   []ExecutionSummary
	capacity int
}

// NewLedger creates a ledger with the given ring capacity.
// Non-positive capacities fall back to DefaultLedgerCapacity.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	return &Ledger{
		recent:   make([]ExecutionSummary, 0, capacity),
		capacity: capacity,
	}
}

// Record folds one completed execution into the counters and the ring.
func (l *Ledger) Record(prompt string, result *ExecutionResult) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	if result.ModelsExecuted > 1 {
		l.parallel++
	} else {
		l.single++
	}

	// Incremental mean: newMean = oldMean + (value - oldMean) / n.
	l.avgSpeedup += (result.Speedup - l.avgSpeedup) / float64(l.total)

	elapsedMS := result.Elapsed.Milliseconds()
	estimatedSequentialMS := elapsedMS * result.Speedup
	l.timeSavedMS += estimatedSequentialMS - elapsedMS

	l.recent = append(l.recent, ExecutionSummary{
		Timestamp: time.Now(),
		Prompt:    truncatePrompt(prompt, 100),
		Strategy:  result.Strategy,
		Models:    result.ModelsExecuted,
		Elapsed:   result.Elapsed,
		Speedup:   result.Speedup,
	})
	if len(l.recent) > l.capacity {
		l.recent = l.recent[len(l.recent)-l.capacity:]
	}
}

// Snapshot returns a consistent copy of all counters and the ring contents.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := make([]ExecutionSummary, len(l.recent))
	copy(recent, l.recent)

	return Snapshot{
		TotalExecutions:    l.total,
		ParallelExecutions: l.parallel,
		SingleExecutions:   l.single,
		AverageSpeedup:     l.avgSpeedup,
		TotalTimeSavedMS:   l.timeSavedMS,
		Recent:             recent,
	}
}

// truncatePrompt shortens a prompt for the ring without splitting the limit.
func truncatePrompt(prompt string, limit int) string {
	if len(prompt) <= limit {
		return prompt
	}
	return prompt[:limit]
}
