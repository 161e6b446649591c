package engine

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordedResult(models int, elapsed time.Duration, speedup float64) *ExecutionResult {
	return &ExecutionResult{
		Strategy:       "parallel",
		ModelsExecuted: models,
		Elapsed:        Millis(elapsed),
		Speedup:        speedup,
		Success:        true,
	}
}

func TestLedger_Counters(t *testing.T) {
	l := NewLedger(DefaultLedgerCapacity)

	l.Record("multi", recordedResult(3, 500*time.Millisecond, 2.6))
	l.Record("single", recordedResult(1, 400*time.Millisecond, 1.0))
	l.Record("multi again", recordedResult(2, 600*time.Millisecond, 1.8))

	snap := l.Snapshot()
	assert.Equal(t, int64(3), snap.TotalExecutions)
	assert.Equal(t, int64(2), snap.ParallelExecutions)
	assert.Equal(t, int64(1), snap.SingleExecutions)
	assert.Equal(t, snap.TotalExecutions, snap.ParallelExecutions+snap.SingleExecutions)

	assert.InDelta(t, (2.6+1.0+1.8)/3, snap.AverageSpeedup, 1e-9)

	// Saved time: elapsed*speedup - elapsed per execution.
	wantSaved := 500*2.6 - 500 + (400*1.0 - 400) + (600*1.8 - 600)
	assert.InDelta(t, wantSaved, snap.TotalTimeSavedMS, 1e-6)
}

func TestLedger_RingIsBounded(t *testing.T) {
	l := NewLedger(10)

	for i := 0; i < 15; i++ {
		l.Record(fmt.Sprintf("prompt-%d", i), recordedResult(2, 100*time.Millisecond, 2.0))
	}

	snap := l.Snapshot()
	assert.Equal(t, int64(15), snap.TotalExecutions)
	require.Len(t, snap.Recent, 10)

	// Oldest entries evicted first; survivors are 5..14 in order.
	assert.Equal(t, "prompt-5", snap.Recent[0].Prompt)
	assert.Equal(t, "prompt-14", snap.Recent[9].Prompt)
}

func TestLedger_PromptTruncation(t *testing.T) {
	l := NewLedger(DefaultLedgerCapacity)

	long := strings.Repeat("x", 250)
	l.Record(long, recordedResult(1, 100*time.Millisecond, 1.0))

	snap := l.Snapshot()
	require.Len(t, snap.Recent, 1)
	assert.Len(t, snap.Recent[0].Prompt, 100)
}

func TestLedger_SnapshotIsACopy(t *testing.T) {
	l := NewLedger(DefaultLedgerCapacity)
	l.Record("first", recordedResult(1, 100*time.Millisecond, 1.0))

	snap := l.Snapshot()
	snap.Recent[0].Prompt = "mutated"

	assert.Equal(t, "first", l.Snapshot().Recent[0].Prompt)
}

func TestLedger_ConcurrentRecords(t *testing.T) {
	l := NewLedger(DefaultLedgerCapacity)

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				l.Record("concurrent", recordedResult(2, 100*time.Millisecond, 2.0))
			}
		}()
	}
	wg.Wait()

	snap := l.Snapshot()
	assert.Equal(t, int64(workers*perWorker), snap.TotalExecutions)
	assert.Equal(t, snap.TotalExecutions, snap.ParallelExecutions+snap.SingleExecutions)
	assert.Len(t, snap.Recent, DefaultLedgerCapacity)
	assert.InDelta(t, 2.0, snap.AverageSpeedup, 1e-9)
}

func TestNewLedger_NonPositiveCapacity(t *testing.T) {
	l := NewLedger(0)
	for i := 0; i < 20; i++ {
		l.Record("p", recordedResult(1, time.Millisecond, 1.0))
	}
	assert.Len(t, l.Snapshot().Recent, DefaultLedgerCapacity)
}
