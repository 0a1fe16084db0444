package analysis

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTableConcurrentIncrements ensures no update is lost under contention.
func TestTableConcurrentIncrements(t *testing.T) {
	t.Parallel()

	table := NewTable()
	const (
		workers = 16
		perWork = 500
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWork; i++ {
				table.Increment("encryption")
				if rand.IntN(2) == 0 {
					table.Increment(fmt.Sprintf("signal-%d", i%7))
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, workers*perWork, table.Snapshot()["encryption"])
}

// TestTableResetClearsPriorRun verifies no residual entries survive a reset.
func TestTableResetClearsPriorRun(t *testing.T) {
	t.Parallel()

	table := NewTable()
	table.Increment("old")
	table.Increment("shared")
	table.Seal()

	table.Reset()
	require.False(t, table.Sealed())
	require.True(t, table.Increment("shared"))
	require.True(t, table.Increment("new"))

	require.Equal(t, map[string]int{"shared": 1, "new": 1}, table.Snapshot())
}

// TestTableSealRejectsIncrements checks that a sealed table is frozen.
func TestTableSealRejectsIncrements(t *testing.T) {
	t.Parallel()

	table := NewTable()
	require.True(t, table.Increment("a"))
	table.Seal()
	require.False(t, table.Increment("a"))
	require.False(t, table.Increment("b"))
	require.Equal(t, map[string]int{"a": 1}, table.Snapshot())
	require.Equal(t, 1, table.Len())
}

// TestTableIgnoresEmptySignal ensures blank keys never enter the table.
func TestTableIgnoresEmptySignal(t *testing.T) {
	t.Parallel()

	table := NewTable()
	require.False(t, table.Increment(""))
	require.Zero(t, table.Len())
}

// TestTableSnapshotIsCopy makes sure callers cannot mutate the table through a snapshot.
func TestTableSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	table := NewTable()
	table.Increment("x")
	snap := table.Snapshot()
	snap["x"] = 42
	require.Equal(t, 1, table.Snapshot()["x"])
}

// TestTallyCommit verifies buffered contributions land in the target table.
func TestTallyCommit(t *testing.T) {
	t.Parallel()

	var tally Tally
	tally.Increment("intro")
	tally.Increment("intro")
	tally.Increment("")
	tally.Increment("method")
	require.Equal(t, 3, tally.Len())

	table := NewTable()
	require.Equal(t, 3, tally.CommitTo(table))
	require.Equal(t, map[string]int{"intro": 2, "method": 1}, table.Snapshot())

	table.Seal()
	require.Zero(t, tally.CommitTo(table))
}
