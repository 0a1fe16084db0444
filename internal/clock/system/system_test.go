package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockStampsRunsInUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	started := clk.Now()
	require.Equal(t, time.UTC, started.Location())
	require.WithinDuration(t, time.Now(), started, time.Second)

	finished := clk.Now()
	require.False(t, finished.Before(started), "run duration must not be negative")
	require.GreaterOrEqual(t, finished.Sub(started), time.Duration(0))
}
