package scheduler

import (
	"strconv"
	"sync/atomic"
	"time"
)

// sequence numbers runs when no ID generator is configured.
type sequence struct {
	n atomic.Uint64
}

func (s *sequence) NewID() (string, error) {
	return "run-" + strconv.FormatUint(s.n.Add(1), 10), nil
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }
