package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "RUN_START"
	StageRunDone   Stage = "RUN_DONE"
	StageRunError  Stage = "RUN_ERROR"
	StageTaskStart Stage = "TASK_START"
	StageTaskDone  Stage = "TASK_DONE"
	StageTaskError Stage = "TASK_ERROR"
)

// Event captures a single step of an analysis run.
type Event struct {
	// RunID identifies the run the event belongs to.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Mode is the analysis mode of the run.
	Mode string
	// Site optionally scopes task events to a host label.
	Site string
	// URL is the task URL; empty for run events.
	URL string
	// Signals is the number of contributions a task committed, or the number
	// of distinct signals in a finished run.
	Signals int
	// Partial marks a run that finished without draining every task.
	Partial bool
	// Dur captures task or run latency.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// IsTask reports whether the event describes a single URL task.
func (e Event) IsTask() bool {
	switch e.Stage {
	case StageTaskStart, StageTaskDone, StageTaskError:
		return true
	default:
		return false
	}
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageTaskStart, StageTaskDone, StageTaskError:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Signals < 0 {
		return errors.New("signals must be >= 0")
	}
	return nil
}
