package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageRunCanceled   Stage = "RUN_CANCELED"
	StageCategoryStart Stage = "CATEGORY_START"
	StageCategoryDone  Stage = "CATEGORY_DONE"
	StageCategoryError Stage = "CATEGORY_ERROR"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusCache StatusClass = "cache"
	StatusOther StatusClass = "other"
)

// Event captures one step of a sync run.
type Event struct {
	// RunID identifies the sync run. The runner stamps it on every event.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Category scopes category events.
	Category string
	URL      string
	// Percent is the share of categories finished before this event.
	Percent int
	// Label is the human readable step description, e.g. "Scanning Factions...".
	Label string
	// Entries counts catalog entries produced by a category, or categories
	// produced by a run.
	Entries int
	// Errors counts failed categories on RUN_DONE.
	Errors      int
	FromCache   bool
	StatusClass StatusClass
	Attempts    int
	Dur         time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunCanceled:
	case StageCategoryStart, StageCategoryDone, StageCategoryError:
		if e.Category == "" {
			return fmt.Errorf("%s requires category", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Percent < 0 || e.Percent > 100 {
		return errors.New("percent must be within 0..100")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the stage closes a run.
func (s Stage) Terminal() bool {
	return s == StageRunDone || s == StageRunCanceled
}

// ClassifyStatus groups HTTP status codes for fetch events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(evt Event) {
	if f != nil {
		f(evt)
	}
}

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})
