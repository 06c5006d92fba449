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
	StageJobStart   Stage = "JOB_START"
	StagePageStored Stage = "PAGE_STORED"
	StageEmbedDone  Stage = "EMBED_DONE"
	StageJobDone    Stage = "JOB_DONE"
	StageJobError   Stage = "JOB_ERROR"
)

// Event captures a single milestone of scrape progress.
type Event struct {
	// JobID identifies the scrape job the milestone belongs to.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// URL is the optional page URL; it should not contain credentials.
	URL string
	// Pages carries the page count delta or total for the stage.
	Pages int64
	// Chunks carries the number of embedded chunks for the stage.
	Chunks int64
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StagePageStored, StageEmbedDone:
		if e.Pages < 0 || e.Chunks < 0 {
			return errors.New("counts must be >= 0")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}
