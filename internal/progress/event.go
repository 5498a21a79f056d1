// Package progress defines the events emitted while a run works through its keywords.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageKeywordStart Stage = "KEYWORD_START"
	StageCandidates   Stage = "CANDIDATES"
	StageDetail       Stage = "DETAIL"
	StageKeywordDone  Stage = "KEYWORD_DONE"
	StageBlocked      Stage = "BLOCKED"
	StageRunDone      Stage = "RUN_DONE"
)

// Event captures a single step of run progress.
type Event struct {
	// RunID identifies the run (a UUID string).
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Keyword scopes keyword-level stages.
	Keyword string
	// Index is the 1-based keyword position; Total is the keyword count.
	Index int
	Total int
	// Count carries the stage's quantity: candidates found, details resolved
	// or rows produced.
	Count int
	// Dur is set on KEYWORD_DONE and RUN_DONE.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
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
	case StageRunStart, StageRunDone:
	case StageKeywordStart, StageCandidates, StageDetail, StageKeywordDone, StageBlocked:
		if e.Keyword == "" {
			return fmt.Errorf("%s requires keyword", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Index < 0 || e.Count < 0 || (e.Total > 0 && e.Index > e.Total) {
		return fmt.Errorf("invalid position %d/%d count %d", e.Index, e.Total, e.Count)
	}
	return nil
}

// Label renders the position as "3/10" for status output.
func (e Event) Label() string {
	if e.Total == 0 {
		return ""
	}
	return fmt.Sprintf("%d/%d", e.Index, e.Total)
}
