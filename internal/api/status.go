package api

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/prodrefs/internal/progress"
)

// Status is the JSON view of the current (or last) run.
type Status struct {
	RunID     string    `json:"run_id,omitempty"`
	State     string    `json:"state"`
	Keyword   string    `json:"keyword,omitempty"`
	Position  string    `json:"position,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Rows      int       `json:"rows"`
	Completed int       `json:"keywords_completed"`
	Total     int       `json:"keywords_total"`
	Blocked   bool      `json:"blocked"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Run states reported by the board.
const (
	StateIdle    = "idle"
	StateRunning = "running"
	StateDone    = "done"
	StateBlocked = "blocked"
)

// StatusBoard is a progress.Sink that keeps the latest run status for /v1/status.
type StatusBoard struct {
	mu     sync.RWMutex
	status Status
}

// NewStatusBoard returns an idle board.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{status: Status{State: StateIdle}}
}

// Consume folds events into the current status.
func (b *StatusBoard) Consume(_ context.Context, batch []progress.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, evt := range batch {
		b.apply(evt)
	}
	return nil
}

func (b *StatusBoard) apply(evt progress.Event) {
	st := &b.status
	if evt.Stage == progress.StageRunStart {
		*st = Status{RunID: evt.RunID, State: StateRunning, Total: evt.Total}
	} else if st.RunID != "" && evt.RunID != st.RunID {
		return
	}
	st.Stage = string(evt.Stage)
	st.UpdatedAt = evt.TS
	if evt.Keyword != "" {
		st.Keyword = evt.Keyword
		st.Position = evt.Label()
	}
	switch evt.Stage {
	case progress.StageKeywordDone:
		st.Completed++
		st.Rows += evt.Count
	case progress.StageBlocked:
		st.Blocked = true
		st.State = StateBlocked
		st.Note = evt.Note
	case progress.StageRunDone:
		if !st.Blocked {
			st.State = StateDone
		}
		if evt.Note != "" {
			st.Note = evt.Note
		}
	}
}

// Close implements progress.Sink.
func (b *StatusBoard) Close(context.Context) error {
	return nil
}

// Snapshot returns a copy of the current status.
func (b *StatusBoard) Snapshot() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

var _ progress.Sink = (*StatusBoard)(nil)
