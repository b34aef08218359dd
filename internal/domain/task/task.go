// Package task defines the task snapshot domain entity and terminal detection.
package task

import (
	"encoding/json"
	"strings"
	"time"
)

// Source identifies which channel a snapshot arrived on.
type Source string

const (
	SourcePoll Source = "poll"
	SourcePush Source = "push"
)

// Snapshot is the server's last-reported view of one task at one instant.
// Status is an open string: the server owns the label set, so it is never
// mapped onto a closed enum and is only compared case-insensitively.
type Snapshot struct {
	TaskID      string          `json:"task_id"`
	Status      string          `json:"status"`
	Stage       string          `json:"stage,omitempty"`
	Progress    float64         `json:"progress"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at,omitzero"`
	UpdatedAt   time.Time       `json:"updated_at,omitzero"`
	CompletedAt time.Time       `json:"completed_at,omitzero"`
}

// Elapsed returns the duration between creation and completion, falling back
// to the last update when the task has not completed.
func (s *Snapshot) Elapsed() time.Duration {
	if s.CreatedAt.IsZero() {
		return 0
	}
	end := s.CompletedAt
	if end.IsZero() {
		end = s.UpdatedAt
	}
	if end.IsZero() || end.Before(s.CreatedAt) {
		return 0
	}
	return end.Sub(s.CreatedAt)
}

// DefaultTerminalStatuses is the known terminal label subset. Matching is
// case-insensitive.
var DefaultTerminalStatuses = []string{
	"completed", "failed", "error", "cancelled", "timeout",
}

const completedStage = "completed"

// TerminalDetector decides whether a snapshot is terminal. The zero value is
// not usable; construct with NewTerminalDetector.
type TerminalDetector struct {
	statuses map[string]struct{}
	// stageRule enables the redundant stage/progress condition: terminal when
	// progress is 1.0 and the stage equals "completed", independent of
	// status. Some servers signal completion only through stage and progress.
	stageRule bool
}

// NewTerminalDetector builds a detector over the given terminal status
// labels. Passing nil uses DefaultTerminalStatuses. The stage/progress rule
// is on by default; disable it with DisableStageRule when intermediate
// sub-stages may legitimately be named "completed".
func NewTerminalDetector(statuses []string) *TerminalDetector {
	if statuses == nil {
		statuses = DefaultTerminalStatuses
	}
	set := make(map[string]struct{}, len(statuses))
	for _, s := range statuses {
		set[strings.ToLower(s)] = struct{}{}
	}
	return &TerminalDetector{statuses: set, stageRule: true}
}

// DisableStageRule turns off the stage/progress completion condition.
func (d *TerminalDetector) DisableStageRule() *TerminalDetector {
	d.stageRule = false
	return d
}

// IsTerminal reports whether no further updates are expected for the
// snapshot. The two conditions are intentionally OR-ed.
func (d *TerminalDetector) IsTerminal(s *Snapshot) bool {
	if _, ok := d.statuses[strings.ToLower(s.Status)]; ok {
		return true
	}
	if d.stageRule && s.Progress >= 1.0 && strings.EqualFold(s.Stage, completedStage) {
		return true
	}
	return false
}

// CreateRequest holds the fields needed to start a new task.
type CreateRequest struct {
	Description  string `json:"description"`
	UserID       string `json:"user_id,omitempty"`
	CodexVersion string `json:"codex_version,omitempty"`
}

// CreateResponse is the server's acknowledgement of a new task.
type CreateResponse struct {
	TaskID        string  `json:"task_id"`
	Status        string  `json:"status"`
	Message       string  `json:"message,omitempty"`
	Progress      float64 `json:"progress"`
	EstimatedTime int     `json:"estimated_time,omitempty"`
}
