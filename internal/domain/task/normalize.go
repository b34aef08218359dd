package task

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// NormalizeProgress maps any reported progress value into [0, 1]. The server
// reports either a 0-1 fraction or a 0-100 percentage; values above 1 are
// treated as percentages. Non-finite values clamp to the nearest bound.
func NormalizeProgress(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v /= 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Snapshot payloads arrive loosely shaped: the task id may be under "task_id"
// or "id", the stage under "stage" or "current_stage", progress as a number
// or a numeric string, timestamps as RFC 3339 strings or unix seconds. Each
// field below documents its ordered fallback list once; ParseSnapshot is the
// only place those fallbacks live.

// rawSnapshot mirrors every key the server is known to use.
type rawSnapshot struct {
	TaskID       string          `json:"task_id"`
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Stage        string          `json:"stage"`
	CurrentStage string          `json:"current_stage"`
	Progress     json.RawMessage `json:"progress"`
	Error        string          `json:"error"`
	ErrorMessage string          `json:"error_message"`
	Detail       string          `json:"detail"`
	Result       json.RawMessage `json:"result"`
	CreatedAt    json.RawMessage `json:"created_at"`
	UpdatedAt    json.RawMessage `json:"updated_at"`
	CompletedAt  json.RawMessage `json:"completed_at"`
}

// ParseSnapshot decodes a snapshot-shaped payload and normalizes it.
// Returns false when the payload is not an object or names no task.
func ParseSnapshot(data []byte) (*Snapshot, bool) {
	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}

	id := firstNonEmpty(raw.TaskID, raw.ID)
	if id == "" {
		return nil, false
	}

	s := &Snapshot{
		TaskID:      id,
		Status:      raw.Status,
		Stage:       firstNonEmpty(raw.Stage, raw.CurrentStage),
		Progress:    NormalizeProgress(parseNumber(raw.Progress)),
		Error:       firstNonEmpty(raw.Error, raw.ErrorMessage, raw.Detail),
		Result:      raw.Result,
		CreatedAt:   parseInstant(raw.CreatedAt),
		UpdatedAt:   parseInstant(raw.UpdatedAt),
		CompletedAt: parseInstant(raw.CompletedAt),
	}
	return s, true
}

// ParseStateSnapshot decodes a structured-state payload that may omit the
// task id (the id travels on the envelope instead).
func ParseStateSnapshot(taskID string, data []byte) (*Snapshot, bool) {
	var raw rawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}
	s := &Snapshot{
		TaskID:      firstNonEmpty(raw.TaskID, raw.ID, taskID),
		Status:      raw.Status,
		Stage:       firstNonEmpty(raw.Stage, raw.CurrentStage),
		Progress:    NormalizeProgress(parseNumber(raw.Progress)),
		Error:       firstNonEmpty(raw.Error, raw.ErrorMessage, raw.Detail),
		Result:      raw.Result,
		CreatedAt:   parseInstant(raw.CreatedAt),
		UpdatedAt:   parseInstant(raw.UpdatedAt),
		CompletedAt: parseInstant(raw.CompletedAt),
	}
	if s.TaskID == "" {
		return nil, false
	}
	return s, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseNumber accepts a JSON number or a numeric string; anything else is 0.
func parseNumber(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

// parseInstant accepts an RFC 3339 string or unix seconds (integer or
// fractional). The zero time marks an absent or unreadable value.
func parseInstant(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return time.Time{}
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
			return t.UTC()
		}
		return time.Time{}
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil && f > 0 {
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return time.Time{}
}
