// Package artifact defines the task artifact payload family.
package artifact

import (
	"encoding/json"

	"github.com/Strob0t/CodePulse/internal/domain/event"
)

// Artifact is one output produced by a task (plan, diff, report, ...).
type Artifact struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	ProducedBy string          `json:"produced_by,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  string          `json:"created_at,omitempty"`
}

// Key returns the identity key used for dedup signatures.
func (a *Artifact) Key() string {
	if a.ID != "" && a.ID != "None" {
		return a.ID
	}
	return a.Type + "@" + a.CreatedAt
}

// List is the normalized result of one artifacts fetch.
type List struct {
	TaskID    string     `json:"task_id"`
	Total     int        `json:"total"`
	Artifacts []Artifact `json:"artifacts"`
}

type listPayload struct {
	TaskID    string          `json:"task_id"`
	Total     json.RawMessage `json:"total"`
	Count     json.RawMessage `json:"count"`
	Artifacts []Artifact      `json:"artifacts"`
	Items     []Artifact      `json:"items"`
}

// ParseList decodes an artifacts response. Total fallback order matches the
// events family: "total", "count", item array length.
func ParseList(data []byte) (*List, error) {
	var raw listPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	items := raw.Artifacts
	if items == nil {
		items = raw.Items
	}
	if items == nil {
		items = []Artifact{}
	}

	return &List{
		TaskID:    raw.TaskID,
		Total:     event.CoalesceTotal(len(items), raw.Total, raw.Count),
		Artifacts: items,
	}, nil
}

// Keys returns the ordered identity keys of the list, for signatures.
func (l *List) Keys() []string {
	keys := make([]string, len(l.Artifacts))
	for i := range l.Artifacts {
		keys[i] = l.Artifacts[i].Key()
	}
	return keys
}
