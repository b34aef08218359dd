// Package event defines the task event payload family.
package event

import (
	"encoding/json"
	"strconv"
)

// Event is one structured event emitted by a running task.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
}

// Key returns the identity key used for dedup signatures. Events carry a
// server-assigned id; older servers omit it, so type+timestamp stands in.
func (e *Event) Key() string {
	if e.ID != "" && e.ID != "None" {
		return e.ID
	}
	return e.Type + "@" + e.CreatedAt
}

// List is the normalized result of one events fetch.
type List struct {
	TaskID string  `json:"task_id"`
	Total  int     `json:"total"`
	Events []Event `json:"events"`
}

// listPayload mirrors every shape the server is known to use for an events
// response. The item list may appear under "events" or "items"; the count
// under "total", "count", or not at all.
type listPayload struct {
	TaskID string          `json:"task_id"`
	Total  json.RawMessage `json:"total"`
	Count  json.RawMessage `json:"count"`
	Events []Event         `json:"events"`
	Items  []Event         `json:"items"`
}

// ParseList decodes an events response. Fallback order for the total:
// "total", then "count", then the item array length.
func ParseList(data []byte) (*List, error) {
	var raw listPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	items := raw.Events
	if items == nil {
		items = raw.Items
	}
	if items == nil {
		items = []Event{}
	}

	return &List{
		TaskID: raw.TaskID,
		Total:  CoalesceTotal(len(items), raw.Total, raw.Count),
		Events: items,
	}, nil
}

// CoalesceTotal resolves a count from the ordered candidate fields, falling
// back to the item count when none parses as a non-negative number.
func CoalesceTotal(itemCount int, candidates ...json.RawMessage) int {
	for _, c := range candidates {
		if n, ok := parseCount(c); ok {
			return n
		}
	}
	return itemCount
}

func parseCount(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil && n >= 0 {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			return n, true
		}
	}
	return 0, false
}

// Keys returns the ordered identity keys of the list, for signatures.
func (l *List) Keys() []string {
	keys := make([]string, len(l.Events))
	for i := range l.Events {
		keys[i] = l.Events[i].Key()
	}
	return keys
}
