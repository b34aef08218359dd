// Package question defines clarification questions a task may raise while in
// the needs_input state, and the answers sent back.
package question

import "encoding/json"

// Question is one clarification request from the running task.
type Question struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Kind     string   `json:"kind,omitempty"` // "free_text" | "choice"
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required,omitempty"`
}

// List is the normalized result of one questions fetch.
type List struct {
	TaskID    string     `json:"task_id"`
	Questions []Question `json:"questions"`
}

type listPayload struct {
	TaskID    string     `json:"task_id"`
	Questions []Question `json:"questions"`
	Items     []Question `json:"items"`
}

// ParseList decodes a questions response; the list may appear under
// "questions" or "items".
func ParseList(data []byte) (*List, error) {
	var raw listPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	items := raw.Questions
	if items == nil {
		items = raw.Items
	}
	if items == nil {
		items = []Question{}
	}
	return &List{TaskID: raw.TaskID, Questions: items}, nil
}

// Answer is one response to a clarification question.
type Answer struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
}

// InputRequest is the body for submitting answers back to the task.
type InputRequest struct {
	Answers []Answer `json:"answers"`
}
