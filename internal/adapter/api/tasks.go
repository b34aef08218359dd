package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Strob0t/CodePulse/internal/domain/artifact"
	"github.com/Strob0t/CodePulse/internal/domain/event"
	"github.com/Strob0t/CodePulse/internal/domain/question"
	"github.com/Strob0t/CodePulse/internal/domain/task"
	"github.com/Strob0t/CodePulse/internal/domain/workspace"
)

// ListOptions are the common query parameters of list endpoints.
type ListOptions struct {
	Limit int
	Order string // "asc" | "desc"
	Type  string // artifacts only
}

func (o ListOptions) query() string {
	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Order != "" {
		q.Set("order", o.Order)
	}
	if o.Type != "" {
		q.Set("type", o.Type)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// CreateTask submits a new task for execution.
func (c *Client) CreateTask(ctx context.Context, req task.CreateRequest) (*task.CreateResponse, error) {
	data, err := c.Do(ctx, http.MethodPost, "/api/tasks", req)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	var resp task.CreateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse create response: %w", err)
	}
	return &resp, nil
}

// GetTask fetches the primary task snapshot.
func (c *Client) GetTask(ctx context.Context, taskID string) (*task.Snapshot, error) {
	data, err := c.Do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, err
	}

	s, ok := task.ParseSnapshot(data)
	if !ok {
		return nil, fmt.Errorf("task %s: malformed snapshot payload", taskID)
	}
	return s, nil
}

// GetState fetches the structured execution state. The state travels inside
// an envelope and may omit the task id.
func (c *Client) GetState(ctx context.Context, taskID string) (*task.Snapshot, error) {
	data, err := c.Do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(taskID)+"/state", nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		TaskID    string          `json:"task_id"`
		State     json.RawMessage `json:"state"`
		UpdatedAt string          `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parse state envelope: %w", err)
	}

	id := envelope.TaskID
	if id == "" {
		id = taskID
	}
	stateData := envelope.State
	if len(stateData) == 0 {
		stateData = data
	}

	s, ok := task.ParseStateSnapshot(id, stateData)
	if !ok {
		return nil, fmt.Errorf("task %s: malformed state payload", taskID)
	}
	return s, nil
}

// ListEvents fetches the task's event stream.
func (c *Client) ListEvents(ctx context.Context, taskID string, opts ListOptions) (*event.List, error) {
	data, err := c.Do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(taskID)+"/events"+opts.query(), nil)
	if err != nil {
		return nil, err
	}
	return event.ParseList(data)
}

// ListArtifacts fetches the task's artifacts.
func (c *Client) ListArtifacts(ctx context.Context, taskID string, opts ListOptions) (*artifact.List, error) {
	data, err := c.Do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(taskID)+"/artifacts"+opts.query(), nil)
	if err != nil {
		return nil, err
	}
	return artifact.ParseList(data)
}

// ListFiles fetches the task's workspace file index.
func (c *Client) ListFiles(ctx context.Context, taskID string, opts ListOptions) (*workspace.FileIndex, error) {
	data, err := c.Do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(taskID)+"/files"+opts.query(), nil)
	if err != nil {
		return nil, err
	}
	return workspace.ParseIndex(data)
}

// GetFile fetches one workspace file's content.
func (c *Client) GetFile(ctx context.Context, taskID, path string) (*workspace.FileContent, error) {
	data, err := c.Do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(taskID)+"/files/"+escapePath(path), nil)
	if err != nil {
		return nil, err
	}
	return workspace.ParseFile(data)
}

// ListQuestions fetches pending clarification questions.
func (c *Client) ListQuestions(ctx context.Context, taskID string) (*question.List, error) {
	data, err := c.Do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(taskID)+"/questions", nil)
	if err != nil {
		return nil, err
	}
	return question.ParseList(data)
}

// SubmitInput sends answers to a task waiting in needs_input.
func (c *Client) SubmitInput(ctx context.Context, taskID string, req question.InputRequest) error {
	_, err := c.Do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/input", req)
	return err
}

// Resume continues a paused or re-attached task.
func (c *Client) Resume(ctx context.Context, taskID string) error {
	_, err := c.Do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/resume", nil)
	return err
}

// Chat sends a free-form message to the running task.
func (c *Client) Chat(ctx context.Context, taskID, message string) error {
	_, err := c.Do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/chat",
		map[string]string{"message": message})
	return err
}

// Next advances a manually stepped task to its next stage.
func (c *Client) Next(ctx context.Context, taskID string) error {
	_, err := c.Do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/next", nil)
	return err
}

// RerunReview re-runs the review stage of a task.
func (c *Client) RerunReview(ctx context.Context, taskID string) error {
	_, err := c.Do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/rerun-review", nil)
	return err
}

// PRResponse is the result of a create-pr call.
type PRResponse struct {
	URL    string `json:"url"`
	Number int    `json:"number,omitempty"`
}

// CreatePR asks the server to open a pull request with the task's output.
func (c *Client) CreatePR(ctx context.Context, taskID string) (*PRResponse, error) {
	data, err := c.Do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/create-pr", nil)
	if err != nil {
		return nil, err
	}
	var resp PRResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse create-pr response: %w", err)
	}
	return &resp, nil
}

// DownloadURL returns the browser/download URL for the task's ZIP archive.
func (c *Client) DownloadURL(taskID string) string {
	return c.baseURL + "/api/tasks/" + url.PathEscape(taskID) + "/download.zip"
}

// GitExportURL returns the download URL for the task's git-export archive.
func (c *Client) GitExportURL(taskID string) string {
	return c.baseURL + "/api/tasks/" + url.PathEscape(taskID) + "/git-export.zip"
}

// UserTasks lists the most recent tasks for a user id.
func (c *Client) UserTasks(ctx context.Context, userID string, limit int) ([]task.Snapshot, error) {
	path := "/api/users/" + url.PathEscape(userID) + "/tasks"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	data, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Tasks []json.RawMessage `json:"tasks"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse user tasks: %w", err)
	}

	out := make([]task.Snapshot, 0, len(resp.Tasks))
	for _, raw := range resp.Tasks {
		if s, ok := task.ParseSnapshot(raw); ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Do(ctx, http.MethodGet, "/health", nil)
	return err
}

// escapePath escapes a workspace-relative path segment by segment, keeping
// the slashes.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}
