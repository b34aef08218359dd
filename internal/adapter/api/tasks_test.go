package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Strob0t/CodePulse/internal/adapter/api"
	"github.com/Strob0t/CodePulse/internal/domain/task"
)

func TestGetTaskParsesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks/t1" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"task_id":"t1","status":"running","progress":55,"current_stage":"coding"}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, false)
	s, err := client.GetTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if s.TaskID != "t1" || s.Status != "running" || s.Stage != "coding" {
		t.Errorf("snapshot = %+v", s)
	}
	if s.Progress != 0.55 {
		t.Errorf("progress = %v, want 0.55", s.Progress)
	}
}

func TestGetStateUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"task_id":"t1","state":{"status":"reviewing","progress":0.8},"updated_at":"2026-08-25T10:00:00Z"}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, false)
	s, err := client.GetState(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if s.TaskID != "t1" {
		t.Errorf("task id = %q, want fallback from envelope", s.TaskID)
	}
	if s.Status != "reviewing" || s.Progress != 0.8 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestGetStateWithoutEnvelope(t *testing.T) {
	// Some deployments return the state object bare.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"planning","progress":0.1}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, false)
	s, err := client.GetState(context.Background(), "t9")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if s.TaskID != "t9" || s.Status != "planning" {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestListEventsQueryAndParse(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"task_id":"t1","total":2,"events":[{"id":"e1","type":"log"},{"id":"e2","type":"log"}]}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, false)
	list, err := client.ListEvents(context.Background(), "t1", api.ListOptions{Limit: 50, Order: "asc"})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if gotQuery != "limit=50&order=asc" {
		t.Errorf("query = %q", gotQuery)
	}
	if list.Total != 2 || len(list.Events) != 2 {
		t.Errorf("list = %+v", list)
	}
}

func TestGetFileEscapesPathSegments(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"path":"src/a b.go","content":"package a"}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, false)
	f, err := client.GetFile(context.Background(), "t1", "src/a b.go")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if gotPath != "/api/tasks/t1/files/src/a%20b.go" {
		t.Errorf("escaped path = %q", gotPath)
	}
	if f.Content != "package a" || f.Size != 9 {
		t.Errorf("file = %+v", f)
	}
}

func TestUserTasksSkipsMalformedEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users/u1/tasks" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"tasks":[{"task_id":"t1","status":"completed"},"garbage",{"task_id":"t2","status":"running"}]}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, false)
	tasks, err := client.UserTasks(context.Background(), "u1", 0)
	if err != nil {
		t.Fatalf("UserTasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0].TaskID != "t1" || tasks[1].TaskID != "t2" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestCreateTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tasks" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"task_id":"t-new","status":"queued"}`))
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL, false)
	resp, err := client.CreateTask(context.Background(), task.CreateRequest{Description: "add tests", UserID: "u1"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if resp.TaskID != "t-new" || resp.Status != "queued" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestDownloadURLs(t *testing.T) {
	client, _ := newTestClient(t, "http://api.example:8000", false)
	if got := client.DownloadURL("t1"); got != "http://api.example:8000/api/tasks/t1/download.zip" {
		t.Errorf("download url = %q", got)
	}
	if got := client.GitExportURL("t1"); got != "http://api.example:8000/api/tasks/t1/git-export.zip" {
		t.Errorf("git export url = %q", got)
	}
}
