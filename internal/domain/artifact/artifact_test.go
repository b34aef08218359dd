package artifact

import "testing"

func TestParseList(t *testing.T) {
	in := `{"task_id":"t1","total":2,"artifacts":[
		{"id":"a1","type":"plan","produced_by":"planner"},
		{"id":"a2","type":"code_diff","produced_by":"coder"}]}`

	got, err := ParseList([]byte(in))
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if got.Total != 2 || len(got.Artifacts) != 2 {
		t.Fatalf("got total=%d len=%d", got.Total, len(got.Artifacts))
	}
	if got.Artifacts[0].ProducedBy != "planner" {
		t.Fatalf("produced_by = %q", got.Artifacts[0].ProducedBy)
	}
}

func TestParseListFallbacks(t *testing.T) {
	got, err := ParseList([]byte(`{"task_id":"t1","items":[{"id":"a1","type":"plan"}]}`))
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	if got.Total != 1 || len(got.Artifacts) != 1 {
		t.Fatalf("got total=%d len=%d, want 1/1", got.Total, len(got.Artifacts))
	}
}

func TestKeys(t *testing.T) {
	l := &List{Artifacts: []Artifact{
		{ID: "a1"},
		{Type: "plan", CreatedAt: "ts"},
	}}
	keys := l.Keys()
	if keys[0] != "a1" || keys[1] != "plan@ts" {
		t.Fatalf("Keys = %v", keys)
	}
}
