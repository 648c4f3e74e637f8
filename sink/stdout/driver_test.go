package stdout

import (
	"bytes"
	"encoding/json"
	"testing"

	"manifestflow/sink"
)

func TestDriver_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	a, err := sink.NewAdapter("stdout")
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if err := a.Configure(Config{Output: &buf}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := a.Push(sink.Event{Row: i, Status: sink.StatusImported}); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	dec := json.NewDecoder(&buf)
	for i := 0; i < 2; i++ {
		var ev sink.Event
		if err := dec.Decode(&ev); err != nil {
			t.Fatalf("decode %d: %v", i, err)
		}
		if ev.Row != i || ev.Status != sink.StatusImported {
			t.Fatalf("event %d = %+v", i, ev)
		}
	}
}

func TestDriver_RejectsWrongConfig(t *testing.T) {
	d := &driver{}
	if err := d.Configure(map[string]any{}); err == nil {
		t.Fatal("expected error")
	}
}
