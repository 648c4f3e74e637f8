package sink

import (
	"errors"
	"testing"
)

type memSink struct {
	events []Event
	err    error
	closed int
}

func (m *memSink) Configure(any) error { return nil }

func (m *memSink) Push(ev Event) error {
	m.events = append(m.events, ev)
	return m.err
}

func (m *memSink) Close() error {
	m.closed++
	return m.err
}

func TestFanout_DeliversPastFailures(t *testing.T) {
	boom := errors.New("broker down")
	bad, good := &memSink{err: boom}, &memSink{}
	f := Fanout{bad, good}

	if err := f.Push(Event{Row: 1, Status: StatusImported}); !errors.Is(err, boom) {
		t.Fatalf("Push err = %v, want %v", err, boom)
	}
	if len(good.events) != 1 {
		t.Fatalf("healthy sink got %d events", len(good.events))
	}
	if err := f.Close(); !errors.Is(err, boom) {
		t.Fatalf("Close err = %v", err)
	}
	if bad.closed != 1 || good.closed != 1 {
		t.Fatal("every sink must be closed")
	}
}

func TestRegistry(t *testing.T) {
	Register("mem", func() Adapter { return &memSink{} })
	a, err := NewAdapter("mem")
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if _, ok := a.(*memSink); !ok {
		t.Fatalf("adapter = %T", a)
	}
	if _, err := NewAdapter("nope"); err == nil {
		t.Fatal("unknown sink accepted")
	}
}
