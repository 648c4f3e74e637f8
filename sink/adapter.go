package sink

import (
	"fmt"
	"time"
)

const (
	StatusImported = "imported"
	StatusFailed   = "failed"
)

// Event describes the outcome of one manifest row.
type Event struct {
	ID       string `json:"id"`
	RunID    string `json:"run_id"`
	Pipeline string `json:"pipeline"`
	Row      int    `json:"row"`

	S3URI          string `json:"s3_uri"`
	VolumePath     string `json:"volume_path"`
	ProjectPath    string `json:"project_path"`
	ImportedFileID string `json:"imported_file_id,omitempty"`

	Status string    `json:"status"`
	Kind   string    `json:"kind,omitempty"`
	Error  string    `json:"error,omitempty"`
	Time   time.Time `json:"time"`
}

// Adapter is the common behaviour every sink exposes.
type Adapter interface {
	Configure(any) error // driver-specific YAML ⇒ struct
	Push(Event) error    // deliver one event
	Close() error        // idempotent
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}

// Fanout pushes every event to all sinks and keeps going past failures.
type Fanout []Adapter

func (f Fanout) Push(ev Event) error {
	var first error
	for _, s := range f {
		if err := s.Push(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f Fanout) Close() error {
	var first error
	for _, s := range f {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
