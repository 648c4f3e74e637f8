// manifestflow/sink/stdout/driver.go
package stdout

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"manifestflow/sink"
)

/* ────────── public YAML config ────────── */
type Config struct {
	Pretty bool `yaml:"pretty"` // indent each event
	// Output defaults to os.Stdout.
	Output io.Writer `yaml:"-"`
}

/* ────────── driver ────────── */
type driver struct {
	mu  sync.Mutex // guards enc
	enc *json.Encoder
}

/* ────────── sink.Adapter ────────── */
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	out := c.Output
	if out == nil {
		out = os.Stdout
	}
	d.enc = json.NewEncoder(out)
	if c.Pretty {
		d.enc.SetIndent("", "  ")
	}
	return nil
}

func (d *driver) Push(ev sink.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enc == nil {
		return fmt.Errorf("stdout-sink: not configured")
	}
	return d.enc.Encode(ev)
}

func (d *driver) Close() error { return nil }

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
