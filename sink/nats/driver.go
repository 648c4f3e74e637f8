package nats

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"manifestflow/sink"
)

type Config struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// publisher is the part of *nats.Conn the sink uses.
type publisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

var connect = func(url string) (publisher, error) {
	return nats.Connect(url, nats.Name("manifestflow"), nats.MaxReconnects(10))
}

type driver struct {
	cfg  Config
	nc   publisher
	once sync.Once
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("nats-sink: want Config, got %T", c)
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		return fmt.Errorf("nats-sink: subject is required")
	}
	nc, err := connect(cfg.URL)
	if err != nil {
		return fmt.Errorf("nats-sink: %w", err)
	}
	d.cfg, d.nc = cfg, nc
	return nil
}

// Push publishes to <subject>.<status>, e.g. manifestflow.imports.failed.
func (d *driver) Push(ev sink.Event) error {
	if d.nc == nil {
		return fmt.Errorf("nats-sink: not configured")
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return d.nc.Publish(d.cfg.Subject+"."+ev.Status, b)
}

func (d *driver) Close() error {
	var err error
	d.once.Do(func() {
		if d.nc == nil {
			return
		}
		err = d.nc.FlushTimeout(5 * time.Second)
		d.nc.Close()
	})
	return err
}

func init() { sink.Register("nats", func() sink.Adapter { return &driver{} }) }
