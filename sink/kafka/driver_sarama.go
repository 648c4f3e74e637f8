package kafka

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"manifestflow/internal/logging"
	"manifestflow/sink"
)

type Config struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Version string   `yaml:"version"`
	Acks    int16    `yaml:"required_acks"` // 0,1,-1
}

// newProducer is replaced in tests by the sarama mock producer.
var newProducer = func(brokers []string, cfg *sarama.Config) (sarama.AsyncProducer, error) {
	return sarama.NewAsyncProducer(brokers, cfg)
}

type driver struct {
	cfg  Config
	p    sarama.AsyncProducer
	once sync.Once
	done chan struct{}
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config, got %T", c)
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return fmt.Errorf("kafka-sink: brokers and topic are required")
	}
	d.cfg = cfg

	sc := sarama.NewConfig()
	sc.ClientID = "manifestflow"
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Errors = true
	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return fmt.Errorf("kafka-sink: %w", err)
		}
		sc.Version = v
	}

	p, err := newProducer(cfg.Brokers, sc)
	if err != nil {
		return fmt.Errorf("kafka-sink: %w", err)
	}
	d.p = p
	d.done = make(chan struct{})
	go d.drainErrors()
	return nil
}

// drainErrors keeps the producer from blocking on undelivered events.
func (d *driver) drainErrors() {
	defer close(d.done)
	for perr := range d.p.Errors() {
		logging.L().Warn("kafka-sink: event not delivered", "topic", perr.Msg.Topic, "err", perr.Err)
	}
}

func (d *driver) Push(ev sink.Event) error {
	if d.p == nil {
		return fmt.Errorf("kafka-sink: not configured")
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	d.p.Input() <- &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Key:   sarama.StringEncoder(ev.RunID),
		Value: sarama.ByteEncoder(b),
	}
	return nil
}

func (d *driver) Close() error {
	d.once.Do(func() {
		if d.p == nil {
			return
		}
		d.p.AsyncClose()
		<-d.done
	})
	return nil
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
