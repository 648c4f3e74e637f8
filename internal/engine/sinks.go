package engine

import (
	"fmt"

	"manifestflow/internal/spec"
	"manifestflow/sink"
	"manifestflow/sink/kafka"
	"manifestflow/sink/nats"
	"manifestflow/sink/stdout"
)

// openSinks configures every sink the pipeline lists. On error the sinks
// opened so far are closed.
func openSinks(def spec.File) (sink.Fanout, error) {
	var out sink.Fanout
	for _, name := range def.Sinks {
		a, err := sink.NewAdapter(name)
		if err != nil {
			out.Close()
			return nil, err
		}
		if err := a.Configure(sinkConfig(def, name)); err != nil {
			out.Close()
			return nil, fmt.Errorf("sink %s: %w", name, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func sinkConfig(def spec.File, name string) any {
	c := def.SinkConfigs
	switch name {
	case "kafka":
		return kafka.Config{Brokers: c.Kafka.Brokers, Topic: c.Kafka.Topic, Version: c.Kafka.Version, Acks: -1}
	case "nats":
		return nats.Config{URL: c.NATS.URL, Subject: c.NATS.Subject}
	case "stdout":
		return stdout.Config{Pretty: c.Stdout.Pretty}
	}
	return nil
}
