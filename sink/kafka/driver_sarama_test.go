package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"manifestflow/sink"
)

func TestDriver_PublishesEvents(t *testing.T) {
	var mp *mocks.AsyncProducer
	newProducer = func(_ []string, cfg *sarama.Config) (sarama.AsyncProducer, error) {
		mp = mocks.NewAsyncProducer(t, cfg)
		mp.ExpectInputWithCheckerFunctionAndSucceed(func(b []byte) error {
			var ev sink.Event
			if err := json.Unmarshal(b, &ev); err != nil {
				return err
			}
			if ev.ImportedFileID != "file-1" {
				t.Errorf("unexpected event %+v", ev)
			}
			return nil
		})
		mp.ExpectInputAndFail(sarama.ErrOutOfBrokers)
		return mp, nil
	}
	t.Cleanup(func() {
		newProducer = func(brokers []string, cfg *sarama.Config) (sarama.AsyncProducer, error) {
			return sarama.NewAsyncProducer(brokers, cfg)
		}
	})

	a, err := sink.NewAdapter("kafka")
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if err := a.Configure(Config{Brokers: []string{"k:9092"}, Topic: "imports", Version: "3.6.0"}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := a.Push(sink.Event{RunID: "r1", ImportedFileID: "file-1", Status: sink.StatusImported}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := a.Push(sink.Event{RunID: "r1", Status: sink.StatusFailed}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// second close is a no-op
	if err := a.Close(); err != nil {
		t.Fatalf("Close again: %v", err)
	}
}

func TestDriver_ConfigureValidates(t *testing.T) {
	d := &driver{}
	if err := d.Configure(Config{Topic: "x"}); err == nil {
		t.Fatal("expected error without brokers")
	}
	if err := d.Configure("nope"); err == nil {
		t.Fatal("expected error for wrong config type")
	}
	if err := d.Push(sink.Event{}); err == nil {
		t.Fatal("push on unconfigured sink should fail")
	}
}
