package orchestration

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"manifestflow/internal/config"
	"manifestflow/internal/logging"
)

// Dial connects to the Temporal frontend with the process logger.
func Dial(cfg config.Temporal) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    tlog.NewStructuredLogger(logging.L()),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to temporal at %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// NewWorker registers the workflow and acts on taskQueue.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(ManifestImportWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivity(acts)
	return w
}

// RunWorker polls until ctx is done.
func RunWorker(ctx context.Context, w worker.Worker) error {
	stop := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	return w.Run(stop)
}
