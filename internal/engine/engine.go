package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"manifestflow/internal/config"
	"manifestflow/internal/flow"
	"manifestflow/internal/logging"
	"manifestflow/internal/manifest"
	"manifestflow/internal/orchestration"
	"manifestflow/internal/pipeline"
	"manifestflow/internal/platform/sevenbridges"
	"manifestflow/internal/platform/synapse"
	"manifestflow/internal/preflight"
	"manifestflow/internal/spec"
	"manifestflow/internal/telemetry"
	"manifestflow/internal/transport"
)

type Engine struct {
	def spec.File
	rt  config.Runtime
	sep rune

	synapse      *synapse.Client
	sevenBridges *sevenbridges.Client
	preflight    *preflight.Checker
}

/*──────── run ───────*/

// Run executes the pipeline once in process.
func (e *Engine) Run(ctx context.Context) (*flow.Result, error) {
	runID := uuid.NewString()
	log := logging.L().With("pipeline", e.def.Name, "run_id", runID)

	sinks, err := openSinks(e.def)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Warn("closing sinks", "err", err)
		}
	}()

	telemetry.Expose(ctx, e.rt.Telemetry.MetricsPort)

	g := flow.Build(e.def.Parameters, e.deps(sinks), e.options(runID))
	runner := pipeline.NewRunner(g)
	runner.Subscribe(observe(e.def.Name, log))

	log.Info("run started", "manifest_id", e.def.Parameters.ManifestID, "project", e.def.Parameters.ProjectName)
	start := time.Now()
	res, err := runner.Run(ctx)
	out := flow.Collect(res)

	switch {
	case err == nil:
		telemetry.Runs.WithLabelValues(e.def.Name, "succeeded").Inc()
		log.Info("run finished", "file_id", out.FileID, "rows", rowCount(out.Output),
			"failed_rows", len(out.Failures), "elapsed", time.Since(start))
	case errors.Is(err, context.Canceled):
		telemetry.Runs.WithLabelValues(e.def.Name, "canceled").Inc()
		log.Warn("run canceled", "elapsed", time.Since(start))
	default:
		telemetry.Runs.WithLabelValues(e.def.Name, "failed").Inc()
		log.Error("run failed", "err", err, "elapsed", time.Since(start))
	}
	return out, err
}

func observe(name string, log *slog.Logger) func(pipeline.Event) {
	return func(ev pipeline.Event) {
		if ev.State == pipeline.Started {
			log.Debug("node started", "node", ev.Node)
			return
		}
		telemetry.NodeSeconds.WithLabelValues(name, ev.Node, string(ev.State)).Observe(ev.Duration.Seconds())
		switch ev.State {
		case pipeline.Failed:
			log.Warn("node failed", "node", ev.Node, "err", ev.Err, "elapsed", ev.Duration)
		case pipeline.Skipped:
			log.Debug("node skipped", "node", ev.Node)
		default:
			log.Debug("node finished", "node", ev.Node, "elapsed", ev.Duration)
		}
	}
}

func rowCount(ds *manifest.Dataset) int {
	if ds == nil {
		return 0
	}
	return ds.Len()
}

/*──────── viz ───────*/

// Viz renders the pipeline graph to <viz.filename>.<viz.format> and returns
// the file name.
func (e *Engine) Viz() (string, error) {
	name := fmt.Sprintf("%s.%s", e.rt.Viz.Filename, e.rt.Viz.Format)
	f, err := os.Create(name)
	if err != nil {
		return "", err
	}
	g := flow.Build(e.def.Parameters, e.deps(nil), e.options(""))
	if err := pipeline.Render(g, e.rt.Viz.Format, f); err != nil {
		f.Close()
		return "", err
	}
	return name, f.Close()
}

/*──────── register ───────*/

// Register publishes the pipeline as a Temporal schedule named after it.
func (e *Engine) Register(ctx context.Context) error {
	c, err := orchestration.Dial(e.rt.Temporal)
	if err != nil {
		return err
	}
	defer c.Close()
	return orchestration.Register(ctx, c.ScheduleClient(), e.def.Name, e.rt.Temporal.TaskQueue, e.importInput())
}

func (e *Engine) importInput() orchestration.ImportInput {
	return orchestration.ImportInput{
		Pipeline:        e.def.Name,
		Parameters:      e.def.Parameters,
		Separator:       e.def.Manifest.Separator,
		OutputName:      e.def.Manifest.OutputName,
		URIPrefix:       e.def.Transform.URIPrefix,
		Namespace:       e.def.Transform.Namespace,
		Concurrency:     e.def.Import.Concurrency,
		RowTimeout:      e.def.Import.Timeout,
		IsolateFailures: e.def.Import.IsolateFailures,
		Preflight:       e.preflight != nil,
	}
}

/*──────── worker ───────*/

// Worker executes scheduled runs until ctx is done, reporting health over
// gRPC and metrics over HTTP.
func (e *Engine) Worker(ctx context.Context) error {
	sinks, err := openSinks(e.def)
	if err != nil {
		return err
	}
	defer sinks.Close()

	acts, err := orchestration.NewActivities(e.deps(sinks), e.rt.Synapse.TokenEnv, e.rt.SevenBridges.TokenEnv)
	if err != nil {
		return err
	}

	srv, err := transport.StartServer(e.rt.Telemetry.HealthPort)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	go func() {
		if err := srv.Serve(); err != nil {
			logging.L().Error("health server stopped", "err", err)
		}
	}()
	defer srv.Stop()

	telemetry.Expose(ctx, e.rt.Telemetry.MetricsPort)

	c, err := orchestration.Dial(e.rt.Temporal)
	if err != nil {
		return err
	}
	defer c.Close()

	w := orchestration.NewWorker(c, e.rt.Temporal.TaskQueue, acts)
	srv.SetServing(true)
	logging.L().Info("worker started", "task_queue", e.rt.Temporal.TaskQueue, "health", srv.Addr().String())
	err = orchestration.RunWorker(ctx, w)
	srv.SetServing(false)
	return err
}
