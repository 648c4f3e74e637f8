package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"manifestflow/internal/config"
	"manifestflow/internal/secrets"
	"manifestflow/internal/telemetry"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestBootstrap_MissingPipelineUsesStockDefinition(t *testing.T) {
	e, err := Bootstrap(Config{PipelineYml: filepath.Join(t.TempDir(), "absent.yml")})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	def := e.Definition()
	if def.Name != config.DefaultName {
		t.Fatalf("name = %q", def.Name)
	}
	if def.Parameters != config.ExampleParameters {
		t.Fatalf("parameters = %+v", def.Parameters)
	}
	if e.preflight != nil {
		t.Fatal("preflight enabled by default")
	}
}

func TestBootstrap_PipelineAndRuntime(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "runtime.yml", `
schema_version: v1
temporal:
  task_queue: imports
viz:
  filename: graph
  format: dot
`)
	p := writeFile(t, dir, "pipeline.yml", `
schema_version: v1
name: nightly
parameters:
  manifest_id: syn1
  synapse_folder: syn2
  project_name: p
  billing_group_name: b
  app_id: a/b/c
  volume_name: v
manifest:
  separator: tab
import:
  concurrency: 3
  isolate_failures: true
runtime: runtime.yml
`)
	e, err := Bootstrap(Config{PipelineYml: p})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if e.sep != '\t' {
		t.Fatalf("separator = %q", e.sep)
	}
	if e.rt.Temporal.TaskQueue != "imports" {
		t.Fatalf("task queue = %q", e.rt.Temporal.TaskQueue)
	}

	opts := e.options("r1")
	if opts.Pipeline != "nightly" || opts.RunID != "r1" || opts.Import.Concurrency != 3 || !opts.Import.Isolate {
		t.Fatalf("options = %+v", opts)
	}

	in := e.importInput()
	if in.Parameters.ManifestID != "syn1" || in.Separator != "tab" || in.Concurrency != 3 || !in.IsolateFailures {
		t.Fatalf("import input = %+v", in)
	}
	if in.Preflight {
		t.Fatal("preflight requested without being enabled")
	}
}

func TestBootstrap_RejectsBadSeparator(t *testing.T) {
	p := writeFile(t, t.TempDir(), "pipeline.yml", "manifest:\n  separator: \";\"\n")
	if _, err := Bootstrap(Config{PipelineYml: p}); err == nil {
		t.Fatal("want error for unsupported separator")
	}
}

func TestViz_WritesGraphFile(t *testing.T) {
	e, err := Bootstrap(Config{})
	if err != nil {
		t.Fatal(err)
	}
	e.rt.Viz.Filename = filepath.Join(t.TempDir(), "flow")
	e.rt.Viz.Format = "dot"

	name, err := e.Viz()
	if err != nil {
		t.Fatalf("Viz: %v", err)
	}
	if !strings.HasSuffix(name, "flow.dot") {
		t.Fatalf("file = %s", name)
	}
	raw, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "import_volume_file") {
		t.Fatalf("graph lacks import node:\n%s", raw)
	}
}

func TestRun_MissingTokensFailWithoutRemoteCalls(t *testing.T) {
	t.Setenv("MANIFESTFLOW__SYNAPSE__TOKEN_ENV", "ENGINE_TEST_SYNAPSE_UNSET")
	t.Setenv("MANIFESTFLOW__SEVENBRIDGES__TOKEN_ENV", "ENGINE_TEST_SB_UNSET")
	e, err := Bootstrap(Config{})
	if err != nil {
		t.Fatal(err)
	}
	before := testutil.ToFloat64(telemetry.Runs.WithLabelValues(e.def.Name, "failed"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = e.Run(ctx)
	if !errors.Is(err, secrets.ErrMissing) {
		t.Fatalf("err = %v, want ErrMissing", err)
	}
	if got := testutil.ToFloat64(telemetry.Runs.WithLabelValues(e.def.Name, "failed")); got != before+1 {
		t.Fatalf("failed runs = %v, want %v", got, before+1)
	}
}

func TestOpenSinks(t *testing.T) {
	def := config.DefaultPipeline()
	def.Sinks = []string{"stdout"}
	sinks, err := openSinks(def)
	if err != nil {
		t.Fatalf("openSinks: %v", err)
	}
	if len(sinks) != 1 {
		t.Fatalf("sinks = %d", len(sinks))
	}
	if err := sinks.Close(); err != nil {
		t.Fatal(err)
	}

	def.Sinks = []string{"carrier-pigeon"}
	if _, err := openSinks(def); err == nil {
		t.Fatal("unknown sink accepted")
	}
}
