// Package flow wires the manifest import: read the manifest from Synapse,
// resolve the Seven Bridges project, app and volume, import every row from
// the volume into the project and store the resulting manifest back in
// Synapse.
package flow

import (
	"context"

	"manifestflow/internal/manifest"
	"manifestflow/internal/pipeline"
	"manifestflow/internal/platform/sevenbridges"
	"manifestflow/internal/platform/synapse"
	"manifestflow/internal/spec"
	"manifestflow/sink"
)

// Node names, in wiring order.
const (
	NodeSynapseToken = "synapse_token"
	NodeSBToken      = "sb_token"
	NodeSynapseArgs  = "synapse_args"
	NodeSBArgs       = "sb_args"
	NodeManifest     = "manifest"
	NodeProjectID    = "project_id"
	NodeAppID        = "app_id"
	NodeVolumeID     = "volume_id"
	NodePrepare      = "prepare_file_imports"
	NodePreflight    = "preflight"
	NodeImport       = "import_volume_file"
	NodeConcat       = "concat_rows"
	NodeStore        = "store_dataframe"
)

type Synapse interface {
	GetDataFrame(ctx context.Context, args synapse.ClientArgs, synapseID string, sep rune) (*manifest.Dataset, error)
	StoreDataFrame(ctx context.Context, args synapse.ClientArgs, ds *manifest.Dataset, name, parentID string, sep rune) (string, error)
}

type SevenBridges interface {
	GetProjectID(ctx context.Context, args sevenbridges.ClientArgs, projectName, billingGroupName string) (string, error)
	GetCopiedAppID(ctx context.Context, args sevenbridges.ClientArgs, projectID, sourceAppID string) (string, error)
	GetVolumeID(ctx context.Context, args sevenbridges.ClientArgs, volumeName string) (string, error)
	ImportVolumeFile(ctx context.Context, args sevenbridges.ClientArgs, projectID, volumeID, volumePath, projectPath string) (string, error)
}

type Preflight interface {
	Check(ctx context.Context, rows []manifest.Row) error
}

type EventSink interface {
	Push(sink.Event) error
}

type Deps struct {
	Synapse      Synapse
	SevenBridges SevenBridges
	// Preflight and Events are optional.
	Preflight Preflight
	Events    EventSink
}

type Options struct {
	Pipeline string
	RunID    string

	SynapseTokenEnv      string
	SevenBridgesTokenEnv string

	// Separator of the input manifest; the output is always comma separated.
	Separator  rune
	OutputName string
	Transform  manifest.Transform
	Import     pipeline.MapOptions
}

// DefaultOptions mirrors the stock pipeline definition.
func DefaultOptions() Options {
	return Options{
		Pipeline:             "demo",
		SynapseTokenEnv:      synapse.TokenEnv,
		SevenBridgesTokenEnv: sevenbridges.TokenEnv,
		Separator:            manifest.Comma,
		OutputName:           "sbg_manifest.csv",
		Transform:            manifest.DefaultTransform,
		Import:               pipeline.MapOptions{Concurrency: 8},
	}
}

// RowFailure records a row left out of the output manifest.
type RowFailure struct {
	Row manifest.Row
	Err error
}

type imported struct {
	Rows     []manifest.Row
	Failures []RowFailure
}

// Result summarizes a finished run.
type Result struct {
	Output   *manifest.Dataset
	FileID   string
	Failures []RowFailure
}

// Collect extracts the run summary from the runner results. Missing nodes
// leave their fields zero.
func Collect(res pipeline.Results) *Result {
	out := &Result{}
	if ds, ok := res[NodeConcat].(*manifest.Dataset); ok {
		out.Output = ds
	}
	if id, ok := res[NodeStore].(string); ok {
		out.FileID = id
	}
	if imp, ok := res[NodeImport].(imported); ok {
		out.Failures = imp.Failures
	}
	return out
}

// Run builds the graph for p and executes it.
func Run(ctx context.Context, p spec.Parameters, deps Deps, opts Options) (*Result, error) {
	res, err := pipeline.NewRunner(Build(p, deps, opts)).Run(ctx)
	return Collect(res), err
}
