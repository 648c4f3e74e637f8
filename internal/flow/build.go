package flow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"manifestflow/internal/fault"
	"manifestflow/internal/logging"
	"manifestflow/internal/manifest"
	"manifestflow/internal/pipeline"
	"manifestflow/internal/platform/sevenbridges"
	"manifestflow/internal/platform/synapse"
	"manifestflow/internal/secrets"
	"manifestflow/internal/spec"
	"manifestflow/internal/telemetry"
	"manifestflow/sink"
)

// Build wires the import graph for one parameter set. Nothing runs until the
// graph is handed to a pipeline.Runner.
func Build(p spec.Parameters, deps Deps, opts Options) *pipeline.Graph {
	g := pipeline.New(opts.Pipeline)

	/*──────── secrets and sessions ───────*/
	g.MustAdd(pipeline.Node{Name: NodeSynapseToken, Run: func(context.Context, pipeline.Inputs) (any, error) {
		return secrets.FromEnv(opts.SynapseTokenEnv)
	}})
	g.MustAdd(pipeline.Node{Name: NodeSBToken, Run: func(context.Context, pipeline.Inputs) (any, error) {
		return secrets.FromEnv(opts.SevenBridgesTokenEnv)
	}})
	g.MustAdd(pipeline.Node{Name: NodeSynapseArgs, Deps: []string{NodeSynapseToken}, Run: func(_ context.Context, in pipeline.Inputs) (any, error) {
		return synapse.BundleClientArgs(in[NodeSynapseToken].(secrets.Secret)), nil
	}})
	g.MustAdd(pipeline.Node{Name: NodeSBArgs, Deps: []string{NodeSBToken}, Run: func(_ context.Context, in pipeline.Inputs) (any, error) {
		return sevenbridges.BundleClientArgs(in[NodeSBToken].(secrets.Secret)), nil
	}})

	/*──────── extract ───────*/
	g.MustAdd(pipeline.Node{Name: NodeManifest, Deps: []string{NodeSynapseArgs}, Run: func(ctx context.Context, in pipeline.Inputs) (any, error) {
		return deps.Synapse.GetDataFrame(ctx, in[NodeSynapseArgs].(synapse.ClientArgs), p.ManifestID, opts.Separator)
	}})
	g.MustAdd(pipeline.Node{Name: NodeProjectID, Deps: []string{NodeSBArgs}, Run: func(ctx context.Context, in pipeline.Inputs) (any, error) {
		return deps.SevenBridges.GetProjectID(ctx, in[NodeSBArgs].(sevenbridges.ClientArgs), p.ProjectName, p.BillingGroupName)
	}})
	g.MustAdd(pipeline.Node{Name: NodeAppID, Deps: []string{NodeSBArgs, NodeProjectID}, Run: func(ctx context.Context, in pipeline.Inputs) (any, error) {
		return deps.SevenBridges.GetCopiedAppID(ctx, in[NodeSBArgs].(sevenbridges.ClientArgs), in[NodeProjectID].(string), p.AppID)
	}})
	g.MustAdd(pipeline.Node{Name: NodeVolumeID, Deps: []string{NodeSBArgs}, Run: func(ctx context.Context, in pipeline.Inputs) (any, error) {
		return deps.SevenBridges.GetVolumeID(ctx, in[NodeSBArgs].(sevenbridges.ClientArgs), p.VolumeName)
	}})

	/*──────── transform ───────*/
	g.MustAdd(pipeline.Node{Name: NodePrepare, Deps: []string{NodeManifest}, Mapped: true, Run: func(_ context.Context, in pipeline.Inputs) (any, error) {
		return prepare(opts, in[NodeManifest].(*manifest.Dataset).Rows), nil
	}})

	importDeps := []string{NodeSBArgs, NodeProjectID, NodeVolumeID, NodePrepare}
	if deps.Preflight != nil {
		g.MustAdd(pipeline.Node{Name: NodePreflight, Deps: []string{NodePrepare}, Run: func(ctx context.Context, in pipeline.Inputs) (any, error) {
			return nil, deps.Preflight.Check(ctx, in[NodePrepare].([]manifest.Row))
		}})
		importDeps = append(importDeps, NodePreflight)
	}

	/*──────── load ───────*/
	g.MustAdd(pipeline.Node{Name: NodeImport, Deps: importDeps, Mapped: true, Run: func(ctx context.Context, in pipeline.Inputs) (any, error) {
		return importRows(ctx, deps, opts,
			in[NodeSBArgs].(sevenbridges.ClientArgs),
			in[NodeProjectID].(string),
			in[NodeVolumeID].(string),
			in[NodePrepare].([]manifest.Row))
	}})
	g.MustAdd(pipeline.Node{Name: NodeConcat, Deps: []string{NodeManifest, NodeImport}, Run: func(_ context.Context, in pipeline.Inputs) (any, error) {
		return manifest.Concat(in[NodeManifest].(*manifest.Dataset).Columns, in[NodeImport].(imported).Rows), nil
	}})
	g.MustAdd(pipeline.Node{Name: NodeStore, Deps: []string{NodeSynapseArgs, NodeConcat}, Run: func(ctx context.Context, in pipeline.Inputs) (any, error) {
		return deps.Synapse.StoreDataFrame(ctx, in[NodeSynapseArgs].(synapse.ClientArgs), in[NodeConcat].(*manifest.Dataset), opts.OutputName, p.SynapseFolder, manifest.Comma)
	}})
	return g
}

func prepare(opts Options, rows []manifest.Row) []manifest.Row {
	out := make([]manifest.Row, len(rows))
	for i, r := range rows {
		var matched bool
		out[i], matched = opts.Transform.Prepare(r)
		if !matched {
			telemetry.PrefixMisses.WithLabelValues(opts.Pipeline).Inc()
			logging.L().Warn("s3_uri outside the volume prefix, importing it as is",
				"row", i, "s3_uri", r.S3URI, "prefix", opts.Transform.URIPrefix)
		}
	}
	return out
}

func importRows(ctx context.Context, deps Deps, opts Options, args sevenbridges.ClientArgs, projectID, volumeID string, rows []manifest.Row) (imported, error) {
	outcomes, err := pipeline.Map(ctx, rows, opts.Import, func(ctx context.Context, i int, r manifest.Row) (manifest.Row, error) {
		start := time.Now()
		id, err := deps.SevenBridges.ImportVolumeFile(ctx, args, projectID, volumeID, r.VolumePath, r.ProjectPath)
		if err != nil {
			telemetry.RowsFailed.WithLabelValues(opts.Pipeline, string(fault.KindOf(err))).Inc()
			logging.L().Error("row import failed", "row", i, "volume_path", r.VolumePath, "project_path", r.ProjectPath, "err", err)
			emit(deps, opts, i, r, err)
			return r, err
		}
		telemetry.RowsImported.WithLabelValues(opts.Pipeline).Inc()
		telemetry.ImportSeconds.WithLabelValues(opts.Pipeline).Observe(time.Since(start).Seconds())
		r = r.WithImportedFileID(id)
		emit(deps, opts, i, r, nil)
		return r, nil
	})
	if err != nil {
		return imported{}, err
	}

	var out imported
	for _, o := range outcomes {
		if o.Err != nil {
			out.Failures = append(out.Failures, RowFailure{Row: rows[o.Index], Err: o.Err})
			continue
		}
		out.Rows = append(out.Rows, o.Value)
	}
	if len(out.Rows) == 0 && len(out.Failures) > 0 {
		return out, out.Failures[0].Err
	}
	return out, nil
}

func emit(deps Deps, opts Options, i int, r manifest.Row, err error) {
	if deps.Events == nil {
		return
	}
	if perr := deps.Events.Push(RowEvent(opts.Pipeline, opts.RunID, i, r, err)); perr != nil {
		logging.L().Warn("import event not delivered", "row", i, "err", perr)
	}
}

// RowEvent describes the import outcome of row i for the sinks.
func RowEvent(pipelineName, runID string, i int, r manifest.Row, err error) sink.Event {
	ev := sink.Event{
		ID:             uuid.NewString(),
		RunID:          runID,
		Pipeline:       pipelineName,
		Row:            i,
		S3URI:          r.S3URI,
		VolumePath:     r.VolumePath,
		ProjectPath:    r.ProjectPath,
		ImportedFileID: r.ImportedFileID,
		Status:         sink.StatusImported,
		Time:           time.Now().UTC(),
	}
	if err != nil {
		ev.Status = sink.StatusFailed
		ev.Kind = string(fault.KindOf(err))
		ev.Error = err.Error()
	}
	return ev
}
