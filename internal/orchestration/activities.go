package orchestration

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"manifestflow/internal/fault"
	"manifestflow/internal/flow"
	"manifestflow/internal/manifest"
	"manifestflow/internal/platform/sevenbridges"
	"manifestflow/internal/platform/synapse"
	"manifestflow/internal/secrets"
	"manifestflow/internal/spec"
	"manifestflow/internal/telemetry"
	"manifestflow/sink"
)

// Activities performs the remote calls of the workflow. Credentials live
// here, on the worker, so they never reach workflow history.
type Activities struct {
	Synapse      flow.Synapse
	SevenBridges flow.SevenBridges
	Preflighter  flow.Preflight // optional
	Events       flow.EventSink // optional

	SynapseArgs      synapse.ClientArgs
	SevenBridgesArgs sevenbridges.ClientArgs
}

// NewActivities reads both platform tokens from the environment.
func NewActivities(deps flow.Deps, synapseTokenEnv, sbTokenEnv string) (*Activities, error) {
	synTok, err := secrets.FromEnv(synapseTokenEnv)
	if err != nil {
		return nil, err
	}
	sbTok, err := secrets.FromEnv(sbTokenEnv)
	if err != nil {
		return nil, err
	}
	return &Activities{
		Synapse:          deps.Synapse,
		SevenBridges:     deps.SevenBridges,
		Preflighter:      deps.Preflight,
		Events:           deps.Events,
		SynapseArgs:      synapse.BundleClientArgs(synTok),
		SevenBridgesArgs: sevenbridges.BundleClientArgs(sbTok),
	}, nil
}

func (a *Activities) LoadManifest(ctx context.Context, synapseID, separator string) (*manifest.Dataset, error) {
	sep := manifest.Comma
	if separator != "" {
		var err error
		if sep, err = manifest.ParseSeparator(separator); err != nil {
			return nil, toApplicationError(err)
		}
	}
	ds, err := a.Synapse.GetDataFrame(ctx, a.SynapseArgs, synapseID, sep)
	return ds, toApplicationError(err)
}

func (a *Activities) ResolveTarget(ctx context.Context, p spec.Parameters) (Target, error) {
	var t Target
	var err error
	if t.ProjectID, err = a.SevenBridges.GetProjectID(ctx, a.SevenBridgesArgs, p.ProjectName, p.BillingGroupName); err != nil {
		return Target{}, toApplicationError(err)
	}
	if t.AppID, err = a.SevenBridges.GetCopiedAppID(ctx, a.SevenBridgesArgs, t.ProjectID, p.AppID); err != nil {
		return Target{}, toApplicationError(err)
	}
	if t.VolumeID, err = a.SevenBridges.GetVolumeID(ctx, a.SevenBridgesArgs, p.VolumeName); err != nil {
		return Target{}, toApplicationError(err)
	}
	return t, nil
}

func (a *Activities) Preflight(ctx context.Context, rows []manifest.Row) error {
	if a.Preflighter == nil {
		activity.GetLogger(ctx).Warn("preflight requested but not configured on this worker")
		return nil
	}
	return toApplicationError(a.Preflighter.Check(ctx, rows))
}

func (a *Activities) ImportRow(ctx context.Context, in RowInput) (manifest.Row, error) {
	runID := activity.GetInfo(ctx).WorkflowExecution.RunID
	start := time.Now()

	id, err := a.SevenBridges.ImportVolumeFile(ctx, a.SevenBridgesArgs, in.ProjectID, in.VolumeID, in.Row.VolumePath, in.Row.ProjectPath)
	if err != nil {
		telemetry.RowsFailed.WithLabelValues(in.Pipeline, string(fault.KindOf(err))).Inc()
		a.push(ctx, flow.RowEvent(in.Pipeline, runID, in.Index, in.Row, err))
		return in.Row, toApplicationError(err)
	}
	telemetry.RowsImported.WithLabelValues(in.Pipeline).Inc()
	telemetry.ImportSeconds.WithLabelValues(in.Pipeline).Observe(time.Since(start).Seconds())

	row := in.Row.WithImportedFileID(id)
	a.push(ctx, flow.RowEvent(in.Pipeline, runID, in.Index, row, nil))
	return row, nil
}

func (a *Activities) StoreManifest(ctx context.Context, in StoreInput) (string, error) {
	id, err := a.Synapse.StoreDataFrame(ctx, a.SynapseArgs, in.Dataset, in.Name, in.ParentID, manifest.Comma)
	return id, toApplicationError(err)
}

func (a *Activities) push(ctx context.Context, ev sink.Event) {
	if a.Events == nil {
		return
	}
	if err := a.Events.Push(ev); err != nil {
		activity.GetLogger(ctx).Warn("import event not delivered", "row", ev.Row, "err", err)
	}
}

// toApplicationError marks terminal faults as non-retryable. The error type
// is the fault kind, so callers can tell failures apart after the round trip
// through the server.
func toApplicationError(err error) error {
	if err == nil {
		return nil
	}
	var fe *fault.Error
	if !errors.As(err, &fe) {
		return err
	}
	if fault.IsTerminal(err) {
		return temporal.NewNonRetryableApplicationError(err.Error(), string(fe.Kind), err)
	}
	return temporal.NewApplicationErrorWithCause(err.Error(), string(fe.Kind), err)
}

// KindOf reports the fault kind behind a workflow or activity error.
func KindOf(err error) fault.Kind {
	var app *temporal.ApplicationError
	if errors.As(err, &app) && app.Type() != "" {
		return fault.Kind(app.Type())
	}
	return fault.KindOf(err)
}
