// Package orchestration runs the manifest import on Temporal: the workflow
// mirrors the in-process graph, activities own every remote call and every
// secret, and registration publishes the workflow as an on-demand schedule.
package orchestration

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"manifestflow/internal/manifest"
	"manifestflow/internal/spec"
)

const WorkflowName = "ManifestImportWorkflow"

// =============================================================================
// ACTIVITY OPTIONS
// =============================================================================

var lookupActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 10 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    3,
	},
}

// One attempt per row: imports run with overwrite off.
var importActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 30 * time.Minute,
	RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
}

// =============================================================================
// WORKFLOW INPUTS/OUTPUTS
// =============================================================================

// ImportInput is the workflow argument stored in the schedule. It carries no
// credentials; activities read those on the worker.
type ImportInput struct {
	Pipeline   string          `json:"pipeline"`
	Parameters spec.Parameters `json:"parameters"`
	Separator  string          `json:"separator,omitempty"`
	OutputName string          `json:"output_name"`
	URIPrefix  string          `json:"uri_prefix"`
	Namespace  string          `json:"namespace"`

	Concurrency     int           `json:"concurrency"`
	RowTimeout      time.Duration `json:"row_timeout,omitempty"`
	IsolateFailures bool          `json:"isolate_failures,omitempty"`
	Preflight       bool          `json:"preflight,omitempty"`
}

type ImportResult struct {
	FileID   string `json:"file_id"`
	Imported int    `json:"imported"`
	Failed   int    `json:"failed"`

	// PrefixMisses counts rows whose s3_uri lacks the volume prefix.
	PrefixMisses int `json:"prefix_misses,omitempty"`
}

// Target is what the Seven Bridges lookups resolve to.
type Target struct {
	ProjectID string `json:"project_id"`
	AppID     string `json:"app_id"`
	VolumeID  string `json:"volume_id"`
}

type RowInput struct {
	Pipeline  string       `json:"pipeline"`
	Index     int          `json:"index"`
	ProjectID string       `json:"project_id"`
	VolumeID  string       `json:"volume_id"`
	Row       manifest.Row `json:"row"`
}

type StoreInput struct {
	Dataset  *manifest.Dataset `json:"dataset"`
	Name     string            `json:"name"`
	ParentID string            `json:"parent_id"`
}

// =============================================================================
// WORKFLOW
// =============================================================================

// ManifestImportWorkflow reads the manifest, resolves the destination, imports
// every row and stores the output manifest.
func ManifestImportWorkflow(ctx workflow.Context, in ImportInput) (ImportResult, error) {
	logger := workflow.GetLogger(ctx)
	var a *Activities

	lookupCtx := workflow.WithActivityOptions(ctx, lookupActivityOptions)
	dsFuture := workflow.ExecuteActivity(lookupCtx, a.LoadManifest, in.Parameters.ManifestID, in.Separator)
	targetFuture := workflow.ExecuteActivity(lookupCtx, a.ResolveTarget, in.Parameters)

	var ds manifest.Dataset
	if err := dsFuture.Get(ctx, &ds); err != nil {
		return ImportResult{}, err
	}
	var target Target
	if err := targetFuture.Get(ctx, &target); err != nil {
		return ImportResult{}, err
	}

	tr := manifest.Transform{URIPrefix: in.URIPrefix, Namespace: in.Namespace}
	rows := make([]manifest.Row, len(ds.Rows))
	misses := 0
	for i, r := range ds.Rows {
		var matched bool
		if rows[i], matched = tr.Prepare(r); !matched {
			misses++
			logger.Warn("s3_uri outside the volume prefix, importing it unchanged",
				"row", i, "s3_uri", r.S3URI, "prefix", in.URIPrefix)
		}
	}

	if in.Preflight {
		if err := workflow.ExecuteActivity(lookupCtx, a.Preflight, rows).Get(ctx, nil); err != nil {
			return ImportResult{}, err
		}
	}

	imported, failed, err := importAll(ctx, in, target, rows)
	if err != nil {
		return ImportResult{}, err
	}
	logger.Info("rows imported", "imported", len(imported), "failed", failed)

	out := manifest.Concat(ds.Columns, imported)
	var fileID string
	store := StoreInput{Dataset: out, Name: in.OutputName, ParentID: in.Parameters.SynapseFolder}
	if err := workflow.ExecuteActivity(lookupCtx, a.StoreManifest, store).Get(ctx, &fileID); err != nil {
		return ImportResult{}, err
	}
	return ImportResult{FileID: fileID, Imported: len(imported), Failed: failed, PrefixMisses: misses}, nil
}

// importAll keeps at most in.Concurrency imports in flight. Without isolation
// the first failure cancels the rest and is returned.
func importAll(ctx workflow.Context, in ImportInput, target Target, rows []manifest.Row) ([]manifest.Row, int, error) {
	var a *Activities
	limit := in.Concurrency
	if limit <= 0 {
		limit = len(rows)
	}

	opts := importActivityOptions
	if in.RowTimeout > 0 {
		opts.StartToCloseTimeout = in.RowTimeout
	}
	ictx, cancel := workflow.WithCancel(workflow.WithActivityOptions(ctx, opts))
	defer cancel()

	results := make([]*manifest.Row, len(rows))
	var errs []error
	sel := workflow.NewSelector(ctx)
	inFlight, next := 0, 0

	for next < len(rows) || inFlight > 0 {
		for inFlight < limit && next < len(rows) {
			i := next
			f := workflow.ExecuteActivity(ictx, a.ImportRow, RowInput{
				Pipeline:  in.Pipeline,
				Index:     i,
				ProjectID: target.ProjectID,
				VolumeID:  target.VolumeID,
				Row:       rows[i],
			})
			sel.AddFuture(f, func(f workflow.Future) {
				inFlight--
				var r manifest.Row
				if err := f.Get(ctx, &r); err != nil {
					errs = append(errs, err)
					return
				}
				results[i] = &r
			})
			inFlight++
			next++
		}
		sel.Select(ctx)
		if len(errs) > 0 && !in.IsolateFailures {
			cancel()
			return nil, len(errs), errs[0]
		}
	}

	var out []manifest.Row
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, len(errs), errs[0]
	}
	return out, len(errs), nil
}
