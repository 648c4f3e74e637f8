package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

type MapOptions struct {
	// Concurrency caps in-flight items; <= 0 means unbounded.
	Concurrency int
	// Timeout bounds each item; 0 disables it.
	Timeout time.Duration
	// Isolate keeps going after an item fails instead of cancelling the rest.
	Isolate bool
}

// Outcome is the result of one item, at the item's input index.
type Outcome[T any] struct {
	Index int
	Value T
	Err   error
}

// Map applies fn to every item in parallel and returns one outcome per item
// in input order. Items that never started because the context ended carry
// the context error. Without Isolate the first item error cancels the others
// and is returned; with Isolate only cancellation of ctx is returned.
func Map[In, Out any](ctx context.Context, items []In, opts MapOptions, fn func(context.Context, int, In) (Out, error)) ([]Outcome[Out], error) {
	out := make([]Outcome[Out], len(items))

	g, gctx := &errgroup.Group{}, ctx
	if !opts.Isolate {
		g, gctx = errgroup.WithContext(ctx)
	}
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}

	for i, item := range items {
		out[i].Index = i
		if err := gctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		g.Go(func() error {
			ictx := gctx
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				ictx, cancel = context.WithTimeout(gctx, opts.Timeout)
				defer cancel()
			}
			if err := ictx.Err(); err != nil {
				out[i].Err = err
				return isolate(opts, err)
			}
			v, err := fn(ictx, i, item)
			out[i].Value, out[i].Err = v, err
			return isolate(opts, err)
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}

func isolate(opts MapOptions, err error) error {
	if opts.Isolate {
		return nil
	}
	return err
}
