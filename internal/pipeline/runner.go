package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type State string

const (
	Started   State = "started"
	Succeeded State = "succeeded"
	Failed    State = "failed"
	Skipped   State = "skipped"
)

// Event reports a node state change to subscribers.
type Event struct {
	Node     string
	State    State
	Err      error
	Duration time.Duration
}

// Results holds the value of every node that finished.
type Results map[string]any

type Runner struct {
	g *Graph

	mu   sync.Mutex
	subs []func(Event)
}

func NewRunner(g *Graph) *Runner { return &Runner{g: g} }

// Subscribe registers fn for node events. Handlers run on the node's
// goroutine and must not block.
func (r *Runner) Subscribe(fn func(Event)) {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
}

func (r *Runner) emit(ev Event) {
	r.mu.Lock()
	handlers := append([]func(Event){}, r.subs...)
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Run executes every node once its dependencies are done. The first failing
// node cancels the rest; nodes that have not started by then never start.
// The failing node's error is returned as is.
func (r *Runner) Run(ctx context.Context) (Results, error) {
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	results := make(Results, len(r.g.nodes))
	done := make(map[string]chan struct{}, len(r.g.nodes))
	for _, n := range r.g.nodes {
		done[n.Name] = make(chan struct{})
	}

	for _, n := range r.g.nodes {
		g.Go(func() error {
			/*──────── wait for inputs ───────*/
			for _, d := range n.Deps {
				select {
				case <-done[d]:
				case <-gctx.Done():
					r.emit(Event{Node: n.Name, State: Skipped, Err: gctx.Err()})
					return gctx.Err()
				}
			}
			if err := gctx.Err(); err != nil {
				r.emit(Event{Node: n.Name, State: Skipped, Err: err})
				return err
			}

			in := make(Inputs, len(n.Deps))
			mu.Lock()
			for _, d := range n.Deps {
				in[d] = results[d]
			}
			mu.Unlock()

			/*──────── run ───────*/
			r.emit(Event{Node: n.Name, State: Started})
			start := time.Now()
			v, err := n.Run(gctx, in)
			if err != nil {
				r.emit(Event{Node: n.Name, State: Failed, Err: err, Duration: time.Since(start)})
				return err
			}

			mu.Lock()
			results[n.Name] = v
			mu.Unlock()
			close(done[n.Name])
			r.emit(Event{Node: n.Name, State: Succeeded, Duration: time.Since(start)})
			return nil
		})
	}

	err := g.Wait()
	return results, err
}
