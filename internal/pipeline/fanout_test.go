package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-graphviz"
)

func TestMap_KeepsInputOrder(t *testing.T) {
	items := []int{5, 4, 3, 2, 1}
	out, err := Map(context.Background(), items, MapOptions{Concurrency: 2}, func(_ context.Context, _ int, v int) (string, error) {
		time.Sleep(time.Duration(v) * time.Millisecond)
		return fmt.Sprint(v * 10), nil
	})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	for i, o := range out {
		if o.Index != i || o.Value != fmt.Sprint(items[i]*10) || o.Err != nil {
			t.Fatalf("outcome %d = %+v", i, o)
		}
	}
}

func TestMap_RespectsConcurrency(t *testing.T) {
	var inflight, peak atomic.Int32
	items := make([]int, 20)
	_, err := Map(context.Background(), items, MapOptions{Concurrency: 3}, func(context.Context, int, int) (struct{}, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inflight.Add(-1)
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if peak.Load() > 3 {
		t.Fatalf("peak concurrency %d > 3", peak.Load())
	}
}

func TestMap_FailFast(t *testing.T) {
	boom := errors.New("import failed")
	_, err := Map(context.Background(), []int{0, 1, 2}, MapOptions{}, func(ctx context.Context, i int, _ int) (int, error) {
		if i == 1 {
			return 0, boom
		}
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if err != boom {
		t.Fatalf("want first item error, got %v", err)
	}
}

func TestMap_Isolate(t *testing.T) {
	boom := errors.New("import failed")
	out, err := Map(context.Background(), []int{0, 1, 2}, MapOptions{Isolate: true}, func(_ context.Context, i int, _ int) (int, error) {
		if i == 1 {
			return 0, boom
		}
		return i, nil
	})
	if err != nil {
		t.Fatalf("isolated Map returned %v", err)
	}
	if out[0].Err != nil || out[2].Err != nil || out[1].Err != boom {
		t.Fatalf("unexpected outcomes %+v", out)
	}
}

func TestMap_Timeout(t *testing.T) {
	out, _ := Map(context.Background(), []int{0}, MapOptions{Timeout: 5 * time.Millisecond, Isolate: true}, func(ctx context.Context, _ int, _ int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(out[0].Err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", out[0].Err)
	}
}

func TestMap_CanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	out, err := Map(ctx, []int{1, 2}, MapOptions{Isolate: true}, func(context.Context, int, int) (int, error) {
		calls.Add(1)
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want canceled, got %v", err)
	}
	if calls.Load() != 0 || out[0].Err == nil || out[1].Err == nil {
		t.Fatalf("items ran after cancellation: calls=%d out=%+v", calls.Load(), out)
	}
}

func TestRender_Dot(t *testing.T) {
	g := New("demo")
	g.MustAdd(Node{Name: "manifest", Run: constant(nil)})
	g.MustAdd(Node{Name: "import", Deps: []string{"manifest"}, Run: constant(nil), Mapped: true})

	var buf bytes.Buffer
	if err := Render(g, string(graphviz.XDOT), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"manifest", "import", "->", "dashed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered graph misses %q:\n%s", want, out)
		}
	}
}
