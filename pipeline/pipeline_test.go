package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/rushteam/recserve/core"
)

type funcNode struct {
	name string
	fn   func([]*core.Item) ([]*core.Item, error)
}

func (n funcNode) Name() string { return n.name }
func (n funcNode) Kind() Kind   { return KindReRank }
func (n funcNode) Process(_ context.Context, _ *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	return n.fn(items)
}

func TestPipeline_Run(t *testing.T) {
	var order []string
	step := func(name string) Node {
		return funcNode{name: name, fn: func(items []*core.Item) ([]*core.Item, error) {
			order = append(order, name)
			return append(items, core.NewItem(name, 1)), nil
		}}
	}
	p := New(step("a"), nil, step("b"))
	if got := p.Names(); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("Names() = %v", got)
	}

	out, err := p.Run(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(order, []string{"a", "b"}) || len(out) != 2 {
		t.Errorf("order = %v, out = %d", order, len(out))
	}
}

func TestPipeline_RunError(t *testing.T) {
	boom := errors.New("boom")
	called := false
	p := New(
		funcNode{name: "fail", fn: func([]*core.Item) ([]*core.Item, error) { return nil, boom }},
		funcNode{name: "after", fn: func(items []*core.Item) ([]*core.Item, error) { called = true; return items, nil }},
	)
	if _, err := p.Run(context.Background(), nil, nil); !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want boom", err)
	}
	if called {
		t.Error("node after failure executed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(funcNode{name: "x", fn: func(i []*core.Item) ([]*core.Item, error) { return i, nil }}).Run(ctx, nil, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Run(canceled) error = %v", err)
	}
}
