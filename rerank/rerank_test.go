package rerank

import (
	"context"
	"slices"
	"testing"

	"github.com/rushteam/recserve/core"
)

func scored(pairs ...any) []*core.Item {
	var items []*core.Item
	for i := 0; i < len(pairs); i += 2 {
		items = append(items, core.NewItem(pairs[i].(string), pairs[i+1].(float64)))
	}
	return items
}

func ids(items []*core.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ProductID
	}
	return out
}

func TestTierBoost(t *testing.T) {
	boost := NewTierBoost(0)
	if boost.Factor != DefaultPremiumBoost {
		t.Fatalf("Factor = %v", boost.Factor)
	}

	tests := []struct {
		name string
		tier core.SubscriptionTier
		want []float64
	}{
		{"premium", core.TierPremium, []float64{0.5 * 1.2, 0.25 * 1.2}},
		{"plus", core.TierPlus, []float64{0.5, 0.25}},
		{"basic", core.TierBasic, []float64{0.5, 0.25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rctx := &core.RecommendContext{User: &core.UserProfile{ID: "u", Tier: tt.tier}}
			out, err := boost.Process(context.Background(), rctx, scored("a", 0.5, "b", 0.25))
			if err != nil {
				t.Fatal(err)
			}
			for i, it := range out {
				if it.Score != tt.want[i] {
					t.Errorf("%s score = %v, want %v", it.ProductID, it.Score, tt.want[i])
				}
			}
		})
	}

	out, _ := boost.Process(context.Background(), nil, scored("a", 0.5))
	if out[0].Score != 0.5 {
		t.Errorf("nil context boosted: %v", out[0].Score)
	}
}

func TestSortNode_Stable(t *testing.T) {
	out, err := (&SortNode{}).Process(context.Background(), nil, scored("a", 0.1, "b", 0.5, "c", 0.5, "d", 0.9))
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(out); !slices.Equal(got, []string{"d", "b", "c", "a"}) {
		t.Errorf("order = %v", got)
	}
}

func TestTopNNode(t *testing.T) {
	items := scored("a", 1.0, "b", 0.5, "c", 0.1)
	tests := []struct {
		n    int
		want int
	}{
		{0, 3}, {2, 2}, {5, 3},
	}
	for _, tt := range tests {
		out, _ := (&TopNNode{N: tt.n}).Process(context.Background(), nil, items)
		if len(out) != tt.want {
			t.Errorf("TopN(%d) = %d items, want %d", tt.n, len(out), tt.want)
		}
	}
}
