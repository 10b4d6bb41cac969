package algorithm

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/rushteam/recserve/core"
)

func products(ids ...string) []*core.Product {
	out := make([]*core.Product, len(ids))
	for i, id := range ids {
		out[i] = &core.Product{ID: id, Category: "electronics", InStock: true, Popularity: 0.5, Rating: 4}
	}
	return out
}

func itemIDs(items []*core.Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	return ids
}

func TestCapabilities(t *testing.T) {
	cf := NewCollaborative(0)
	content := NewContent(nil)
	hybrid := NewHybrid(cf, content, HybridOptions{})

	tests := []struct {
		name string
		alg  Algorithm
		want []Capability
	}{
		{"collaborative", cf, nil},
		{"content", content, []Capability{CapabilityTrain, CapabilityEvaluate}},
		{"hybrid", hybrid, []Capability{CapabilityIncremental, CapabilityEvaluate}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Capabilities(tt.alg); !slices.Equal(got, tt.want) {
				t.Errorf("Capabilities() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCapabilitySignalling(t *testing.T) {
	ctx := context.Background()
	cf := NewCollaborative(0)

	err := Train(ctx, cf, TrainingData{})
	if !errors.Is(err, core.ErrCapabilityNotSupported) {
		t.Errorf("Train(v1) error = %v, want not supported", err)
	}
	if !core.IsNotSupported(err) {
		t.Errorf("Train(v1) kind = %s", core.KindOf(err))
	}

	metrics, err := Evaluate(ctx, cf, []EvaluationCase{{}})
	if !errors.Is(err, core.ErrCapabilityNotSupported) || metrics != nil {
		t.Errorf("Evaluate(v1) = %v, %v, want nil, not supported", metrics, err)
	}

	err = UpdateIncremental(ctx, cf, core.Interaction{ProductID: "p1", Kind: core.KindView})
	if !errors.Is(err, core.ErrCapabilityNotSupported) {
		t.Errorf("UpdateIncremental(v1) error = %v, want not supported", err)
	}

	content := NewContent(nil)
	err = UpdateIncremental(ctx, content, core.Interaction{ProductID: "p1", Kind: core.KindView})
	if !errors.Is(err, core.ErrCapabilityNotSupported) {
		t.Errorf("UpdateIncremental(content-v1) error = %v, want not supported", err)
	}
	if err := Train(ctx, content, TrainingData{}); err != nil {
		t.Errorf("Train(content-v1) error = %v", err)
	}
}

func TestCollaborative_ScenarioU1(t *testing.T) {
	cf := NewCollaborative(0)
	rctx := &core.RecommendContext{
		UserID: "u1",
		History: []core.Interaction{
			{UserID: "u1", ProductID: "p1", Kind: core.KindView},
			{UserID: "u1", ProductID: "p2", Kind: core.KindPurchase},
		},
	}
	items, err := cf.Score(context.Background(), rctx, products("p1", "p2", "p3", "p4"))
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}

	got := itemIDs(items)
	if slices.Contains(got, "p2") || slices.Contains(got, "p1") {
		t.Fatalf("Score() = %v, history products must be excluded", got)
	}
	for _, it := range items {
		want := (pseudoSimilarity(minmax(it.ProductID, "p1"))*1 + pseudoSimilarity(minmax(it.ProductID, "p2"))*5) / 6
		if math.Abs(it.Score-want) > 1e-12 {
			t.Errorf("%s score = %v, want %v", it.ProductID, it.Score, want)
		}
		if it.Score <= 0 || it.Score > 1 {
			t.Errorf("%s score = %v, want (0, 1]", it.ProductID, it.Score)
		}
		if !slices.Equal(it.Features, []string{FeatureCollaborative}) {
			t.Errorf("%s features = %v", it.ProductID, it.Features)
		}
	}
	for i := 1; i < len(items); i++ {
		if items[i-1].Score < items[i].Score {
			t.Errorf("not sorted at %d: %v < %v", i, items[i-1].Score, items[i].Score)
		}
	}
}

func minmax(a, b string) (string, string) {
	k := pairKey(a, b)
	return k[0], k[1]
}

func TestCollaborative_NoRepeatPurchases(t *testing.T) {
	cf := NewCollaborative(0)
	var history []core.Interaction
	var ids []string
	for i := 0; i < 40; i++ {
		id := "product_" + string(rune('A'+i%26)) + string(rune('a'+i/26))
		ids = append(ids, id)
		if i%3 == 0 {
			history = append(history, core.Interaction{ProductID: id, Kind: core.KindPurchase})
		}
	}
	items, err := cf.Score(context.Background(), &core.RecommendContext{History: history}, products(ids...))
	if err != nil {
		t.Fatal(err)
	}
	purchased := core.PurchasedSet(history)
	for _, it := range items {
		if _, ok := purchased[it.ProductID]; ok {
			t.Errorf("purchased product %s recommended", it.ProductID)
		}
	}
}

func TestCollaborative_PopularFallback(t *testing.T) {
	cf := NewCollaborative(0)
	var ids []string
	for i := 0; i < 30; i++ {
		ids = append(ids, "product_"+string(rune('a'+i%26))+string(rune('0'+i/26)))
	}
	items, err := cf.Score(context.Background(), &core.RecommendContext{UserID: "new"}, products(ids...))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != PopularFallbackSize {
		t.Fatalf("len = %d, want %d", len(items), PopularFallbackSize)
	}
	for i, it := range items {
		if it.Score != PopularFallbackScore || !slices.Equal(it.Features, []string{FeaturePopular}) {
			t.Errorf("item %d = %+v", i, it)
		}
		if i > 0 && pseudoPopularity(items[i-1].ProductID) < pseudoPopularity(it.ProductID) {
			t.Errorf("popularity order broken at %d", i)
		}
	}

	few, _ := cf.Score(context.Background(), nil, products("a", "b"))
	if len(few) != 2 {
		t.Errorf("fallback over 2 candidates = %d items", len(few))
	}
}

func TestCollaborative_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewCollaborative(0).Score(ctx, nil, products("a")); !errors.Is(err, context.Canceled) {
		t.Errorf("Score() error = %v, want canceled", err)
	}
}

func TestSimilarityCache(t *testing.T) {
	c := NewSimilarityCache(4)
	ab := c.Similarity("a", "b")
	if ba := c.Similarity("b", "a"); ab != ba {
		t.Errorf("similarity not symmetric: %v != %v", ab, ba)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	for _, p := range []string{"c", "d", "e", "f", "g"} {
		s := c.Similarity("a", p)
		if s < 0 || s > 1 {
			t.Errorf("similarity(a, %s) = %v, out of range", p, s)
		}
	}
	if c.Len() > 4 {
		t.Errorf("Len() = %d, exceeds bound", c.Len())
	}
}

type staticLookup map[string]*core.Product

func (s staticLookup) Get(_ context.Context, id string) *core.Product { return s[id] }

func TestContent_Score(t *testing.T) {
	catalog := []*core.Product{
		{ID: "b1", Category: "books", Popularity: 0.5, Rating: 5},
		{ID: "e1", Category: "electronics", Popularity: 0.5, Rating: 5},
		{ID: "s1", Category: "sports", Popularity: 0.5, Rating: 5},
		{ID: "b0", Category: "books", Popularity: 1, Rating: 5},
	}
	lookup := staticLookup{}
	for _, p := range catalog {
		lookup[p.ID] = p
	}
	c := NewContent(lookup)
	rctx := &core.RecommendContext{
		UserID:  "u",
		User:    &core.UserProfile{ID: "u", Preferences: core.Preferences{Categories: []string{"electronics"}}},
		History: []core.Interaction{{ProductID: "b0", Kind: core.KindPurchase}},
	}
	items, err := c.Score(context.Background(), rctx, catalog)
	if err != nil {
		t.Fatal(err)
	}
	byID := index(items)
	if _, ok := byID["b0"]; ok {
		t.Error("history product b0 scored")
	}

	tests := []struct {
		id       string
		score    float64
		features []string
	}{
		{"e1", 0.5 + 0.2*0.5, []string{FeatureContent, FeaturePreferredCategory}},
		{"b1", 0.3 + 0.2*0.5, []string{FeatureContent, FeatureHistoryCategory}},
		{"s1", 0.2 * 0.5, []string{FeatureContent}},
	}
	for _, tt := range tests {
		it, ok := byID[tt.id]
		if !ok {
			t.Errorf("%s missing", tt.id)
			continue
		}
		if math.Abs(it.Score-tt.score) > 1e-9 {
			t.Errorf("%s score = %v, want %v", tt.id, it.Score, tt.score)
		}
		if !slices.Equal(it.Features, tt.features) {
			t.Errorf("%s features = %v, want %v", tt.id, it.Features, tt.features)
		}
	}
	if got := itemIDs(items); !slices.Equal(got, []string{"e1", "b1", "s1"}) {
		t.Errorf("order = %v", got)
	}
}

func TestContent_Train(t *testing.T) {
	c := NewContent(nil)
	data := TrainingData{
		Products: []*core.Product{{ID: "b1", Category: "books"}, {ID: "e1", Category: "electronics"}},
		Interactions: []core.Interaction{
			{ProductID: "b1", Kind: core.KindPurchase},
			{ProductID: "b1", Kind: core.KindView},
			{ProductID: "e1", Kind: core.KindAddToCart},
			{ProductID: "unknown", Kind: core.KindView},
		},
	}
	if err := c.Train(context.Background(), data); err != nil {
		t.Fatal(err)
	}
	if got := c.Prior("books"); got != 1 {
		t.Errorf("Prior(books) = %v, want 1", got)
	}
	if got := c.Prior("electronics"); got != 0.5 {
		t.Errorf("Prior(electronics) = %v, want 0.5", got)
	}

	items, _ := c.Score(context.Background(), nil, []*core.Product{{ID: "b2", Category: "books"}})
	if len(items) != 1 || math.Abs(items[0].Score-contentPriorWeight) > 1e-12 {
		t.Errorf("prior-only score = %+v", items)
	}
}

func TestHybrid_Score(t *testing.T) {
	cf := NewCollaborative(0)
	content := NewContent(nil)
	h := NewHybrid(cf, content, HybridOptions{Weights: [2]float64{3, 2}})
	if w := h.Weights(); math.Abs(w[0]-0.6) > 1e-12 || math.Abs(w[1]-0.4) > 1e-12 {
		t.Fatalf("Weights() = %v", w)
	}

	ctx := context.Background()
	rctx := &core.RecommendContext{History: []core.Interaction{{ProductID: "p1", Kind: core.KindClick}}}
	cands := products("p1", "p2", "p3", "p4")

	first, err := h.Score(ctx, rctx, cands)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := h.Score(ctx, rctx, cands)
	if !slices.Equal(itemIDs(first), itemIDs(second)) {
		t.Errorf("non-deterministic order %v vs %v", itemIDs(first), itemIDs(second))
	}

	cfItems, _ := cf.Score(ctx, rctx, cands)
	contentItems, _ := content.Score(ctx, rctx, cands)
	cfByID, contentByID := index(cfItems), index(contentItems)
	for _, it := range first {
		if it.ProductID == "p1" {
			t.Error("history product p1 scored")
		}
		want := 0.6*cfByID[it.ProductID].Score + 0.4*contentByID[it.ProductID].Score
		if math.Abs(it.Score-want) > 1e-12 {
			t.Errorf("%s score = %v, want %v", it.ProductID, it.Score, want)
		}
		for _, f := range []string{FeatureCollaborative, FeatureContent, FeatureHybrid} {
			if !slices.Contains(it.Features, f) {
				t.Errorf("%s features = %v, missing %s", it.ProductID, it.Features, f)
			}
		}
	}

	if err := h.UpdateIncremental(ctx, core.Interaction{ProductID: "p4", Kind: core.KindPurchase}); err != nil {
		t.Fatal(err)
	}
	if got := h.OnlinePopularity("p4"); got != 1 {
		t.Errorf("OnlinePopularity(p4) = %v, want 1", got)
	}
	boosted, _ := h.Score(ctx, rctx, cands)
	if got, want := index(boosted)["p4"].Score, index(first)["p4"].Score+onlineWeight; math.Abs(got-want) > 1e-12 {
		t.Errorf("p4 after update = %v, want %v", got, want)
	}

	if err := h.UpdateIncremental(ctx, core.Interaction{ProductID: "p4", Kind: "like"}); !core.IsInvalidInput(err) {
		t.Errorf("UpdateIncremental(unknown kind) error = %v", err)
	}
}

func TestHybrid_OnlineCapacity(t *testing.T) {
	h := NewHybrid(NewCollaborative(0), NewContent(nil), HybridOptions{OnlineCapacity: 2})
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_ = h.UpdateIncremental(ctx, core.Interaction{ProductID: id, Kind: core.KindView})
	}
	if h.OnlinePopularity("a") != 0 || h.OnlinePopularity("c") != 1 {
		t.Errorf("counts not reset on overflow: a=%v c=%v", h.OnlinePopularity("a"), h.OnlinePopularity("c"))
	}
}

type fixedAlgorithm struct{ ids []string }

func (f fixedAlgorithm) Name() string     { return "fixed" }
func (f fixedAlgorithm) Version() string  { return "fixed" }
func (f fixedAlgorithm) Variant() Variant { return VariantCollaborative }
func (f fixedAlgorithm) Score(context.Context, *core.RecommendContext, []*core.Product) ([]*core.Item, error) {
	items := make([]*core.Item, len(f.ids))
	for i, id := range f.ids {
		items[i] = core.NewItem(id, 1)
	}
	return items, nil
}

func TestEvaluate(t *testing.T) {
	alg := fixedAlgorithm{ids: []string{"a", "b", "c", "d"}}
	cases := []EvaluationCase{
		{Relevant: []string{"a", "x"}, K: 2},
		{Relevant: []string{"z"}, K: 2},
	}
	got, err := evaluate(context.Background(), alg, cases)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{
		MetricPrecision: (0.5 + 0) / 2,
		MetricRecall:    (0.5 + 0) / 2,
		MetricHitRate:   0.5,
		MetricCases:     2,
	}
	for k, v := range want {
		if math.Abs(got[k]-v) > 1e-12 {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}

	if _, err := evaluate(context.Background(), alg, nil); !core.IsInvalidInput(err) {
		t.Errorf("evaluate(nil) error = %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewStandardRegistry(Options{})
	if got := r.Versions(); !slices.Equal(got, []string{"content-v1", "v1", "v2-beta"}) {
		t.Fatalf("Versions() = %v", got)
	}
	alg, ok := r.Get("v2-beta")
	if !ok || alg.Variant() != VariantHybrid {
		t.Errorf("Get(v2-beta) = %v, %v", alg, ok)
	}
	if _, ok := r.Get("v9"); ok {
		t.Error("Get(v9) found")
	}
	if err := r.Register(NewCollaborative(0)); err == nil {
		t.Error("duplicate register succeeded")
	}
}
