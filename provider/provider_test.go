package provider

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/docstore"
)

func newTestStore(t *testing.T) *docstore.BadgerStore {
	t.Helper()
	s, err := docstore.OpenBadger(docstore.BadgerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	if err := EnsureIndexes(context.Background(), s); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}
	return s
}

// failingStore 所有读写都返回 UNAVAILABLE。
type failingStore struct {
	core.DocumentStore
}

var errDown = core.Unavailable(core.ModuleDocStore, "down", errors.New("connection refused"))

func (failingStore) FindOne(context.Context, string, core.Filter) (core.Document, error) {
	return nil, errDown
}

func (failingStore) FindMany(context.Context, string, core.Filter, core.FindOptions) ([]core.Document, error) {
	return nil, errDown
}

func (failingStore) InsertOne(context.Context, string, core.Document) (string, error) {
	return "", errDown
}

func TestUserProvider_StoredProfile(t *testing.T) {
	ctx := context.Background()
	up := NewUserProvider(newTestStore(t), nil, zerolog.Nop())

	want := &core.UserProfile{
		ID: "u1", Name: "Ann", Tier: core.TierPremium,
		Segments:    []string{"high_value"},
		Preferences: core.Preferences{Categories: []string{"books"}},
	}
	if err := up.SaveUser(ctx, want); err != nil {
		t.Fatal(err)
	}
	got := up.Get(ctx, "u1")
	if got == nil || got.Tier != core.TierPremium || !got.PrefersCategory("books") || !got.HasSegment("high_value") {
		t.Fatalf("Get() = %+v", got)
	}
	if segs := up.Segments(ctx, "u1"); len(segs) != 1 {
		t.Errorf("Segments() = %v", segs)
	}
	if up.Get(ctx, "nobody") != nil {
		t.Error("unknown user should be absent")
	}
}

func TestUserProvider_HistoryOrder(t *testing.T) {
	ctx := context.Background()
	up := NewUserProvider(newTestStore(t), nil, zerolog.Nop())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, pid := range []string{"p1", "p2", "p3"} {
		err := up.RecordInteraction(ctx, core.Interaction{
			UserID: "u1", ProductID: pid, Kind: core.KindView, Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	_ = up.RecordInteraction(ctx, core.Interaction{UserID: "u2", ProductID: "x", Kind: core.KindClick})

	h := up.History(ctx, "u1", 2)
	if len(h) != 2 || h[0].ProductID != "p3" || h[1].ProductID != "p2" {
		t.Fatalf("History() = %+v", h)
	}
	if h[0].Kind != core.KindView || !h[0].Timestamp.Equal(base.Add(2*time.Hour)) {
		t.Errorf("decoded interaction = %+v", h[0])
	}

	u2 := up.History(ctx, "u2", 10)
	if len(u2) != 1 || u2[0].Timestamp.IsZero() {
		t.Errorf("zero timestamp should be filled: %+v", u2)
	}
}

func TestUserProvider_SyntheticFallback(t *testing.T) {
	ctx := context.Background()
	synth := NewSyntheticData("test_", "product_")

	on := NewUserProvider(newTestStore(t), synth, zerolog.Nop())
	if u := on.Get(ctx, "test_10"); u == nil || !u.IsPremium() {
		t.Errorf("synthetic user = %+v", u)
	}
	if h := on.History(ctx, "test_10", 100); len(h) == 0 {
		t.Error("synthetic history expected")
	}
	if on.Get(ctx, "u1") != nil {
		t.Error("non-prefixed ids must not be synthesised")
	}

	off := NewUserProvider(newTestStore(t), nil, zerolog.Nop())
	if off.Get(ctx, "test_10") != nil || len(off.History(ctx, "test_10", 100)) != 0 {
		t.Error("fallback disabled: test_ users must be absent")
	}
}

func TestUserProvider_StoreFailures(t *testing.T) {
	ctx := context.Background()
	up := NewUserProvider(failingStore{}, NewSyntheticData("", ""), zerolog.Nop())

	if up.Get(ctx, "test_1") != nil {
		t.Error("read failure should be absorbed as absent")
	}
	if h := up.History(ctx, "u1", 10); len(h) != 0 {
		t.Error("read failure should be absorbed as empty")
	}
	err := up.RecordInteraction(ctx, core.Interaction{UserID: "u1", ProductID: "p1", Kind: core.KindView})
	if !core.IsUnavailable(err) {
		t.Errorf("RecordInteraction error = %v, want UNAVAILABLE", err)
	}
	if _, err := up.IDs(ctx); !core.IsUnavailable(err) {
		t.Errorf("IDs() error = %v, want UNAVAILABLE", err)
	}
}

func TestUserProvider_IDs(t *testing.T) {
	ctx := context.Background()
	up := NewUserProvider(newTestStore(t), nil, zerolog.Nop())
	for _, id := range []string{"u3", "u1", "u2"} {
		if err := up.SaveUser(ctx, &core.UserProfile{ID: id, Tier: core.TierBasic}); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := up.IDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(ids, []string{"u1", "u2", "u3"}) {
		t.Errorf("IDs() = %v", ids)
	}
}

func TestProductProvider_CatalogAndCache(t *testing.T) {
	ctx := context.Background()
	ds := newTestStore(t)
	pp := NewProductProvider(ds, nil, ProductOptions{Logger: zerolog.Nop()})

	products := []*core.Product{
		{ID: "p1", Category: "books", InStock: true, Price: 10, Popularity: 0.5, Rating: 4},
		{ID: "p2", Category: "books", InStock: false},
		{ID: "p3", Category: "home", InStock: true, Attributes: map[string]any{"color": "red"}},
	}
	for _, p := range products {
		if err := pp.SaveProduct(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	if got := pp.Candidates(ctx, "", 1000); len(got) != 3 {
		t.Errorf("Candidates(all) = %d", len(got))
	}
	if got := pp.Candidates(ctx, "books", 1000); len(got) != 2 {
		t.Errorf("Candidates(books) = %d", len(got))
	}
	if got := pp.Candidates(ctx, "", 1); len(got) != 1 {
		t.Errorf("limit not applied: %d", len(got))
	}

	if !pp.IsAvailable(ctx, "p1") || pp.IsAvailable(ctx, "p2") || pp.IsAvailable(ctx, "missing") {
		t.Error("IsAvailable mismatch")
	}
	if p := pp.Get(ctx, "p3"); p == nil || p.Attributes["color"] != "red" {
		t.Errorf("Get(p3) = %+v", p)
	}

	sim := pp.Similar(ctx, "p1", 10)
	if len(sim) != 1 || sim[0].ID != "p2" {
		t.Errorf("Similar(p1) = %v", core.ProductIDs(sim))
	}

	// 缓存命中时不访问存储
	_, _ = ds.DeleteOne(ctx, CollectionProducts, core.Filter{"id": "p1"})
	if pp.Get(ctx, "p1") == nil {
		t.Error("cached product should be served from the lookup cache")
	}
}

func TestProductProvider_SyntheticFallback(t *testing.T) {
	ctx := context.Background()
	pp := NewProductProvider(newTestStore(t), NewSyntheticData("", ""), ProductOptions{Logger: zerolog.Nop()})

	c := pp.Candidates(ctx, "", 1000)
	if len(c) != 100 || c[0].ID != "product_1000" {
		t.Fatalf("synthetic candidates = %d", len(c))
	}
	if pp.IsAvailable(ctx, "product_1000") {
		t.Error("product_1000 is out of stock")
	}
	if !pp.IsAvailable(ctx, "product_1001") {
		t.Error("product_1001 should be available")
	}

	books := pp.Candidates(ctx, "books", 1000)
	for _, p := range books {
		if p.Category != "books" {
			t.Fatalf("category override missing: %+v", p)
		}
	}
	// 单品查询保持原始类目
	if p := pp.Get(ctx, "product_1000"); p.Category != "electronics" {
		t.Errorf("Get after scoped candidates = %q, want electronics", p.Category)
	}

	sim := pp.Similar(ctx, "product_1001", 5)
	if len(sim) != 5 {
		t.Errorf("Similar() = %d", len(sim))
	}
	for _, p := range sim {
		if p.ID == "product_1001" {
			t.Error("Similar must exclude the source product")
		}
	}
}

func TestProductProvider_FallbackDisabled(t *testing.T) {
	ctx := context.Background()
	pp := NewProductProvider(newTestStore(t), nil, ProductOptions{Logger: zerolog.Nop()})
	if len(pp.Candidates(ctx, "", 100)) != 0 {
		t.Error("empty catalog without fallback must yield no candidates")
	}
	if pp.Get(ctx, "product_1") != nil {
		t.Error("product_ ids must be absent when fallback is disabled")
	}
}

func TestProductProvider_StoreFailures(t *testing.T) {
	ctx := context.Background()
	pp := NewProductProvider(failingStore{}, NewSyntheticData("", ""), ProductOptions{Logger: zerolog.Nop()})
	if pp.Get(ctx, "product_1") != nil || pp.IsAvailable(ctx, "product_1") {
		t.Error("read failure should be absent/false")
	}
	if len(pp.Candidates(ctx, "", 10)) != 0 || len(pp.Similar(ctx, "product_1", 10)) != 0 {
		t.Error("read failure should be empty")
	}
}
