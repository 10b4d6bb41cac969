package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/recserve/core"
)

// flakyStore 在 fail 为 true 时所有调用返回错误。
type flakyStore struct {
	*BadgerStore
	fail  bool
	delay time.Duration
	calls int
}

func (f *flakyStore) FindOne(ctx context.Context, collection string, filter core.Filter) (core.Document, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail {
		return nil, core.Unavailable(core.ModuleDocStore, "flaky", errors.New("connection refused"))
	}
	return f.BadgerStore.FindOne(ctx, collection, filter)
}

func TestGuard_TripsAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{BadgerStore: openTestBadger(t), fail: true}
	g := NewGuard(inner, GuardOptions{BreakerFailures: 3, BreakerTimeout: time.Hour, Logger: zerolog.Nop()})

	for i := 0; i < 3; i++ {
		if _, err := g.FindOne(ctx, "users", core.Filter{"id": "u1"}); !core.IsUnavailable(err) {
			t.Fatalf("call %d error = %v, want UNAVAILABLE", i, err)
		}
	}
	if g.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", g.State())
	}

	_, err := g.FindOne(ctx, "users", core.Filter{"id": "u1"})
	if !core.IsUnavailable(err) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("open breaker error = %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("backend calls = %d, want 3 (open breaker must short-circuit)", inner.calls)
	}
}

func TestGuard_InvalidInputDoesNotTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestBadger(t)
	g := NewGuard(s, GuardOptions{BreakerFailures: 1, Logger: zerolog.Nop()})

	if _, err := g.CreateIndex(ctx, "users", core.IndexSpec{}); !core.IsInvalidInput(err) {
		t.Fatalf("CreateIndex(empty) error = %v", err)
	}
	if g.State() != gobreaker.StateClosed {
		t.Errorf("state = %v, want closed", g.State())
	}
}

func TestGuard_Timeout(t *testing.T) {
	ctx := context.Background()
	inner := &flakyStore{BadgerStore: openTestBadger(t), delay: time.Second}
	g := NewGuard(inner, GuardOptions{OpTimeout: 20 * time.Millisecond, Logger: zerolog.Nop()})

	start := time.Now()
	_, err := g.FindOne(ctx, "users", core.Filter{"id": "u1"})
	if !core.IsUnavailable(err) {
		t.Errorf("timeout error = %v, want UNAVAILABLE", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("timeout not applied, took %v", time.Since(start))
	}
}

func TestGuard_PassThrough(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(openTestBadger(t), GuardOptions{Logger: zerolog.Nop()})

	if _, err := g.InsertOne(ctx, "products", core.Document{"id": "p1"}); err != nil {
		t.Fatal(err)
	}
	docs, err := g.FindMany(ctx, "products", core.Filter{}, core.FindOptions{})
	if err != nil || len(docs) != 1 {
		t.Fatalf("FindMany() = %v, %v", docs, err)
	}
	if g.Name() != "badger" {
		t.Errorf("Name() = %q", g.Name())
	}
}
