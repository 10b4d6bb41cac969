package store

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/rushteam/recserve/core"
)

func TestMemoryStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	if _, err := s.Get(ctx, "missing"); !core.IsStoreNotFound(err) {
		t.Fatalf("Get(missing) error = %v, want not found", err)
	}

	if err := s.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get(k) = %q, %v", got, err)
	}

	n, err := s.Delete(ctx, "k", "missing")
	if err != nil || n != 1 {
		t.Fatalf("Delete() = %d, %v, want 1", n, err)
	}
	if _, err := s.Get(ctx, "k"); !core.IsStoreNotFound(err) {
		t.Errorf("Get after delete error = %v, want not found", err)
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	if err := s.Set(ctx, "short", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := s.Get(ctx, "short"); !core.IsStoreNotFound(err) {
		t.Errorf("expired key error = %v, want not found", err)
	}
}

func TestMemoryStore_ScanPages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	for i := 0; i < 25; i++ {
		_ = s.Set(ctx, fmt.Sprintf("recommendations:u1:%02d", i), []byte("x"), 0)
	}
	_ = s.Set(ctx, "recommendations:u10:a", []byte("x"), 0)
	_ = s.Set(ctx, "other", []byte("x"), 0)

	var (
		cursor uint64
		seen   []string
		pages  int
	)
	for {
		keys, next, err := s.Scan(ctx, cursor, "recommendations:u1:", 10)
		if err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		pages++
		if len(keys) > 10 {
			t.Fatalf("page size = %d, want <= 10", len(keys))
		}
		seen = append(seen, keys...)
		if next == 0 {
			break
		}
		cursor = next
	}

	if len(seen) != 25 {
		t.Fatalf("scanned %d keys, want 25", len(seen))
	}
	if pages < 3 {
		t.Errorf("pages = %d, want >= 3", pages)
	}
	if !sort.StringsAreSorted(seen) {
		t.Errorf("scan order not sorted")
	}
}

func TestMemoryStore_ScanWhileDeleting(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	for i := 0; i < 30; i++ {
		_ = s.Set(ctx, fmt.Sprintf("p:%02d", i), []byte("x"), 0)
	}

	var cursor uint64
	var deleted int64
	for {
		keys, next, err := s.Scan(ctx, cursor, "p:", 7)
		if err != nil {
			t.Fatal(err)
		}
		n, _ := s.Delete(ctx, keys...)
		deleted += n
		if next == 0 {
			break
		}
		cursor = next
	}
	if deleted != 30 {
		t.Errorf("deleted = %d, want 30", deleted)
	}

	// 删除后重新写入同一个 key，索引不重复
	_ = s.Set(ctx, "p:00", []byte("y"), 0)
	s.compact()
	keys, _, _ := s.Scan(ctx, 0, "p:", 100)
	if len(keys) != 1 || keys[0] != "p:00" {
		t.Errorf("keys after compact = %v", keys)
	}
}

func TestMemoryStore_ScanSurvivesCompaction(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	for i := 0; i < 250; i++ {
		_ = s.Set(ctx, fmt.Sprintf("recommendations:u1:%03d", i), []byte("x"), 0)
	}
	_ = s.Set(ctx, "recommendations:u2:a", []byte("x"), 0)

	var (
		cursor  uint64
		deleted int64
		pages   int
	)
	for {
		keys, next, err := s.Scan(ctx, cursor, "recommendations:u1:", 100)
		if err != nil {
			t.Fatal(err)
		}
		n, _ := s.Delete(ctx, keys...)
		deleted += n
		pages++
		// 索引压缩发生在两页之间
		s.compact()
		if next == 0 {
			break
		}
		cursor = next
	}
	if deleted != 250 {
		t.Errorf("deleted = %d, want 250", deleted)
	}
	if keys, _, _ := s.Scan(ctx, 0, "recommendations:u1:", 1000); len(keys) != 0 {
		t.Errorf("%d keys left after prefix delete", len(keys))
	}
	if _, err := s.Get(ctx, "recommendations:u2:a"); err != nil {
		t.Errorf("other user's key removed: %v", err)
	}
	if pages != 3 {
		t.Errorf("pages = %d, want 3", pages)
	}
}

func TestMemoryStore_ScanInsertBetweenPages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	for i := 0; i < 20; i++ {
		_ = s.Set(ctx, fmt.Sprintf("p:%02d", i*2), []byte("x"), 0)
	}
	keys, next, err := s.Scan(ctx, 0, "p:", 10)
	if err != nil || next == 0 {
		t.Fatalf("Scan() = %v, %d, %v", keys, next, err)
	}
	// 在已返回区间内插入，后续页不能因位置偏移而重复或漏掉
	_ = s.Set(ctx, "p:01", []byte("x"), 0)
	seen := map[string]int{}
	for _, k := range keys {
		seen[k]++
	}
	for next != 0 {
		keys, next, err = s.Scan(ctx, next, "p:", 10)
		if err != nil {
			t.Fatal(err)
		}
		for _, k := range keys {
			seen[k]++
		}
	}
	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("p:%02d", i*2)
		if seen[k] != 1 {
			t.Errorf("key %s seen %d times, want 1", k, seen[k])
		}
	}
}

func TestMemoryStore_UnknownCursorRestarts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	for i := 0; i < 5; i++ {
		_ = s.Set(ctx, fmt.Sprintf("p:%d", i), []byte("x"), 0)
	}
	_, next, _ := s.Scan(ctx, 0, "p:", 2)
	s.expireCursors(time.Now().Add(2 * cursorTTL))

	keys, _, err := s.Scan(ctx, next, "p:", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "p:0" {
		t.Errorf("keys after expired cursor = %v, want restart from p:0", keys)
	}
}

func TestMemoryStore_Flush(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	_ = s.Set(ctx, "a", []byte("1"), 0)
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "a"); !core.IsStoreNotFound(err) {
		t.Errorf("Get after flush error = %v", err)
	}
}

func TestEscapePattern(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"recommendations:u1:", "recommendations:u1:"},
		{"recommendations:a*b:", `recommendations:a\*b:`},
		{"x?[y]", `x\?\[y\]`},
	}
	for _, tt := range tests {
		if got := EscapePattern(tt.in); got != tt.want {
			t.Errorf("EscapePattern(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
