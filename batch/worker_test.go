package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/recommend"
)

type fakeRefresher struct {
	mu      sync.Mutex
	seen    map[string]int
	failFor map[string]bool
}

func (f *fakeRefresher) Refresh(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]int{}
	}
	f.seen[userID]++
	if f.failFor[userID] {
		return core.Unavailable(core.ModuleService, "refresh", errors.New("boom"))
	}
	return nil
}

type fakeLister struct {
	ids []string
	err error
}

func (f fakeLister) IDs(context.Context) ([]string, error) { return f.ids, f.err }

func userIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%03d", i)
	}
	return ids
}

func TestWorker_Run(t *testing.T) {
	jobs := recommend.NewJobTable(10)
	_, _ = jobs.Create("j1")
	r := &fakeRefresher{failFor: map[string]bool{"u007": true}}
	w := NewWorker(jobs, r, fakeLister{ids: userIDs(25)}, Options{Workers: 3, Size: 10})

	if err := w.Run(context.Background(), "j1"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	job, _ := jobs.Get("j1")
	if job.Status != core.JobCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}
	if job.TotalUsers != 25 || job.ProcessedUsers != 24 {
		t.Errorf("total/processed = %d/%d, want 25/24", job.TotalUsers, job.ProcessedUsers)
	}
	if len(job.Errors) != 1 || !strings.Contains(job.Errors[0], "u007") {
		t.Errorf("errors = %v", job.Errors)
	}
	if len(r.seen) != 25 {
		t.Errorf("refreshed %d users, want 25", len(r.seen))
	}
}

func TestWorker_RunListFailure(t *testing.T) {
	jobs := recommend.NewJobTable(10)
	_, _ = jobs.Create("j1")
	w := NewWorker(jobs, &fakeRefresher{}, fakeLister{err: errors.New("db down")}, Options{})

	if err := w.Run(context.Background(), "j1"); err == nil {
		t.Fatal("Run() succeeded, want error")
	}
	job, _ := jobs.Get("j1")
	if job.Status != core.JobFailed || len(job.Errors) != 1 {
		t.Errorf("job = %+v", job)
	}
}

func TestWorker_RunCanceled(t *testing.T) {
	jobs := recommend.NewJobTable(10)
	_, _ = jobs.Create("j1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := NewWorker(jobs, &fakeRefresher{}, fakeLister{ids: userIDs(5)}, Options{})

	if err := w.Run(ctx, "j1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want canceled", err)
	}
	job, _ := jobs.Get("j1")
	if job.Status != core.JobFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
}

func TestWorker_ServeAndDispatch(t *testing.T) {
	jobs := recommend.NewJobTable(10)
	w := NewWorker(jobs, &fakeRefresher{}, fakeLister{ids: userIDs(3)}, Options{QueueSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx) }()

	_, _ = jobs.Create("j1")
	w.Dispatch("j1")

	deadline := time.Now().Add(2 * time.Second)
	for {
		job, _ := jobs.Get("j1")
		if job.Status == core.JobCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job not completed: %+v", job)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v", err)
	}
}

func TestWorker_DispatchQueueFull(t *testing.T) {
	jobs := recommend.NewJobTable(10)
	w := NewWorker(jobs, &fakeRefresher{}, fakeLister{}, Options{QueueSize: 1})
	_, _ = jobs.Create("j1")
	_, _ = jobs.Create("j2")

	w.Dispatch("j1")
	w.Dispatch("j2")

	job, _ := jobs.Get("j2")
	if job.Status != core.JobFailed || len(job.Errors) != 1 || job.Errors[0] != ErrQueueFull.Error() {
		t.Errorf("overflow job = %+v", job)
	}
	if job, _ := jobs.Get("j1"); job.Status != core.JobQueued {
		t.Errorf("queued job = %+v", job)
	}
}

func TestWorker_ServeDrainsQueueOnShutdown(t *testing.T) {
	jobs := recommend.NewJobTable(10)
	w := NewWorker(jobs, &fakeRefresher{}, fakeLister{ids: userIDs(3)}, Options{QueueSize: 4})

	for _, id := range []string{"j1", "j2"} {
		_, _ = jobs.Create(id)
		w.Dispatch(id)
	}

	// ctx 已结束：Serve 不执行任务，只清空队列
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Serve() error = %v, want canceled", err)
	}

	for _, id := range []string{"j1", "j2"} {
		job, err := jobs.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status != core.JobFailed {
			t.Errorf("%s status = %s, want failed", id, job.Status)
		}
		if len(job.Errors) != 1 || !strings.Contains(job.Errors[0], "canceled") {
			t.Errorf("%s errors = %v", id, job.Errors)
		}
	}
}
