// Package batch 是批量推荐再生成的后台 worker。
//
// worker 只依赖任务表的修改接口（recommend.Jobs）：从队列取出任务 ID，
// 列出全部用户，按批并发刷新每个用户的推荐缓存，并持续上报进度。
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/recserve/metrics"
	"github.com/rushteam/recserve/recommend"
)

// ErrQueueFull 表示待执行任务过多，新任务直接失败。
var ErrQueueFull = errors.New("batch: queue full")

// Refresher 重新生成单个用户的推荐，recommend.Service 实现了它。
type Refresher interface {
	Refresh(ctx context.Context, userID string) error
}

// UserLister 列出需要再生成的用户，provider.UserProvider 实现了它。
type UserLister interface {
	IDs(ctx context.Context) ([]string, error)
}

// Options 是 Worker 的参数。
type Options struct {
	// Workers 单批内的并发数，0 表示 4
	Workers int
	// Size 每批用户数，每批结束上报一次进度，0 表示 100
	Size int
	// QueueSize 待执行任务队列长度，0 表示 16
	QueueSize int
	Logger    zerolog.Logger
}

// Worker 串行执行批量任务，单个任务内按批并发。实现 suture.Service 与 recommend.Dispatcher。
type Worker struct {
	jobs      recommend.Jobs
	refresher Refresher
	users     UserLister
	queue     chan string
	opts      Options
	log       zerolog.Logger
}

func NewWorker(jobs recommend.Jobs, refresher Refresher, users UserLister, opts Options) *Worker {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Size <= 0 {
		opts.Size = 100
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	return &Worker{
		jobs:      jobs,
		refresher: refresher,
		users:     users,
		queue:     make(chan string, opts.QueueSize),
		opts:      opts,
		log:       opts.Logger.With().Str("service", "batch").Logger(),
	}
}

// Dispatch 把任务放入队列；队列已满时任务立即置为 failed。
func (w *Worker) Dispatch(jobID string) {
	select {
	case w.queue <- jobID:
	default:
		w.log.Warn().Str("job_id", jobID).Msg("batch queue full, job failed")
		if err := w.jobs.Finish(jobID, ErrQueueFull); err != nil {
			w.log.Error().Err(err).Str("job_id", jobID).Msg("finish job")
		}
	}
}

// Serve 实现 suture.Service：循环执行队列中的任务直到 ctx 结束。
func (w *Worker) Serve(ctx context.Context) error {
	w.log.Info().
		Int("workers", w.opts.Workers).
		Int("size", w.opts.Size).
		Msg("batch worker running")
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("batch worker shutting down")
			w.drain(ctx.Err())
			return ctx.Err()
		case id := <-w.queue:
			if err := w.Run(ctx, id); err != nil {
				w.log.Warn().Err(err).Str("job_id", id).Msg("batch job failed")
			}
		}
	}
}

// drain 把队列中尚未执行的任务置为 failed，保证状态查询最终看到终态。
func (w *Worker) drain(cause error) {
	for {
		select {
		case id := <-w.queue:
			if err := w.jobs.Finish(id, cause); err != nil {
				w.log.Error().Err(err).Str("job_id", id).Msg("finish job")
			}
		default:
			return
		}
	}
}

// Run 执行一个任务。用户列表读取失败或 ctx 取消时任务为 failed；
// 单个用户刷新失败只记录到任务错误列表，不影响其他用户。
func (w *Worker) Run(ctx context.Context, jobID string) (err error) {
	defer func() {
		if ferr := w.jobs.Finish(jobID, err); ferr != nil {
			w.log.Error().Err(ferr).Str("job_id", jobID).Msg("finish job")
		}
	}()

	ids, err := w.users.IDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if err := w.jobs.Start(jobID, len(ids)); err != nil {
		return err
	}
	w.log.Info().Str("job_id", jobID).Int("users", len(ids)).Msg("batch job started")

	for start := 0; start < len(ids); start += w.opts.Size {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+w.opts.Size, len(ids))
		ok, failures := w.refreshChunk(ctx, ids[start:end])
		if err := w.jobs.Advance(jobID, ok, ""); err != nil {
			return err
		}
		for _, msg := range failures {
			if err := w.jobs.Advance(jobID, 0, msg); err != nil {
				return err
			}
		}
		metrics.BatchUsersProcessed.Add(float64(ok))
	}
	w.log.Info().Str("job_id", jobID).Msg("batch job completed")
	return nil
}

// refreshChunk 并发刷新一批用户，返回成功数与失败描述。
func (w *Worker) refreshChunk(ctx context.Context, ids []string) (int, []string) {
	var (
		mu       sync.Mutex
		ok       int
		failures []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := w.refresher.Refresh(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Sprintf("user %s: %v", id, err))
				return nil
			}
			ok++
			return nil
		})
	}
	_ = g.Wait()
	return ok, failures
}

// String 实现 fmt.Stringer，suture 用它标识服务。
func (w *Worker) String() string {
	return "batch-worker"
}

var _ recommend.Dispatcher = (*Worker)(nil)
