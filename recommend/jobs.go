package recommend

import (
	"sync"
	"time"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/metrics"
)

// DefaultMaxJobs 是任务表默认容量。
const DefaultMaxJobs = 1000

// Jobs 是批处理 worker 修改任务状态的接口。
// 状态迁移：queued -> running -> completed|failed，queued -> failed；非法迁移返回 INVALID_INPUT。
type Jobs interface {
	// Start 把任务置为 running 并设置总用户数
	Start(id string, total int) error
	// Advance 累加已处理用户数，errMsg 非空时追加到错误列表
	Advance(id string, processed int, errMsg string) error
	// Finish 结束任务：err 为 nil 时 completed，否则 failed
	Finish(id string, err error) error
}

// JobTable 是进程内的批量任务表。
//
// 容量满时淘汰最早创建的终态任务；queued / running 任务不会被淘汰，
// 全部为活跃任务时拒绝新建。
type JobTable struct {
	mu      sync.Mutex
	maxJobs int
	jobs    map[string]*core.BatchJob
	order   []string
	now     func() time.Time
}

func NewJobTable(maxJobs int) *JobTable {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}
	return &JobTable{
		maxJobs: maxJobs,
		jobs:    make(map[string]*core.BatchJob),
		now:     time.Now,
	}
}

// Create 新建 queued 任务。
func (t *JobTable) Create(id string) (core.BatchJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[id]; ok {
		return core.BatchJob{}, core.InvalidInput(core.ModuleBatch, "job %s already exists", id)
	}
	if len(t.jobs) >= t.maxJobs && !t.evictLocked() {
		return core.BatchJob{}, core.Unavailable(core.ModuleBatch, "batch job table full", nil)
	}

	now := t.now().UTC()
	job := &core.BatchJob{
		ID:        id,
		Status:    core.JobQueued,
		Errors:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.jobs[id] = job
	t.order = append(t.order, id)
	return job.Snapshot(), nil
}

// evictLocked 淘汰最早的终态任务，没有可淘汰的返回 false。
func (t *JobTable) evictLocked() bool {
	for i, id := range t.order {
		if t.jobs[id].Status.Terminal() {
			delete(t.jobs, id)
			t.order = append(t.order[:i], t.order[i+1:]...)
			return true
		}
	}
	return false
}

// Get 返回任务快照。
func (t *JobTable) Get(id string) (core.BatchJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return core.BatchJob{}, core.ErrJobNotFound
	}
	return job.Snapshot(), nil
}

// Len 返回任务数。
func (t *JobTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}

func (t *JobTable) Start(id string, total int) error {
	if total < 0 {
		return core.InvalidInput(core.ModuleBatch, "job %s: negative total %d", id, total)
	}
	return t.transition(id, core.JobRunning, func(j *core.BatchJob) error {
		if j.Status != core.JobQueued {
			return core.InvalidInput(core.ModuleBatch, "job %s: already %s", id, j.Status)
		}
		j.TotalUsers = total
		return nil
	})
}

func (t *JobTable) Advance(id string, processed int, errMsg string) error {
	if processed < 0 {
		return core.InvalidInput(core.ModuleBatch, "job %s: negative progress %d", id, processed)
	}
	return t.transition(id, core.JobRunning, func(j *core.BatchJob) error {
		if j.Status != core.JobRunning {
			return core.InvalidInput(core.ModuleBatch, "job %s: not running (%s)", id, j.Status)
		}
		j.ProcessedUsers += processed
		if errMsg != "" {
			j.Errors = append(j.Errors, errMsg)
		}
		return nil
	})
}

func (t *JobTable) Finish(id string, err error) error {
	to := core.JobCompleted
	if err != nil {
		to = core.JobFailed
	}
	return t.transition(id, to, func(j *core.BatchJob) error {
		if err != nil {
			j.Errors = append(j.Errors, err.Error())
		}
		return nil
	})
}

func (t *JobTable) transition(id string, to core.JobStatus, apply func(*core.BatchJob) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return core.ErrJobNotFound
	}
	if !job.Status.CanTransition(to) {
		return core.InvalidInput(core.ModuleBatch, "job %s: invalid transition %s -> %s", id, job.Status, to)
	}
	if err := apply(job); err != nil {
		return err
	}
	// 已处理数不超过总数
	if job.TotalUsers > 0 && job.ProcessedUsers > job.TotalUsers {
		job.ProcessedUsers = job.TotalUsers
	}
	job.Status = to
	job.UpdatedAt = t.now().UTC()
	if to.Terminal() {
		metrics.BatchJobs.WithLabelValues(string(to)).Inc()
	}
	return nil
}

var _ Jobs = (*JobTable)(nil)
