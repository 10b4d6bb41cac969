package core

import (
	"slices"
	"time"
)

// JobStatus 是批量任务状态。
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal 是否为终态。
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition 校验状态迁移：queued -> running -> completed|failed，queued -> failed。
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobQueued:
		return to == JobRunning || to == JobFailed
	case JobRunning:
		return to == JobRunning || to == JobCompleted || to == JobFailed
	default:
		return false
	}
}

// BatchJob 是批量推荐任务的状态快照。
type BatchJob struct {
	ID             string    `json:"job_id"`
	Status         JobStatus `json:"status"`
	TotalUsers     int       `json:"total_users"`
	ProcessedUsers int       `json:"processed_users"`
	Errors         []string  `json:"errors"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Snapshot 深拷贝，调用方拿到的快照不会与任务表共享内存。
func (j *BatchJob) Snapshot() BatchJob {
	cp := *j
	cp.Errors = slices.Clone(j.Errors)
	if cp.Errors == nil {
		cp.Errors = []string{}
	}
	return cp
}
