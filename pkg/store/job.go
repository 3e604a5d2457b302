package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateJob 创建任务记录，初始状态为queued
func (s *Store) CreateJob(id string) (*Job, error) {
	now := time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO jobs (id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, id, string(JobQueued), now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	return &Job{ID: id, Status: JobQueued, CreatedAt: now, UpdatedAt: now}, nil
}

// UpdateJob 更新任务记录
// 状态单向推进：终态之后的写入会被拒绝
func (s *Store) UpdateJob(j *Job) error {
	var current string
	err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = ?`, j.ID).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("failed to read job status: %w", err)
	}

	if JobStatus(current).Terminal() {
		return fmt.Errorf("job %s already terminal (%s)", j.ID, current)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		UPDATE jobs SET status = ?, processed = ?, total = ?, message = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, string(j.Status), j.Processed, j.Total, j.Message, j.Error, now.Format(time.RFC3339), j.ID)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	j.UpdatedAt = now
	return nil
}

// GetJob 按ID获取任务记录
func (s *Store) GetJob(id string) (*Job, error) {
	return s.scanJob(s.db.QueryRow(jobSelect+` WHERE id = ?`, id))
}

// LatestJob 获取最近一次任务记录
func (s *Store) LatestJob() (*Job, error) {
	return s.scanJob(s.db.QueryRow(jobSelect + ` ORDER BY created_at DESC LIMIT 1`))
}

// PruneJobs 只保留最近的任务记录，历史记录被新任务取代后清除
func (s *Store) PruneJobs(keep int) error {
	if keep <= 0 {
		keep = 1
	}

	_, err := s.db.Exec(`
		DELETE FROM jobs WHERE id NOT IN (
			SELECT id FROM jobs ORDER BY created_at DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune jobs: %w", err)
	}

	return nil
}

const jobSelect = `
	SELECT id, status, processed, total, message, error, created_at, updated_at
	FROM jobs`

func (s *Store) scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var status, createdAt, updatedAt string

	err := row.Scan(&j.ID, &status, &j.Processed, &j.Total, &j.Message, &j.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	j.Status = JobStatus(status)
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}
