package store

import (
	"fmt"
	"time"
)

// GetStatus 索引状态投影（只读）
func (s *Store) GetStatus() (*Status, error) {
	st := &Status{}

	if err := s.db.QueryRow(`
		SELECT COUNT(*) FROM assets WHERE status = 'ok'
	`).Scan(&st.TotalAssets); err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}

	if err := s.db.QueryRow(`
		SELECT COUNT(*) FROM assets WHERE status = 'ok' AND length(ocr_text) > 0
	`).Scan(&st.WithOCR); err != nil {
		return nil, fmt.Errorf("failed to count ocr assets: %w", err)
	}

	if err := s.db.QueryRow(`
		SELECT COUNT(*) FROM assets WHERE status = 'failed'
	`).Scan(&st.FailedAssets); err != nil {
		return nil, fmt.Errorf("failed to count failed assets: %w", err)
	}

	if err := s.db.QueryRow(`
		SELECT COUNT(*) FROM libraries
	`).Scan(&st.Libraries); err != nil {
		return nil, fmt.Errorf("failed to count libraries: %w", err)
	}

	var last string
	err := s.db.QueryRow(`
		SELECT COALESCE(MAX(indexed_at), '') FROM assets WHERE status = 'ok'
	`).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to read last index time: %w", err)
	}
	if last != "" {
		st.LastIndexedAt, _ = time.Parse(time.RFC3339, last)
	}

	return st, nil
}
