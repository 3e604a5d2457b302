package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AddLibrary 添加素材库
// 路径唯一，重复添加返回已有记录
func (s *Store) AddLibrary(path string) (*Library, error) {
	if existing, err := s.GetLibraryByPath(path); err == nil {
		return existing, nil
	} else if err != ErrNotFound {
		return nil, err
	}

	lib := &Library{
		ID:        uuid.NewString(),
		Path:      path,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(`
		INSERT INTO libraries (id, path, created_at)
		VALUES (?, ?, ?)
	`, lib.ID, lib.Path, lib.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to add library: %w", err)
	}

	return lib, nil
}

// GetLibrary 按ID获取素材库
func (s *Store) GetLibrary(id string) (*Library, error) {
	return s.scanLibrary(s.db.QueryRow(`
		SELECT id, path, created_at FROM libraries WHERE id = ?
	`, id))
}

// GetLibraryByPath 按路径获取素材库
func (s *Store) GetLibraryByPath(path string) (*Library, error) {
	return s.scanLibrary(s.db.QueryRow(`
		SELECT id, path, created_at FROM libraries WHERE path = ?
	`, path))
}

// ListLibraries 列出所有素材库
func (s *Store) ListLibraries() ([]Library, error) {
	rows, err := s.db.Query(`
		SELECT id, path, created_at FROM libraries ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list libraries: %w", err)
	}
	defer rows.Close()

	var libs []Library
	for rows.Next() {
		var lib Library
		var createdAt string
		if err := rows.Scan(&lib.ID, &lib.Path, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan library: %w", err)
		}
		lib.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		libs = append(libs, lib)
	}

	return libs, rows.Err()
}

// RemoveLibrary 删除素材库及其全部资产和向量
func (s *Store) RemoveLibrary(id string) error {
	// 先删向量影子副本（外键级联只覆盖assets行）
	ids, err := s.assetIDsByLibrary(id)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	hasVec, err := s.hasVectorTable()
	if err != nil {
		return err
	}
	if hasVec {
		for _, assetID := range ids {
			if _, err := tx.Exec(`DELETE FROM vectors_vec WHERE asset_id = ?`, assetID); err != nil {
				return fmt.Errorf("failed to delete vector: %w", err)
			}
		}
	}

	if _, err := tx.Exec(`DELETE FROM assets WHERE library_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete assets: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM libraries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete library: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// assetIDsByLibrary 列出素材库下所有资产ID
func (s *Store) assetIDsByLibrary(libraryID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM assets WHERE library_id = ?`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// scanLibrary 扫描单行素材库记录
func (s *Store) scanLibrary(row *sql.Row) (*Library, error) {
	var lib Library
	var createdAt string

	err := row.Scan(&lib.ID, &lib.Path, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan library: %w", err)
	}

	lib.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &lib, nil
}
