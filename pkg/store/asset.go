package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
)

// UpsertAsset 写入资产元数据和嵌入向量
// 两者在同一事务中提交：读者永远不会看到只有其一的状态。
// 路径已存在时复用原有资产ID（ID跨重索引保持稳定），返回最终ID。
func (s *Store) UpsertAsset(a *Asset, embedding []float32) (string, error) {
	if len(embedding) == 0 {
		return "", fmt.Errorf("empty embedding")
	}

	if err := s.ensureVectorTable(len(embedding)); err != nil {
		return "", err
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return "", fmt.Errorf("failed to serialize vector: %w", err)
	}

	// 路径冲突时保留已有ID
	id := a.ID
	var existing string
	err = s.db.QueryRow(`SELECT id FROM assets WHERE path = ?`, a.Path).Scan(&existing)
	if err == nil {
		id = existing
	} else if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to look up asset: %w", err)
	}
	if id == "" {
		id = uuid.NewString()
	}

	dupGroup := a.DupGroup
	if dupGroup == "" {
		// 在去重引擎标注之前，每个资产自成一组
		dupGroup = id
	}

	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO assets (id, library_id, path, size_bytes, mtime_ns, width, height,
			phash, dup_group, quality, textiness, ocr_text, thumb_path, status, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'ok', ?)
		ON CONFLICT(path) DO UPDATE SET
			library_id = excluded.library_id,
			size_bytes = excluded.size_bytes,
			mtime_ns = excluded.mtime_ns,
			width = excluded.width,
			height = excluded.height,
			phash = excluded.phash,
			dup_group = excluded.dup_group,
			quality = excluded.quality,
			textiness = excluded.textiness,
			ocr_text = excluded.ocr_text,
			thumb_path = excluded.thumb_path,
			status = 'ok',
			indexed_at = excluded.indexed_at
	`, id, a.LibraryID, a.Path, a.SizeBytes, a.MTimeNS, a.Width, a.Height,
		int64(a.PHash), dupGroup, a.Quality, a.Textiness, a.OCRText, a.ThumbPath, now)
	if err != nil {
		return "", fmt.Errorf("failed to upsert asset: %w", err)
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO vectors_vec (asset_id, embedding)
		VALUES (?, ?)
	`, id, blob)
	if err != nil {
		return "", fmt.Errorf("failed to store vector: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit asset: %w", err)
	}

	return id, nil
}

// MarkAssetFailed 记录提取失败的资产
// 失败行不参与排序，也不保留向量
func (s *Store) MarkAssetFailed(libraryID, path string, sizeBytes, mtimeNS int64) error {
	id := uuid.NewString()
	var existing string
	err := s.db.QueryRow(`SELECT id FROM assets WHERE path = ?`, path).Scan(&existing)
	if err == nil {
		id = existing
	} else if err != sql.ErrNoRows {
		return fmt.Errorf("failed to look up asset: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO assets (id, library_id, path, size_bytes, mtime_ns, dup_group, status, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, 'failed', ?)
		ON CONFLICT(path) DO UPDATE SET
			size_bytes = excluded.size_bytes,
			mtime_ns = excluded.mtime_ns,
			status = 'failed',
			indexed_at = excluded.indexed_at
	`, id, libraryID, path, sizeBytes, mtimeNS, id, now)
	if err != nil {
		return fmt.Errorf("failed to mark asset failed: %w", err)
	}

	hasVec, err := s.hasVectorTable()
	if err != nil {
		return err
	}
	if hasVec {
		if _, err := tx.Exec(`DELETE FROM vectors_vec WHERE asset_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete stale vector: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteAssets 硬删除资产，级联清理向量
func (s *Store) DeleteAssets(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	hasVec, err := s.hasVectorTable()
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if hasVec {
			if _, err := tx.Exec(`DELETE FROM vectors_vec WHERE asset_id = ?`, id); err != nil {
				return fmt.Errorf("failed to delete vector: %w", err)
			}
		}
		if _, err := tx.Exec(`DELETE FROM assets WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete asset: %w", err)
		}
	}

	return tx.Commit()
}

// GetAsset 按ID获取资产
func (s *Store) GetAsset(id string) (*Asset, error) {
	return s.scanAsset(s.db.QueryRow(assetSelect+` WHERE id = ?`, id))
}

// GetAssetByPath 按路径获取资产
func (s *Store) GetAssetByPath(path string) (*Asset, error) {
	return s.scanAsset(s.db.QueryRow(assetSelect+` WHERE path = ?`, path))
}

// FetchAssets 批量获取资产，跳过不存在的ID
func (s *Store) FetchAssets(ids []string) (map[string]*Asset, error) {
	if len(ids) == 0 {
		return map[string]*Asset{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.Query(assetSelect+` WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*Asset, len(ids))
	for rows.Next() {
		a, err := scanAssetRows(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}

	return out, rows.Err()
}

// FileSignatures 返回素材库下 path → 签名 的映射，供差分比较
func (s *Store) FileSignatures(libraryID string) (map[string]FileSig, error) {
	rows, err := s.db.Query(`
		SELECT id, path, size_bytes, mtime_ns FROM assets WHERE library_id = ?
	`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signatures: %w", err)
	}
	defer rows.Close()

	sigs := make(map[string]FileSig)
	for rows.Next() {
		var sig FileSig
		var path string
		if err := rows.Scan(&sig.AssetID, &path, &sig.SizeBytes, &sig.MTimeNS); err != nil {
			return nil, fmt.Errorf("failed to scan signature: %w", err)
		}
		sigs[path] = sig
	}

	return sigs, rows.Err()
}

// AssetSignatures 返回素材库下成功提取资产的去重签名
func (s *Store) AssetSignatures(libraryID string) ([]AssetSig, error) {
	rows, err := s.db.Query(`
		SELECT id, phash, quality, mtime_ns, textiness, width, height
		FROM assets WHERE library_id = ? AND status = 'ok'
	`, libraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset signatures: %w", err)
	}
	defer rows.Close()

	var sigs []AssetSig
	for rows.Next() {
		var sig AssetSig
		var phash int64
		if err := rows.Scan(&sig.ID, &phash, &sig.Quality, &sig.MTimeNS,
			&sig.Textiness, &sig.Width, &sig.Height); err != nil {
			return nil, fmt.Errorf("failed to scan asset signature: %w", err)
		}
		sig.PHash = uint64(phash)
		sigs = append(sigs, sig)
	}

	return sigs, rows.Err()
}

// UpdateDupGroups 批量更新 dup_group 标注
func (s *Store) UpdateDupGroups(groups map[string]string) error {
	if len(groups) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for id, group := range groups {
		if _, err := tx.Exec(`UPDATE assets SET dup_group = ? WHERE id = ?`, group, id); err != nil {
			return fmt.Errorf("failed to update dup_group: %w", err)
		}
	}

	return tx.Commit()
}

// UpdateQuality 批量更新质量分
func (s *Store) UpdateQuality(scores map[string]float64) error {
	if len(scores) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for id, q := range scores {
		if _, err := tx.Exec(`UPDATE assets SET quality = ? WHERE id = ?`, q, id); err != nil {
			return fmt.Errorf("failed to update quality: %w", err)
		}
	}

	return tx.Commit()
}

// GetEmbedding 获取资产的嵌入向量
// 资产存在且状态正常但向量缺失时返回 ErrCorrupted
func (s *Store) GetEmbedding(assetID string) ([]float32, error) {
	hasVec, err := s.hasVectorTable()
	if err != nil {
		return nil, err
	}
	if !hasVec {
		return nil, ErrNotFound
	}

	var blob []byte
	err = s.db.QueryRow(`
		SELECT embedding FROM vectors_vec WHERE asset_id = ?
	`, assetID).Scan(&blob)

	if err == sql.ErrNoRows {
		// 区分"资产不存在"和"索引损坏"
		var status string
		lookupErr := s.db.QueryRow(`SELECT status FROM assets WHERE id = ?`, assetID).Scan(&status)
		if lookupErr == nil && status == AssetStatusOK {
			return nil, ErrCorrupted
		}
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}

	return decodeVectorBlob(blob)
}

// decodeVectorBlob 解码小端float32向量
// 与 sqlite_vec.SerializeFloat32 的格式互逆
func decodeVectorBlob(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length: %d", len(blob))
	}

	vec := make([]float32, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vec[i] = math.Float32frombits(bits)
	}

	return vec, nil
}

const assetSelect = `
	SELECT id, library_id, path, size_bytes, mtime_ns, width, height,
		phash, dup_group, quality, textiness, ocr_text, thumb_path, status, indexed_at
	FROM assets`

// rowScanner sql.Row和sql.Rows共用的扫描接口
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAssetFields(sc rowScanner) (*Asset, error) {
	var a Asset
	var phash int64
	var indexedAt string

	err := sc.Scan(&a.ID, &a.LibraryID, &a.Path, &a.SizeBytes, &a.MTimeNS,
		&a.Width, &a.Height, &phash, &a.DupGroup, &a.Quality, &a.Textiness,
		&a.OCRText, &a.ThumbPath, &a.Status, &indexedAt)
	if err != nil {
		return nil, err
	}

	a.PHash = uint64(phash)
	a.IndexedAt, _ = time.Parse(time.RFC3339, indexedAt)
	return &a, nil
}

func (s *Store) scanAsset(row *sql.Row) (*Asset, error) {
	a, err := scanAssetFields(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan asset: %w", err)
	}
	return a, nil
}

func scanAssetRows(rows *sql.Rows) (*Asset, error) {
	a, err := scanAssetFields(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan asset: %w", err)
	}
	return a, nil
}
