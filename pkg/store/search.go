package store

import (
	"fmt"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

// VectorSearch 向量最近邻搜索
// 返回按余弦距离升序排列的命中，失败的资产没有向量所以天然被排除
func (s *Store) VectorSearch(queryEmbed []float32, k int) ([]VectorHit, error) {
	hasVec, err := s.hasVectorTable()
	if err != nil {
		return nil, err
	}
	if !hasVec {
		// 还没有索引任何向量
		return []VectorHit{}, nil
	}

	vecBlob, err := sqlite_vec.SerializeFloat32(queryEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query vector: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT asset_id, distance
		FROM vectors_vec
		WHERE embedding MATCH ? AND k = ?
	`, vecBlob, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var h VectorHit
		if err := rows.Scan(&h.AssetID, &h.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan vector hit: %w", err)
		}
		hits = append(hits, h)
	}

	return hits, rows.Err()
}

// FTSCandidates 通过OCR全文索引获取候选资产
// 先尝试AND组合（全部词元命中），命中为空且词元多于一个时退回OR组合
func (s *Store) FTSCandidates(tokens []string, limit int) ([]string, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		// FTS5查询语法里词元加引号，避免被当作操作符
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, ``) + `"`
	}

	ids, err := s.ftsQuery(strings.Join(quoted, " AND "), limit)
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 && len(tokens) > 1 {
		ids, err = s.ftsQuery(strings.Join(quoted, " OR "), limit)
		if err != nil {
			return nil, err
		}
	}

	return ids, nil
}

// ftsQuery 执行一次FTS5查询，按bm25升序返回资产ID
func (s *Store) ftsQuery(match string, limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT a.id
		FROM ocr_fts f
		JOIN assets a ON a.rowid = f.rowid
		WHERE ocr_fts MATCH ? AND a.status = 'ok'
		ORDER BY bm25(ocr_fts)
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan fts hit: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// DigitLikeCandidates 数字词元的LIKE兜底查询
// FTS分词可能吞掉纯数字（如错误码），LIKE保证"403"这类查询不漏
func (s *Store) DigitLikeCandidates(digitTokens []string, limit int) ([]string, error) {
	if len(digitTokens) == 0 {
		return nil, nil
	}

	clauses := make([]string, len(digitTokens))
	args := make([]interface{}, 0, len(digitTokens)+1)
	for i, t := range digitTokens {
		clauses[i] = "ocr_text LIKE ?"
		args = append(args, "%"+t+"%")
	}
	args = append(args, limit)

	rows, err := s.db.Query(`
		SELECT id FROM assets
		WHERE status = 'ok' AND (`+strings.Join(clauses, " OR ")+`)
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query like candidates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan like hit: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
