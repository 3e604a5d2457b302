package store

import (
	"database/sql"
	"errors"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// 哨兵错误
var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("not found")
	// ErrCorrupted 元数据与向量不一致（索引损坏）
	ErrCorrupted = errors.New("store corrupted: vector missing for indexed asset")
)

// schema SQLite数据库schema
const schema = `
-- 素材库（用户添加的根目录）
CREATE TABLE IF NOT EXISTS libraries (
    id TEXT PRIMARY KEY,
    path TEXT UNIQUE NOT NULL,
    created_at TEXT NOT NULL
);

-- 资产（已索引的图片文件）
CREATE TABLE IF NOT EXISTS assets (
    id TEXT PRIMARY KEY,
    library_id TEXT NOT NULL,
    path TEXT UNIQUE NOT NULL,
    size_bytes INTEGER NOT NULL,
    mtime_ns INTEGER NOT NULL,
    width INTEGER NOT NULL DEFAULT 0,
    height INTEGER NOT NULL DEFAULT 0,
    phash INTEGER NOT NULL DEFAULT 0,
    dup_group TEXT NOT NULL DEFAULT '',
    quality REAL NOT NULL DEFAULT 0,
    textiness REAL NOT NULL DEFAULT 0,
    ocr_text TEXT NOT NULL DEFAULT '',
    thumb_path TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'ok',
    indexed_at TEXT NOT NULL,
    FOREIGN KEY (library_id) REFERENCES libraries(id) ON DELETE CASCADE
);

-- 索引优化
CREATE INDEX IF NOT EXISTS idx_assets_library ON assets(library_id, status);
CREATE INDEX IF NOT EXISTS idx_assets_dup_group ON assets(dup_group);
CREATE INDEX IF NOT EXISTS idx_assets_mtime ON assets(mtime_ns DESC);

-- 索引任务记录，保留到被下一次任务覆盖
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    processed INTEGER NOT NULL DEFAULT 0,
    total INTEGER NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- OCR全文搜索索引
CREATE VIRTUAL TABLE IF NOT EXISTS ocr_fts USING fts5(
    path, ocr_text,
    tokenize='porter unicode61'
);

-- 触发器：INSERT时同步FTS
CREATE TRIGGER IF NOT EXISTS assets_ai AFTER INSERT ON assets
WHEN NEW.status = 'ok'
BEGIN
    INSERT INTO ocr_fts (rowid, path, ocr_text)
    VALUES (NEW.rowid, NEW.path, NEW.ocr_text);
END;

-- 触发器：UPDATE时同步FTS
CREATE TRIGGER IF NOT EXISTS assets_au AFTER UPDATE ON assets
BEGIN
    DELETE FROM ocr_fts WHERE rowid = OLD.rowid;
    INSERT INTO ocr_fts (rowid, path, ocr_text)
    SELECT NEW.rowid, NEW.path, NEW.ocr_text
    WHERE NEW.status = 'ok';
END;

-- 触发器：DELETE时清理FTS
CREATE TRIGGER IF NOT EXISTS assets_ad AFTER DELETE ON assets
BEGIN
    DELETE FROM ocr_fts WHERE rowid = OLD.rowid;
END;
`

// Store 数据存储
// 元数据行是权威数据，vectors_vec 中的向量是它的1:1影子副本，
// 两者始终在同一事务中写入
type Store struct {
	db     *sql.DB
	dbPath string
}

// New 创建新的Store实例
func New(dbPath string) (*Store, error) {
	// 初始化 sqlite-vec 扩展
	sqlite_vec.Auto()

	// 打开数据库
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 启用WAL模式，索引任务写入时查询仍可并发读取
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// 启用外键约束
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// 初始化schema
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB 返回底层数据库连接（用于高级操作）
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureVectorTable 确保vectors_vec虚拟表存在
// 如果表不存在，根据提供的向量维度创建它
func (s *Store) ensureVectorTable(dimensions int) error {
	var tableName string
	err := s.db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='vectors_vec'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		createSQL := fmt.Sprintf(
			"CREATE VIRTUAL TABLE vectors_vec USING vec0(asset_id TEXT PRIMARY KEY, embedding float[%d] distance_metric=cosine)",
			dimensions,
		)
		if _, err := s.db.Exec(createSQL); err != nil {
			return fmt.Errorf("failed to create vectors_vec table: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to check vectors_vec table: %w", err)
	}

	return nil
}

// hasVectorTable 检查向量表是否已创建
func (s *Store) hasVectorTable() (bool, error) {
	var tableName string
	err := s.db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='vectors_vec'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to check vectors_vec table: %w", err)
	}

	return true, nil
}
