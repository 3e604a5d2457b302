// Package merlian 提供本地截图索引与混合检索的门面
package merlian

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/merlian/merlian/pkg/backend"
	"github.com/merlian/merlian/pkg/extract"
	"github.com/merlian/merlian/pkg/jobs"
	"github.com/merlian/merlian/pkg/rank"
	"github.com/merlian/merlian/pkg/store"
)

// Merlian 核心实例
type Merlian struct {
	store     *store.Store
	backend   *backend.Backend
	extractor *extract.Extractor
	jobs      *jobs.Manager
	ranker    *rank.Ranker
	cfg       Config
}

// Status 索引整体状态
type Status struct {
	TotalAssets   int    `json:"total_assets"`
	WithOCR       int    `json:"with_ocr"`
	FailedAssets  int    `json:"failed_assets"`
	Libraries     int    `json:"libraries"`
	LastIndexedAt string `json:"last_indexed_at,omitempty"`
	BackendState  string `json:"backend_state"`
	DBPath        string `json:"db_path"`
}

// New 创建Merlian实例
func New(cfg Config) (*Merlian, error) {
	// 验证配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// 初始化store
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	// 模型后端懒加载，首次索引或查询前再预热
	b := backend.New(cfg.Provider, cfg.Device)
	ex := extract.New(b, cfg.ThumbMaxPx)

	mgr := jobs.NewManager(st, b, ex, jobs.Config{
		Workers:          cfg.Workers,
		ThumbDir:         cfg.ThumbDir,
		Exclude:          cfg.Exclude,
		HammingThreshold: cfg.HammingThreshold,
		Quality:          cfg.Quality,
	})

	return &Merlian{
		store:     st,
		backend:   b,
		extractor: ex,
		jobs:      mgr,
		ranker:    rank.New(st, b, cfg.Rank),
		cfg:       cfg,
	}, nil
}

// NewWithDB 使用指定数据库路径快速初始化
func NewWithDB(dbPath string) (*Merlian, error) {
	cfg := DefaultConfig()
	cfg.DBPath = dbPath
	cfg.DataDir = filepath.Dir(dbPath)
	cfg.ThumbDir = filepath.Join(cfg.DataDir, "thumbs")
	return New(cfg)
}

// Close 关闭实例
func (m *Merlian) Close() error {
	return m.store.Close()
}

// Warm 预热模型后端
func (m *Merlian) Warm(ctx context.Context) error {
	return m.backend.Warm(ctx)
}

// BackendState 模型后端当前状态
func (m *Merlian) BackendState() backend.State {
	return m.backend.State()
}

// AddLibrary 注册素材库，路径必须是已存在的目录
// 重复注册同一路径是幂等的
func (m *Merlian) AddLibrary(path string) (*store.Library, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, &LibraryError{Path: abs, Reason: "not accessible"}
	}
	if !info.IsDir() {
		return nil, &LibraryError{Path: abs, Reason: "not a directory"}
	}

	return m.store.AddLibrary(abs)
}

// Libraries 列出全部素材库
func (m *Merlian) Libraries() ([]store.Library, error) {
	return m.store.ListLibraries()
}

// ResolveLibrary 按ID或路径定位素材库
func (m *Merlian) ResolveLibrary(ref string) (*store.Library, error) {
	if lib, err := m.store.GetLibrary(ref); err == nil {
		return lib, nil
	} else if err != store.ErrNotFound {
		return nil, err
	}

	abs, err := filepath.Abs(ref)
	if err != nil {
		return nil, err
	}
	return m.store.GetLibraryByPath(abs)
}

// RemoveLibrary 移除素材库及其全部资产和向量
func (m *Merlian) RemoveLibrary(ref string) error {
	lib, err := m.ResolveLibrary(ref)
	if err != nil {
		return err
	}
	return m.store.RemoveLibrary(lib.ID)
}

// Index 提交一次索引运行并立即返回任务ID
// 同一素材库同时只能有一个任务，冲突时返回ErrJobConflict
func (m *Merlian) Index(ctx context.Context, libraryRef string, opts jobs.IndexOptions) (string, error) {
	lib, err := m.ResolveLibrary(libraryRef)
	if err != nil {
		return "", err
	}
	return m.jobs.Submit(ctx, lib.ID, opts)
}

// WaitJob 阻塞到任务进入终态
func (m *Merlian) WaitJob(jobID string) {
	m.jobs.Wait(jobID)
}

// CancelJob 请求取消任务，进行中的资产会做完
func (m *Merlian) CancelJob(jobID string) error {
	return m.jobs.Cancel(jobID)
}

// Job 按ID查询任务进度
func (m *Merlian) Job(jobID string) (*store.Job, error) {
	return m.store.GetJob(jobID)
}

// LatestJob 最近一次任务
func (m *Merlian) LatestJob() (*store.Job, error) {
	return m.store.LatestJob()
}

// Search 混合检索
// k<=0时取配置的默认结果数
func (m *Merlian) Search(ctx context.Context, query string, k int, mode rank.Mode) ([]rank.Result, error) {
	if k <= 0 {
		k = m.cfg.SearchK
	}
	return m.ranker.Search(ctx, query, k, mode)
}

// Asset 按ID获取资产
func (m *Merlian) Asset(id string) (*store.Asset, error) {
	return m.store.GetAsset(id)
}

// AssetByPath 按源文件路径获取资产
func (m *Merlian) AssetByPath(path string) (*store.Asset, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return m.store.GetAssetByPath(abs)
}

// Status 返回索引整体状态
func (m *Merlian) Status() (Status, error) {
	st, err := m.store.GetStatus()
	if err != nil {
		return Status{}, err
	}

	out := Status{
		TotalAssets:  st.TotalAssets,
		WithOCR:      st.WithOCR,
		FailedAssets: st.FailedAssets,
		Libraries:    st.Libraries,
		BackendState: m.backend.State().String(),
		DBPath:       m.cfg.DBPath,
	}
	if !st.LastIndexedAt.IsZero() {
		out.LastIndexedAt = st.LastIndexedAt.Format("2006-01-02 15:04:05")
	}
	return out, nil
}

// Reset 清空整个索引，数据库文件重建
func (m *Merlian) Reset() error {
	if err := m.store.Close(); err != nil {
		return err
	}
	if err := os.Remove(m.cfg.DBPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove index db: %w", err)
	}

	st, err := store.New(m.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to recreate store: %w", err)
	}
	m.store = st
	m.jobs = jobs.NewManager(st, m.backend, m.extractor, jobs.Config{
		Workers:          m.cfg.Workers,
		ThumbDir:         m.cfg.ThumbDir,
		Exclude:          m.cfg.Exclude,
		HammingThreshold: m.cfg.HammingThreshold,
		Quality:          m.cfg.Quality,
	})
	m.ranker = rank.New(st, m.backend, m.cfg.Rank)
	return nil
}
