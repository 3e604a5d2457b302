// Package jobs 实现可取消的索引任务管理
package jobs

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/merlian/merlian/pkg/backend"
	"github.com/merlian/merlian/pkg/dedup"
	"github.com/merlian/merlian/pkg/extract"
	"github.com/merlian/merlian/pkg/scanner"
	"github.com/merlian/merlian/pkg/store"
)

var (
	// ErrJobConflict 同一素材库已有任务在跑
	ErrJobConflict = errors.New("an indexing job is already running for this library")
	// ErrJobNotFound 任务不存在
	ErrJobNotFound = errors.New("job not found")
)

// 历史任务保留条数
const keepJobs = 20

// IndexOptions 单次索引运行的参数
type IndexOptions struct {
	// MaxItems 本次最多处理的新增/变更数量，0表示不限
	MaxItems int
	// RecentFirst 有上限时优先处理最新修改的文件
	RecentFirst bool
	// WithOCR 是否做文字识别
	WithOCR bool
}

// Manager 索引任务管理器
//
// 每个素材库同一时刻最多一个运行中的任务，
// 提交到已占用的库立即返回ErrJobConflict而不是排队。
type Manager struct {
	store     *store.Store
	backend   *backend.Backend
	extractor *extract.Extractor
	dedup     *dedup.Engine
	quality   dedup.QualityWeights
	exclude   []string
	workers   int
	thumbDir  string

	mu      sync.Mutex
	libLock map[string]string // libraryID -> jobID
	running map[string]*runState
}

// runState 运行中任务的内存态
type runState struct {
	cancelled atomic.Bool
	done      chan struct{}
}

// Config 管理器配置
type Config struct {
	// Workers 并发提取的工作协程数，0取CPU核数
	Workers int
	// ThumbDir 缩略图落盘目录
	ThumbDir string
	// Exclude 扫描排除模式
	Exclude []string
	// HammingThreshold 近重复判定的感知哈希距离阈值
	HammingThreshold int
	// Quality 质量分权重
	Quality dedup.QualityWeights
}

// NewManager 创建任务管理器
func NewManager(st *store.Store, b *backend.Backend, ex *extract.Extractor, cfg Config) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	threshold := cfg.HammingThreshold
	if threshold <= 0 {
		threshold = dedup.DefaultHammingThreshold
	}
	weights := cfg.Quality
	if weights.Recency == 0 && weights.Resolution == 0 && weights.Textiness == 0 {
		weights = dedup.DefaultQualityWeights()
	}

	return &Manager{
		store:     st,
		backend:   b,
		extractor: ex,
		dedup:     dedup.New(threshold, weights),
		quality:   weights,
		exclude:   cfg.Exclude,
		workers:   workers,
		thumbDir:  cfg.ThumbDir,
		libLock:   make(map[string]string),
		running:   make(map[string]*runState),
	}
}

// Submit 提交一次索引运行并立即返回任务ID
func (m *Manager) Submit(ctx context.Context, libraryID string, opts IndexOptions) (string, error) {
	lib, err := m.store.GetLibrary(libraryID)
	if err != nil {
		return "", err
	}

	jobID := uuid.NewString()

	m.mu.Lock()
	if holder, busy := m.libLock[libraryID]; busy {
		m.mu.Unlock()
		return "", fmt.Errorf("%w (job %s)", ErrJobConflict, holder)
	}
	m.libLock[libraryID] = jobID
	rs := &runState{done: make(chan struct{})}
	m.running[jobID] = rs
	m.mu.Unlock()

	if _, err := m.store.CreateJob(jobID); err != nil {
		m.release(libraryID, jobID)
		close(rs.done)
		return "", err
	}

	go m.run(ctx, lib, jobID, rs, opts)

	return jobID, nil
}

// Cancel 请求取消任务
// 正在处理的单个资产会做完，下一个资产开始前停下。
// 对已终态的任务不产生任何效果。
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	rs, ok := m.running[jobID]
	m.mu.Unlock()

	if ok {
		rs.cancelled.Store(true)
		return nil
	}

	// 不在运行表里说明已经终止，取消是无效果的空操作
	_, err := m.store.GetJob(jobID)
	if err == store.ErrNotFound {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return err
}

// Wait 阻塞到任务进入终态，测试和前台CLI用
func (m *Manager) Wait(jobID string) {
	m.mu.Lock()
	rs, ok := m.running[jobID]
	m.mu.Unlock()
	if !ok {
		return
	}
	<-rs.done
}

func (m *Manager) release(libraryID, jobID string) {
	m.mu.Lock()
	if m.libLock[libraryID] == jobID {
		delete(m.libLock, libraryID)
	}
	delete(m.running, jobID)
	m.mu.Unlock()
}

// run 执行一次完整的索引运行
func (m *Manager) run(ctx context.Context, lib *store.Library, jobID string, rs *runState, opts IndexOptions) {
	defer close(rs.done)
	defer m.release(lib.ID, jobID)

	log := logrus.WithFields(logrus.Fields{"job": jobID, "library": lib.Path})

	// 失败收尾保留最后已知的进度计数，不把已持久化的进度清零
	var processed atomic.Int64
	total := 0

	fail := func(err error) {
		log.WithError(err).Error("indexing job failed")
		status := store.JobError
		if rs.cancelled.Load() {
			// 取消在先的运行按取消结束，错误原因照常记录
			status = store.JobCancelled
		}
		m.finish(jobID, status, int(processed.Load()), total, "", err.Error())
	}

	// 模型未就绪时先预热，失败则任务失败
	if err := m.backend.Warm(ctx); err != nil {
		fail(fmt.Errorf("backend warm failed: %w", err))
		return
	}

	stored, err := m.store.FileSignatures(lib.ID)
	if err != nil {
		fail(err)
		return
	}

	sc := scanner.New(m.exclude)
	diff := sc.DiffLibrary(lib.Path, stored, scanner.Constraints{
		MaxItems:    opts.MaxItems,
		RecentFirst: opts.RecentFirst,
	})
	for _, se := range diff.Errors {
		log.WithError(se.Err).WithField("path", se.Path).Warn("path not readable, skipped")
	}

	// 删除先做，即使随后取消，消失的文件也不应再出现在结果里
	if len(diff.Removed) > 0 {
		if err := m.store.DeleteAssets(diff.Removed); err != nil {
			fail(err)
			return
		}
	}

	work := append(append([]scanner.FileRef{}, diff.New...), diff.Changed...)
	total = len(work)

	if err := m.store.UpdateJob(&store.Job{
		ID: jobID, Status: store.JobRunning, Processed: 0, Total: total,
		Message: fmt.Sprintf("indexing %d files", total),
	}); err != nil {
		fail(err)
		return
	}

	newSet := make(map[string]bool, len(diff.New))
	for _, f := range diff.New {
		newSet[f.Path] = true
	}

	var added, updated, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for _, f := range work {
		if rs.cancelled.Load() || gctx.Err() != nil {
			break
		}
		f := f
		g.Go(func() error {
			if rs.cancelled.Load() || gctx.Err() != nil {
				return nil
			}

			if err := m.indexOne(gctx, lib.ID, f, opts.WithOCR); err != nil {
				// 单个文件失败只记录，不拖垮整个运行
				log.WithError(err).WithField("path", f.Path).Warn("asset extraction failed")
				failed.Add(1)
				if merr := m.store.MarkAssetFailed(lib.ID, f.Path, f.SizeBytes, f.MTimeNS); merr != nil {
					log.WithError(merr).Warn("failed to record extraction failure")
				}
			} else if newSet[f.Path] {
				added.Add(1)
			} else {
				updated.Add(1)
			}

			n := processed.Add(1)
			m.progress(jobID, int(n), total)
			return nil
		})
	}
	g.Wait()

	// 本次运行触及的资产会改变重复组和质量分，全库重算保持标注一致
	if err := m.annotate(lib.ID); err != nil {
		fail(err)
		return
	}

	msg := fmt.Sprintf("added %d, updated %d, removed %d, failed %d",
		added.Load(), updated.Load(), len(diff.Removed), failed.Load())

	status := store.JobDone
	if rs.cancelled.Load() {
		status = store.JobCancelled
		msg = "cancelled: " + msg
	}
	m.finish(jobID, status, int(processed.Load()), total, msg, "")

	if err := m.store.PruneJobs(keepJobs); err != nil {
		log.WithError(err).Warn("failed to prune job history")
	}

	log.WithField("result", msg).Info("indexing job finished")
}

// indexOne 提取并写入单个资产
func (m *Manager) indexOne(ctx context.Context, libraryID string, f scanner.FileRef, withOCR bool) error {
	feat, err := m.extractor.Extract(ctx, f.Path, withOCR)
	if err != nil {
		return err
	}

	thumbPath := ""
	if m.thumbDir != "" && len(feat.Thumbnail) > 0 {
		thumbPath, err = m.writeThumb(f.Path, feat.Thumbnail)
		if err != nil {
			return err
		}
	}

	textiness := extract.Textiness(feat.OCRTokens, feat.Width, feat.Height)

	quality := dedup.Quality(m.quality, f.MTimeNS, feat.Width, feat.Height, textiness, time.Now())

	_, err = m.store.UpsertAsset(&store.Asset{
		LibraryID: libraryID,
		Path:      f.Path,
		SizeBytes: f.SizeBytes,
		MTimeNS:   f.MTimeNS,
		Width:     feat.Width,
		Height:    feat.Height,
		PHash:     feat.PHash,
		Quality:   quality,
		Textiness: textiness,
		OCRText:   feat.OCRText,
		ThumbPath: thumbPath,
	}, feat.Embedding)
	return err
}

// writeThumb 缩略图按源路径哈希命名，重复索引不产生孤儿文件
func (m *Manager) writeThumb(srcPath string, jpeg []byte) (string, error) {
	if err := os.MkdirAll(m.thumbDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail dir: %w", err)
	}
	sum := sha1.Sum([]byte(srcPath))
	p := filepath.Join(m.thumbDir, hex.EncodeToString(sum[:])+".jpg")
	if err := os.WriteFile(p, jpeg, 0o644); err != nil {
		return "", fmt.Errorf("failed to write thumbnail: %w", err)
	}
	return p, nil
}

// annotate 全库重算重复组与质量分
func (m *Manager) annotate(libraryID string) error {
	sigs, err := m.store.AssetSignatures(libraryID)
	if err != nil {
		return err
	}
	if len(sigs) == 0 {
		return nil
	}

	ann := m.dedup.Annotate(sigs, time.Now())
	if err := m.store.UpdateDupGroups(ann.Groups); err != nil {
		return err
	}
	return m.store.UpdateQuality(ann.Quality)
}

// progress 持久化进度，轮询方重启后也能看到
func (m *Manager) progress(jobID string, processed, total int) {
	err := m.store.UpdateJob(&store.Job{
		ID: jobID, Status: store.JobRunning, Processed: processed, Total: total,
		Message: fmt.Sprintf("indexing %d files", total),
	})
	if err != nil {
		logrus.WithError(err).Debug("failed to persist progress")
	}
}

func (m *Manager) finish(jobID string, status store.JobStatus, processed, total int, msg, errMsg string) {
	err := m.store.UpdateJob(&store.Job{
		ID: jobID, Status: status, Processed: processed, Total: total,
		Message: msg, Error: errMsg,
	})
	if err != nil {
		logrus.WithError(err).Warn("failed to record job result")
	}
}
