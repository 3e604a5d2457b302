package store

import "time"

// AssetStatus 资产状态
const (
	// AssetStatusOK 提取成功，可参与排序
	AssetStatusOK = "ok"
	// AssetStatusFailed 提取失败，排除在排序之外
	AssetStatusFailed = "failed"
)

// Library 素材库（一个根目录）
type Library struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Asset 已索引的图片文件
type Asset struct {
	ID        string    `json:"id"`
	LibraryID string    `json:"library_id"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	MTimeNS   int64     `json:"mtime_ns"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	PHash     uint64    `json:"phash"`
	DupGroup  string    `json:"dup_group"`
	Quality   float64   `json:"quality"`
	Textiness float64   `json:"textiness"`
	OCRText   string    `json:"ocr_text"`
	ThumbPath string    `json:"thumb_path"`
	Status    string    `json:"status"`
	IndexedAt time.Time `json:"indexed_at"`
}

// ModTime 返回文件修改时间
func (a *Asset) ModTime() time.Time {
	return time.Unix(0, a.MTimeNS)
}

// JobStatus 任务状态
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobDone      JobStatus = "done"
	JobError     JobStatus = "error"
	JobCancelled JobStatus = "cancelled"
)

// Terminal 返回该状态是否为终态
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobError || s == JobCancelled
}

// Job 一次索引运行的记录
type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileSig 差分比较用的文件签名
type FileSig struct {
	AssetID   string
	SizeBytes int64
	MTimeNS   int64
}

// AssetSig 去重引擎用的资产签名
type AssetSig struct {
	ID        string
	PHash     uint64
	Quality   float64
	MTimeNS   int64
	Textiness float64
	Width     int
	Height    int
}

// VectorHit 向量搜索命中
type VectorHit struct {
	AssetID  string
	Distance float64
}

// Status 索引状态投影
type Status struct {
	TotalAssets   int       `json:"total_assets"`
	WithOCR       int       `json:"with_ocr"`
	FailedAssets  int       `json:"failed_assets"`
	Libraries     int       `json:"libraries"`
	LastIndexedAt time.Time `json:"last_indexed_at,omitempty"`
}
