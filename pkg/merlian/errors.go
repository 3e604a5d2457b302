package merlian

import (
	"fmt"

	"github.com/merlian/merlian/pkg/backend"
	"github.com/merlian/merlian/pkg/jobs"
	"github.com/merlian/merlian/pkg/rank"
	"github.com/merlian/merlian/pkg/store"
)

// 对外暴露的错误哨兵，调用方不需要依赖内层包就能做errors.Is判断
var (
	// ErrNotFound 资产、素材库或任务不存在
	ErrNotFound = store.ErrNotFound
	// ErrCorrupted 索引数据损坏，元数据和向量不一致
	ErrCorrupted = store.ErrCorrupted
	// ErrJobConflict 同一素材库已有索引任务在跑
	ErrJobConflict = jobs.ErrJobConflict
	// ErrJobNotFound 任务不存在
	ErrJobNotFound = jobs.ErrJobNotFound
	// ErrBackendNotReady 模型后端未就绪
	ErrBackendNotReady = backend.ErrNotReady
	// ErrUnknownMode 未知的排序模式
	ErrUnknownMode = rank.ErrUnknownMode
)

// DeviceError 无效的设备配置
type DeviceError struct {
	Device string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("invalid device %q (valid: auto, cpu, gpu)", e.Device)
}

// LibraryError 素材库路径不可用
type LibraryError struct {
	Path   string
	Reason string
}

func (e *LibraryError) Error() string {
	return fmt.Sprintf("library path %s: %s", e.Path, e.Reason)
}
