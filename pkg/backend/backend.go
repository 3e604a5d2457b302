// Package backend 管理嵌入模型与OCR引擎的进程级共享状态
//
// 模型加载成本高，整个进程只加载一次，调用方通过 Warm/Ready
// 显式控制冷启动时机，而不是在首个请求里隐式懒加载。
package backend

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

// State 后端生命周期状态
type State int32

const (
	// StateUninitialized 尚未加载
	StateUninitialized State = iota
	// StateLoading 正在加载模型
	StateLoading
	// StateReady 可以使用
	StateReady
	// StateFailed 加载失败，Err()返回原因
	StateFailed
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Device 推理设备
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCPU  Device = "cpu"
	DeviceGPU  Device = "gpu"
)

// ValidDevice 检查设备取值是否合法
func ValidDevice(d Device) bool {
	switch d {
	case DeviceAuto, DeviceCPU, DeviceGPU, "":
		return true
	}
	return false
}

// ErrNotReady 后端尚未就绪
var ErrNotReady = errors.New("backend not ready")

// Embedder 嵌入模型接口
// 图片和查询文本必须使用同一个模型空间，否则相似度没有意义
type Embedder interface {
	// EmbedImage 生成图片的视觉嵌入向量
	EmbedImage(ctx context.Context, img image.Image) ([]float32, error)

	// EmbedText 生成查询文本的嵌入向量
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// Dimensions 返回向量维度
	Dimensions() int
}

// OCRToken 识别出的单个词及其像素包围盒
type OCRToken struct {
	Text string
	X    int
	Y    int
	W    int
	H    int
}

// OCRResult OCR识别结果
type OCRResult struct {
	Text   string
	Tokens []OCRToken
}

// OCR 文字识别接口
// 按路径识别，多数OCR引擎直接操作文件
type OCR interface {
	Recognize(ctx context.Context, path string) (*OCRResult, error)
}

// Provider 负责实际加载嵌入模型和OCR引擎
// ocr 可以为 nil，表示该Provider不提供文字识别能力
type Provider interface {
	Load(ctx context.Context, device Device) (emb Embedder, ocr OCR, err error)
}

// Backend 进程级能力对象
// 状态机：uninitialized → loading → {ready | failed}
type Backend struct {
	provider Provider
	device   Device

	mu       sync.Mutex
	state    atomic.Int32
	embedder Embedder
	ocr      OCR
	loadErr  error
}

// New 创建后端实例，不触发加载
func New(provider Provider, device Device) *Backend {
	if device == "" {
		device = DeviceAuto
	}
	return &Backend{
		provider: provider,
		device:   device,
	}
}

// State 返回当前状态
func (b *Backend) State() State {
	return State(b.state.Load())
}

// Ready 返回后端是否可用
func (b *Backend) Ready() bool {
	return b.State() == StateReady
}

// Err 返回加载失败的原因
func (b *Backend) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadErr
}

// Warm 加载模型，带指数退避重试
// 并发调用只有一个执行加载，其余等待结果
func (b *Backend) Warm(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.State() == StateReady {
		return nil
	}

	b.state.Store(int32(StateLoading))
	b.loadErr = nil

	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(500*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		emb, ocr, err := b.provider.Load(ctx, b.device)
		if err != nil {
			logrus.WithError(err).Warn("backend load attempt failed")
			return retry.RetryableError(err)
		}
		b.embedder = emb
		b.ocr = ocr
		return nil
	})

	if err != nil {
		b.state.Store(int32(StateFailed))
		b.loadErr = err
		return fmt.Errorf("failed to warm backend: %w", err)
	}

	b.state.Store(int32(StateReady))
	logrus.WithField("device", b.device).Info("backend ready")
	return nil
}

// Embedder 返回嵌入模型，未就绪时返回 ErrNotReady
func (b *Backend) Embedder() (Embedder, error) {
	if !b.Ready() {
		return nil, ErrNotReady
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.embedder, nil
}

// OCR 返回文字识别引擎
// 第二个返回值表示该后端是否提供OCR能力
func (b *Backend) OCR() (OCR, bool, error) {
	if !b.Ready() {
		return nil, false, ErrNotReady
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ocr, b.ocr != nil, nil
}
