package backend

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"strings"
)

// MockProvider 模拟Provider（用于测试和开发）
// 嵌入向量由内容哈希确定性生成，OCR从同名的 .txt 边车文件读取
type MockProvider struct {
	// Dim 向量维度
	Dim int
	// FailLoad 模拟加载失败
	FailLoad bool
}

// Load 实现 Provider 接口
func (p *MockProvider) Load(ctx context.Context, device Device) (Embedder, OCR, error) {
	if p.FailLoad {
		return nil, nil, fmt.Errorf("mock provider: load failure")
	}

	dim := p.Dim
	if dim <= 0 {
		dim = 256
	}

	return &MockEmbedder{dim: dim}, &SidecarOCR{}, nil
}

// MockEmbedder 确定性伪随机嵌入
type MockEmbedder struct {
	dim int
}

// Dimensions 返回向量维度
func (m *MockEmbedder) Dimensions() int {
	return m.dim
}

// EmbedImage 从像素内容生成确定性向量
func (m *MockEmbedder) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}

	// 对若干采样点取色作为种子，同样的图片得到同样的向量
	b := img.Bounds()
	seed := uint32(b.Dx())*31 + uint32(b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y += 1 + b.Dy()/8 {
		for x := b.Min.X; x < b.Max.X; x += 1 + b.Dx()/8 {
			r, g, bl, _ := img.At(x, y).RGBA()
			seed = seed*31 + uint32(r>>8)
			seed = seed*31 + uint32(g>>8)
			seed = seed*31 + uint32(bl>>8)
		}
	}

	return m.vectorFromSeed(seed), nil
}

// EmbedText 从文本内容生成确定性向量
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text")
	}

	seed := uint32(0)
	for _, c := range text {
		seed = seed*31 + uint32(c)
	}

	return m.vectorFromSeed(seed), nil
}

// vectorFromSeed 线性同余生成伪随机单位向量
func (m *MockEmbedder) vectorFromSeed(seed uint32) []float32 {
	v := make([]float32, m.dim)
	var norm float64

	for i := range v {
		seed = seed*1103515245 + 12345
		v[i] = float32(int32(seed)) / float32(math.MaxInt32)
		norm += float64(v[i]) * float64(v[i])
	}

	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range v {
			v[i] /= n
		}
	}

	return v
}

// SidecarOCR 从 <image>.txt 边车文件读取"识别"结果
// 没有边车文件时返回空结果，模拟无文字的图片
type SidecarOCR struct{}

// Recognize 实现 OCR 接口
func (o *SidecarOCR) Recognize(ctx context.Context, path string) (*OCRResult, error) {
	data, err := os.ReadFile(path + ".txt")
	if err != nil {
		if os.IsNotExist(err) {
			return &OCRResult{}, nil
		}
		return nil, fmt.Errorf("failed to read sidecar: %w", err)
	}

	text := strings.TrimSpace(string(data))
	res := &OCRResult{Text: text}

	// 合成包围盒：每个词一行排开，16px行高
	x, y := 0, 0
	for _, word := range strings.Fields(text) {
		w := len(word) * 10
		if x+w > 800 {
			x = 0
			y += 20
		}
		res.Tokens = append(res.Tokens, OCRToken{Text: word, X: x, Y: y, W: w, H: 16})
		x += w + 10
	}

	return res, nil
}
