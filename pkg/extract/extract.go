// Package extract 实现单个资产的特征提取
//
// 提取是纯函数式的：不修改共享状态，可以安全并发调用。
// 所有写入都在 Job Manager 的同步写步骤里完成。
package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/webp"

	"github.com/corona10/goimagehash"
	"github.com/nfnt/resize"

	"github.com/merlian/merlian/pkg/backend"
)

// Features 单个资产的提取结果
type Features struct {
	Width     int
	Height    int
	Thumbnail []byte // JPEG编码
	Embedding []float32
	PHash     uint64
	OCRText   string
	OCRTokens []backend.OCRToken
}

// Extractor 特征提取器
type Extractor struct {
	backend    *backend.Backend
	thumbMaxPx uint
	jpegQual   int
}

// New 创建提取器
func New(b *backend.Backend, thumbMaxPx int) *Extractor {
	if thumbMaxPx <= 0 {
		thumbMaxPx = 640
	}
	return &Extractor{
		backend:    b,
		thumbMaxPx: uint(thumbMaxPx),
		jpegQual:   85,
	}
}

// Extract 提取单个文件的全部特征
// withOCR为false时跳过文字识别，OCRText为空
func (e *Extractor) Extract(ctx context.Context, path string, withOCR bool) (*Features, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	feat := &Features{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}

	// 感知哈希
	phash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("failed to compute perceptual hash: %w", err)
	}
	feat.PHash = phash.GetHash()

	// 缩略图
	thumb := resize.Thumbnail(e.thumbMaxPx, e.thumbMaxPx, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: e.jpegQual}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	feat.Thumbnail = buf.Bytes()

	// 视觉嵌入
	emb, err := e.backend.Embedder()
	if err != nil {
		return nil, err
	}
	vec, err := emb.EmbedImage(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to embed image: %w", err)
	}
	feat.Embedding = vec

	// OCR（按请求可选）
	if withOCR {
		ocr, ok, err := e.backend.OCR()
		if err != nil {
			return nil, err
		}
		if ok {
			res, err := ocr.Recognize(ctx, path)
			if err != nil {
				return nil, fmt.Errorf("ocr failed: %w", err)
			}
			feat.OCRText = res.Text
			feat.OCRTokens = res.Tokens
		}
	}

	return feat, nil
}
