// Package vectordb 提供向量相似度计算的底层实现
package vectordb

import (
	"fmt"
	"math"
)

// CosineSim 计算两个向量的余弦相似度
// 返回值范围 [-1, 1]，1表示完全相同，-1表示完全相反
func CosineSim(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}

	if len(a) == 0 {
		return 0, fmt.Errorf("empty vectors")
	}

	var dotProduct, normA, normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	// 零向量没有方向，按正交处理
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))

	// 浮点误差可能使结果略微超出 [-1, 1]
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}

	return sim, nil
}

// NormalizeScore 将余弦相似度映射到 [0, 1]
// 排序时所有分量使用同一量纲，方便加权融合
func NormalizeScore(sim float64) float64 {
	return (sim + 1.0) / 2.0
}

// NormalizeVector 将向量归一化为单位长度
// 归一化后余弦相似度等价于点积
func NormalizeVector(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}

	if norm == 0 {
		return v
	}

	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}

	return out
}

// CosineDistToScore 将 sqlite-vec 返回的余弦距离转换为 [0, 1] 分数
// vec0 的 cosine distance 范围是 [0, 2]
func CosineDistToScore(dist float64) float64 {
	score := 1.0 - dist/2.0
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
