package dedup

import (
	"math"
	"time"
)

// QualityWeights 质量分各因子的权重（可调配置）
//
// 权重大小可调，但各因子贡献的方向是冻结的约定：
// 更新的资产得分更高；过小或过大的分辨率被惩罚；有文字的轻微加分。
// 排序的平局判定依赖这个方向。
type QualityWeights struct {
	Recency    float64 `json:"recency"`
	Resolution float64 `json:"resolution"`
	Textiness  float64 `json:"textiness"`
}

// DefaultQualityWeights 默认权重
func DefaultQualityWeights() QualityWeights {
	return QualityWeights{
		Recency:    0.5,
		Resolution: 0.3,
		Textiness:  0.2,
	}
}

// Quality 计算单个资产的质量分，范围 [0, 1]
func Quality(w QualityWeights, mtimeNS int64, width, height int, textiness float64, now time.Time) float64 {
	total := w.Recency + w.Resolution + w.Textiness
	if total <= 0 {
		return 0
	}

	score := w.Recency*recencyFactor(mtimeNS, now) +
		w.Resolution*resolutionFactor(width, height) +
		w.Textiness*textinessFactor(textiness)

	return score / total
}

// recencyFactor 半年半衰的指数衰减，新文件接近1
func recencyFactor(mtimeNS int64, now time.Time) float64 {
	ageDays := now.Sub(time.Unix(0, mtimeNS)).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays / 180)
}

// resolutionFactor 惩罚过小和过大的分辨率
// 0.3MP以下线性下降，20MP以上反比下降，中间为1
func resolutionFactor(width, height int) float64 {
	mp := float64(width) * float64(height) / 1e6
	if mp <= 0 {
		return 0
	}

	f := 1.0
	if mp < 0.3 {
		f = mp / 0.3
	} else if mp > 20 {
		f = 20 / mp
	}
	return f
}

// textinessFactor 非零文字轻微加分
func textinessFactor(t float64) float64 {
	if t <= 0 {
		return 0
	}
	f := t * 4
	if f > 1 {
		f = 1
	}
	return f
}
