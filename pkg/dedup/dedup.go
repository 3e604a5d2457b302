// Package dedup 实现近似重复分组和质量评分
package dedup

import (
	"math/bits"
	"time"

	"github.com/merlian/merlian/pkg/store"
)

// DefaultHammingThreshold 默认的感知哈希距离阈值（64位中）
const DefaultHammingThreshold = 10

// Engine 去重与质量评分引擎
type Engine struct {
	threshold int
	weights   QualityWeights
}

// New 创建引擎
func New(threshold int, weights QualityWeights) *Engine {
	if threshold <= 0 {
		threshold = DefaultHammingThreshold
	}
	return &Engine{threshold: threshold, weights: weights}
}

// Annotation 一次标注的输出
type Annotation struct {
	// Groups 资产ID → 所在组代表的资产ID（独立资产指向自身）
	Groups map[string]string
	// Quality 资产ID → 质量分
	Quality map[string]float64
}

// Annotate 对一批资产做近似重复分组并重算质量分
//
// 分组在单次索引内具有传递性：A~B 且 B~C 则三者同组（并查集）。
// 组代表是组内质量分最高的资产。
func (e *Engine) Annotate(sigs []store.AssetSig, now time.Time) Annotation {
	n := len(sigs)
	ann := Annotation{
		Groups:  make(map[string]string, n),
		Quality: make(map[string]float64, n),
	}

	quality := make([]float64, n)
	for i, s := range sigs {
		quality[i] = Quality(e.weights, s.MTimeNS, s.Width, s.Height, s.Textiness, now)
		ann.Quality[s.ID] = quality[i]
	}

	// 并查集
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	// 两两比较哈希距离
	// 对单用户图库的规模（几万张）足够，距离计算只是一次异或加popcount
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if HammingDistance(sigs[i].PHash, sigs[j].PHash) < e.threshold {
				union(i, j)
			}
		}
	}

	// 每组选质量最高者为代表，平局时取更新的，再平局按ID定序
	rep := make(map[int]int)
	for i := range sigs {
		root := find(i)
		cur, ok := rep[root]
		if !ok || better(sigs, quality, i, cur) {
			rep[root] = i
		}
	}

	for i, s := range sigs {
		ann.Groups[s.ID] = sigs[rep[find(i)]].ID
	}

	return ann
}

// better 判断候选i是否比当前代表cur更适合作组代表
func better(sigs []store.AssetSig, quality []float64, i, cur int) bool {
	if quality[i] != quality[cur] {
		return quality[i] > quality[cur]
	}
	if sigs[i].MTimeNS != sigs[cur].MTimeNS {
		return sigs[i].MTimeNS > sigs[cur].MTimeNS
	}
	return sigs[i].ID < sigs[cur].ID
}

// HammingDistance 64位感知哈希的汉明距离
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
