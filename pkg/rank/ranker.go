// Package rank 实现视觉相似度与OCR文本匹配的混合排序
package rank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/merlian/merlian/pkg/backend"
	"github.com/merlian/merlian/pkg/extract"
	"github.com/merlian/merlian/pkg/store"
	"github.com/merlian/merlian/pkg/vectordb"
)

// Mode 排序模式
type Mode string

const (
	ModeHybrid Mode = "hybrid"
	ModeVisual Mode = "visual"
	ModeText   Mode = "text"
)

// ErrUnknownMode 未知的排序模式（拒绝而不是静默取默认值）
var ErrUnknownMode = errors.New("unknown ranking mode")

// ValidMode 检查模式取值
func ValidMode(m Mode) bool {
	switch m {
	case ModeHybrid, ModeVisual, ModeText:
		return true
	}
	return false
}

// Result 单条查询结果（瞬态，不落库）
type Result struct {
	Asset         *store.Asset
	Score         float64
	VisualScore   float64
	TextScore     float64
	MatchedTokens []string
	Rank          int
}

// Weights 融合权重配置
type Weights struct {
	// Text 文本分量权重，视觉分量取其补
	Text float64 `json:"text"`
	// TextyBoost 查询看起来以文字为目标时文本权重的下限
	TextyBoost float64 `json:"texty_boost"`
}

// DefaultWeights 默认融合权重
func DefaultWeights() Weights {
	return Weights{Text: 0.55, TextyBoost: 0.80}
}

// Ranker 混合排序器
type Ranker struct {
	store   *store.Store
	backend *backend.Backend
	weights Weights
}

// New 创建排序器
func New(st *store.Store, b *backend.Backend, w Weights) *Ranker {
	if w.Text <= 0 && w.TextyBoost <= 0 {
		w = DefaultWeights()
	}
	return &Ranker{store: st, backend: b, weights: w}
}

// candidate 排序过程中的候选
type candidate struct {
	visual  float64
	text    float64
	matched []string
}

// Search 执行查询，返回按融合分降序的前k个结果
//
// 重复组只有代表资产可以出现在结果里，过滤发生在截断之前，
// 保证返回的是k张互不重复的图片。
func (r *Ranker) Search(ctx context.Context, query string, k int, mode Mode) ([]Result, error) {
	if !ValidMode(mode) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if k <= 0 {
		k = 12
	}

	tokens := extract.Tokenize(query)
	cands := make(map[string]*candidate)

	// 视觉分量
	var queryVec []float32
	visualOK := false
	if mode != ModeText {
		emb, err := r.backend.Embedder()
		if err != nil {
			if mode == ModeVisual {
				return nil, fmt.Errorf("visual search unavailable: %w", err)
			}
			// hybrid降级为纯文本，不让查询失败
			logrus.Debug("embedder not ready, hybrid degrades to text-only")
		} else {
			queryVec, err = emb.EmbedText(ctx, query)
			if err != nil {
				return nil, fmt.Errorf("failed to embed query: %w", err)
			}

			fetch := k * 4
			if fetch < 64 {
				fetch = 64
			}
			hits, err := r.store.VectorSearch(queryVec, fetch)
			if err != nil {
				return nil, err
			}
			for _, h := range hits {
				cands[h.AssetID] = &candidate{visual: vectordb.CosineDistToScore(h.Distance)}
			}
			visualOK = true
		}
	}

	// 文本分量
	if mode != ModeVisual && len(tokens) > 0 {
		ids, err := r.store.FTSCandidates(tokens, 500)
		if err != nil {
			return nil, err
		}

		if len(ids) == 0 {
			// FTS分词可能吞掉纯数字词元，LIKE兜底
			var digits []string
			for _, t := range tokens {
				if isDigits(t) {
					digits = append(digits, t)
				}
			}
			ids, err = r.store.DigitLikeCandidates(digits, 500)
			if err != nil {
				return nil, err
			}
		}

		for _, id := range ids {
			if _, ok := cands[id]; !ok {
				cands[id] = &candidate{}
			}
		}
	}

	if len(cands) == 0 {
		return []Result{}, nil
	}

	// 取出候选资产并计算文本重合度
	ids := make([]string, 0, len(cands))
	for id := range cands {
		ids = append(ids, id)
	}
	assets, err := r.store.FetchAssets(ids)
	if err != nil {
		return nil, err
	}

	for id, c := range cands {
		a, ok := assets[id]
		if !ok || a.Status != store.AssetStatusOK {
			delete(cands, id)
			continue
		}

		// 没有OCR文本的资产文本分量为0，不从候选里剔除
		if len(tokens) > 0 && a.OCRText != "" {
			c.text, c.matched = overlapScore(tokens, a.OCRText)
		}

		// 纯文本候选补算视觉分
		if visualOK && mode != ModeText && c.visual == 0 {
			vec, err := r.store.GetEmbedding(id)
			if err == store.ErrNotFound {
				continue
			}
			if err != nil {
				// 索引损坏时明确报错，而不是静默返回部分数据
				return nil, fmt.Errorf("asset %s: %w", id, err)
			}
			sim, err := vectordb.CosineSim(queryVec, vec)
			if err != nil {
				return nil, err
			}
			c.visual = vectordb.NormalizeScore(sim)
		}
	}

	// 融合
	textWeight := r.weights.Text
	if looksTexty(query) && r.weights.TextyBoost > textWeight {
		textWeight = r.weights.TextyBoost
	}

	results := make([]Result, 0, len(cands))
	for id, c := range cands {
		a := assets[id]

		// 重复组过滤在截断之前
		if a.DupGroup != "" && a.DupGroup != a.ID {
			continue
		}

		var score float64
		switch {
		case mode == ModeVisual:
			score = c.visual
		case mode == ModeText || !visualOK:
			score = c.text
		default:
			score = (1.0-textWeight)*c.visual + textWeight*c.text
		}

		results = append(results, Result{
			Asset:         a,
			Score:         score,
			VisualScore:   c.visual,
			TextScore:     c.text,
			MatchedTokens: c.matched,
		})
	}

	// 分数降序，平局先比质量分再比修改时间，最后按ID定序
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Asset.Quality != results[j].Asset.Quality {
			return results[i].Asset.Quality > results[j].Asset.Quality
		}
		if results[i].Asset.MTimeNS != results[j].Asset.MTimeNS {
			return results[i].Asset.MTimeNS > results[j].Asset.MTimeNS
		}
		return results[i].Asset.ID < results[j].Asset.ID
	})

	if len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].Rank = i + 1
	}

	return results, nil
}

// overlapScore 词元重合度，按查询词元数归一化
// matched保留查询里的词元顺序，供调用方做证据高亮
func overlapScore(queryTokens []string, ocrText string) (float64, []string) {
	assetTokens := make(map[string]bool)
	for _, t := range extract.Tokenize(ocrText) {
		assetTokens[t] = true
	}

	var matched []string
	seen := make(map[string]bool)
	for _, t := range queryTokens {
		if assetTokens[t] && !seen[t] {
			matched = append(matched, t)
			seen[t] = true
		}
	}

	return float64(len(matched)) / float64(len(queryTokens)), matched
}

// textyKeywords 以文字为目标的查询特征词
var textyKeywords = []string{
	"error", "code", "http", "forbidden", "denied",
	"invoice", "receipt", "total", "$", "usd", "cad",
}

// looksTexty 查询包含数字或典型的屏幕文字关键词
func looksTexty(query string) bool {
	for _, ch := range query {
		if ch >= '0' && ch <= '9' {
			return true
		}
	}

	q := strings.ToLower(query)
	for _, kw := range textyKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// isDigits 词元是否为纯数字
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}
