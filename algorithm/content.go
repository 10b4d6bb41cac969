package algorithm

import (
	"context"
	"sync"

	"github.com/rushteam/recserve/core"
)

const (
	FeatureContent           = "content"
	FeaturePreferredCategory = "preferred_category"
	FeatureHistoryCategory   = "history_category"

	contentPreferenceWeight = 0.5
	contentAffinityWeight   = 0.3
	contentQualityWeight    = 0.2
	contentPriorWeight      = 0.1
)

// ProductLookup 按 ID 查商品，不存在时返回 nil。provider.ProductProvider 实现了它。
type ProductLookup interface {
	Get(ctx context.Context, id string) *core.Product
}

// Content 是基于内容的打分（content-v1）：偏好类别、历史类别亲和度、商品质量，
// 训练后再叠加一个类别先验。
type Content struct {
	lookup ProductLookup

	mu     sync.RWMutex
	priors map[string]float64
}

// NewContent 创建内容打分算法。lookup 为空时历史类别亲和度恒为 0。
func NewContent(lookup ProductLookup) *Content {
	return &Content{lookup: lookup, priors: map[string]float64{}}
}

func (c *Content) Name() string     { return "content_based" }
func (c *Content) Version() string  { return "content-v1" }
func (c *Content) Variant() Variant { return VariantContentBased }

func (c *Content) Score(ctx context.Context, rctx *core.RecommendContext, candidates []*core.Product) ([]*core.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	profile := rctx.GetUserProfile()
	var history []core.Interaction
	if rctx != nil {
		history = rctx.History
	}
	seen := core.ProductSet(history)
	affinity := c.categoryAffinity(ctx, history)

	c.mu.RLock()
	priors := c.priors
	c.mu.RUnlock()

	items := make([]*core.Item, 0, len(candidates))
	for _, p := range candidates {
		if p == nil {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		features := []string{FeatureContent}
		score := contentQualityWeight * quality(p)
		if profile.PrefersCategory(p.Category) {
			score += contentPreferenceWeight
			features = append(features, FeaturePreferredCategory)
		}
		if a := affinity[p.Category]; a > 0 {
			score += contentAffinityWeight * a
			features = append(features, FeatureHistoryCategory)
		}
		score += contentPriorWeight * priors[p.Category]
		if score <= 0 {
			continue
		}
		items = append(items, core.NewItem(p.ID, score, features...))
	}
	sortByScore(items)
	return items, nil
}

// categoryAffinity 返回各类别在加权历史中的占比。
func (c *Content) categoryAffinity(ctx context.Context, history []core.Interaction) map[string]float64 {
	out := map[string]float64{}
	if c.lookup == nil || len(history) == 0 {
		return out
	}
	categories := make(map[string]string, len(history))
	var total float64
	for _, h := range history {
		cat, ok := categories[h.ProductID]
		if !ok {
			if p := c.lookup.Get(ctx, h.ProductID); p != nil {
				cat = p.Category
			}
			categories[h.ProductID] = cat
		}
		w := h.Kind.Weight()
		total += w
		if cat != "" {
			out[cat] += w
		}
	}
	for cat, w := range out {
		out[cat] = w / total
	}
	return out
}

func quality(p *core.Product) float64 {
	q := p.Popularity * p.Rating / 5
	switch {
	case q < 0:
		return 0
	case q > 1:
		return 1
	}
	return q
}

// Train 从训练数据学习类别先验：按交互权重累计类别热度，归一化到 [0, 1]。
// 交互涉及的商品类别先从 data.Products 解析，其次走 lookup。
func (c *Content) Train(ctx context.Context, data TrainingData) error {
	byID := make(map[string]string, len(data.Products))
	for _, p := range data.Products {
		if p != nil {
			byID[p.ID] = p.Category
		}
	}
	counts := map[string]float64{}
	var peak float64
	for i, in := range data.Interactions {
		if i%256 == 255 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		cat, ok := byID[in.ProductID]
		if !ok && c.lookup != nil {
			if p := c.lookup.Get(ctx, in.ProductID); p != nil {
				cat = p.Category
			}
			byID[in.ProductID] = cat
		}
		if cat == "" {
			continue
		}
		counts[cat] += in.Kind.Weight()
		if counts[cat] > peak {
			peak = counts[cat]
		}
	}
	priors := make(map[string]float64, len(counts))
	for cat, n := range counts {
		priors[cat] = n / peak
	}

	c.mu.Lock()
	c.priors = priors
	c.mu.Unlock()
	return nil
}

// Prior 返回类别先验，未训练或未知类别为 0。
func (c *Content) Prior(category string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.priors[category]
}

func (c *Content) Evaluate(ctx context.Context, cases []EvaluationCase) (map[string]float64, error) {
	return evaluate(ctx, c, cases)
}
