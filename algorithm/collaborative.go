package algorithm

import (
	"context"
	"sort"

	"github.com/rushteam/recserve/core"
)

const (
	// PopularFallbackSize 是无历史用户的热门兜底条数。
	PopularFallbackSize = 20
	// PopularFallbackScore 是热门兜底的固定分数。
	PopularFallbackScore = 0.5

	FeatureCollaborative = "collaborative"
	FeaturePopular       = "popular"
)

// Collaborative 是协同过滤打分（v1）。
//
// 有历史时，候选分数为其与历史商品相似度按交互权重的加权平均；
// 历史为空时退化为伪热度排序。相似度只依赖商品 ID，按无序对缓存。
type Collaborative struct {
	sims *SimilarityCache
}

// NewCollaborative 创建协同过滤算法，similarityCacheSize 为相似度缓存上限。
func NewCollaborative(similarityCacheSize int) *Collaborative {
	return &Collaborative{sims: NewSimilarityCache(similarityCacheSize)}
}

func (c *Collaborative) Name() string     { return "collaborative_filtering" }
func (c *Collaborative) Version() string  { return "v1" }
func (c *Collaborative) Variant() Variant { return VariantCollaborative }

// Score 对候选打分。返回的条目不含历史中出现过的商品，分数均大于 0，按分数降序。
func (c *Collaborative) Score(ctx context.Context, rctx *core.RecommendContext, candidates []*core.Product) ([]*core.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var history []core.Interaction
	if rctx != nil {
		history = rctx.History
	}
	if len(history) == 0 {
		return popular(candidates), nil
	}

	seen := core.ProductSet(history)
	items := make([]*core.Item, 0, len(candidates))
	for i, p := range candidates {
		if p == nil {
			continue
		}
		if i%64 == 63 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		score := c.score(p.ID, history)
		if score <= 0 {
			continue
		}
		items = append(items, core.NewItem(p.ID, score, FeatureCollaborative))
	}
	sortByScore(items)
	return items, nil
}

func (c *Collaborative) score(productID string, history []core.Interaction) float64 {
	var sum, weights float64
	for _, h := range history {
		w := h.Kind.Weight()
		sum += c.sims.Similarity(productID, h.ProductID) * w
		weights += w
	}
	if weights == 0 {
		return 0
	}
	return sum / weights
}

// popular 按伪热度降序取前 PopularFallbackSize 个候选，同分保持候选顺序。
func popular(candidates []*core.Product) []*core.Item {
	type ranked struct {
		id  string
		pop uint64
	}
	rs := make([]ranked, 0, len(candidates))
	for _, p := range candidates {
		if p != nil {
			rs = append(rs, ranked{id: p.ID, pop: pseudoPopularity(p.ID)})
		}
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].pop > rs[j].pop })
	if len(rs) > PopularFallbackSize {
		rs = rs[:PopularFallbackSize]
	}
	items := make([]*core.Item, len(rs))
	for i, r := range rs {
		items[i] = core.NewItem(r.id, PopularFallbackScore, FeaturePopular)
	}
	return items
}

// sortByScore 按分数降序稳定排序。
func sortByScore(items []*core.Item) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
}
