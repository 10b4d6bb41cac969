package rerank

import (
	"context"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/pipeline"
)

// DefaultPremiumBoost 是 premium 用户的默认分数倍率。
const DefaultPremiumBoost = 1.2

// TierBoost 按订阅等级调整分数：premium 用户所有条目分数乘以 Factor，其他等级不变。
// 原地修改条目，条目由本次打分新分配，不会与其他请求共享。
type TierBoost struct {
	Factor float64
}

// NewTierBoost 创建等级加权节点，factor <= 0 时使用 DefaultPremiumBoost。
func NewTierBoost(factor float64) *TierBoost {
	if factor <= 0 {
		factor = DefaultPremiumBoost
	}
	return &TierBoost{Factor: factor}
}

func (n *TierBoost) Name() string {
	return "rerank.tier_boost"
}

func (n *TierBoost) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TierBoost) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if !rctx.GetUserProfile().IsPremium() {
		return items, nil
	}
	for _, it := range items {
		if it != nil {
			it.Score *= n.Factor
		}
	}
	return items, nil
}
