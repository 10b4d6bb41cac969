package rerank

import (
	"context"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/pipeline"
)

// TopNNode 是一个 Top-N 截断节点，用于在排序后截取前 N 个物品。
// 通常在排序（Rank）节点之后使用，用于限制返回结果数量。
//
// 缓存中保存完整的规则结果，截断只发生在返回给调用方之前。
//
// 示例：
//
//	p := pipeline.New(
//	    &filter.FilterNode{...},  // 过滤
//	    rerank.NewTierBoost(1.2), // 等级加权
//	    &rerank.SortNode{},       // 稳定排序
//	    &rerank.TopNNode{N: 20},  // 截取 Top 20
//	)
type TopNNode struct {
	// N 要保留的物品数量（Top N）
	// 如果 N <= 0，则返回所有物品（不截断）
	// 如果 N > len(items)，则返回所有物品
	N int
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopNNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	return core.Truncate(items, n.N), nil
}
