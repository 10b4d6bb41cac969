package pipeline

import (
	"context"

	"github.com/rushteam/recserve/core"
)

// Kind 标记 Node 所处的阶段，用于日志与指标分组。
type Kind string

const (
	KindFilter Kind = "filter" // 剔除不符合约束的候选
	KindReRank Kind = "rerank" // 在打分结果上做业务调整（加权、排序、截断）
)

// Node 是业务规则链的最小单元，统一采用“输入 items -> 输出 items”的形态。
// Node 可以原地修改 Item 的分数，但不得保留对 items 的引用。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *core.RecommendContext,
		items []*core.Item,
	) ([]*core.Item, error)
}
