package rerank

import (
	"context"
	"sort"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/pipeline"
)

// SortNode 按分数降序稳定排序，同分保持输入顺序。
type SortNode struct{}

func (n *SortNode) Name() string {
	return "rerank.sort"
}

func (n *SortNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *SortNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	return items, nil
}
