package pipeline

import (
	"context"
	"fmt"

	"github.com/rushteam/recserve/core"
)

// Pipeline 把业务规则拆成按顺序执行的 Node 链。
// 推荐编排中的顺序固定：过滤 -> 等级加权 -> 稳定排序。
type Pipeline struct {
	Nodes []Node
}

// New 按给定顺序组装 Pipeline，跳过 nil 节点。
func New(nodes ...Node) *Pipeline {
	p := &Pipeline{Nodes: make([]Node, 0, len(nodes))}
	for _, n := range nodes {
		if n != nil {
			p.Nodes = append(p.Nodes, n)
		}
	}
	return p
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", node.Name(), err)
		}
		cur = next
	}
	return cur, nil
}

// Names 返回节点名，用于日志。
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		names[i] = n.Name()
	}
	return names
}
