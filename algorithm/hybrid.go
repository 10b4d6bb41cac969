package algorithm

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/recserve/core"
)

const (
	FeatureHybrid = "hybrid"

	// onlineWeight 是在线热度项的权重。
	onlineWeight = 0.1
	// defaultOnlineCapacity 是在线计数表的上限，满时清空重新累计。
	defaultOnlineCapacity = 100000
)

// HybridOptions 配置混合打分。
type HybridOptions struct {
	// Weights 依次为协同过滤、内容打分的权重，会被归一化；零值时使用 0.6 / 0.4
	Weights [2]float64

	// OnlineCapacity 是在线计数表上限
	OnlineCapacity int
}

// Hybrid 是混合打分（v2-beta）：并发运行协同过滤与内容打分并加权合并，
// 再叠加由 UpdateIncremental 累计的在线热度。
type Hybrid struct {
	cf      *Collaborative
	content *Content
	weights [2]float64

	mu       sync.RWMutex
	capacity int
	counts   map[string]float64
	peak     float64
}

func NewHybrid(cf *Collaborative, content *Content, opts HybridOptions) *Hybrid {
	w := opts.Weights
	sum := w[0] + w[1]
	if w[0] < 0 || w[1] < 0 || sum <= 0 {
		w, sum = [2]float64{0.6, 0.4}, 1
	}
	if opts.OnlineCapacity <= 0 {
		opts.OnlineCapacity = defaultOnlineCapacity
	}
	return &Hybrid{
		cf:       cf,
		content:  content,
		weights:  [2]float64{w[0] / sum, w[1] / sum},
		capacity: opts.OnlineCapacity,
		counts:   map[string]float64{},
	}
}

func (h *Hybrid) Name() string     { return "hybrid" }
func (h *Hybrid) Version() string  { return "v2-beta" }
func (h *Hybrid) Variant() Variant { return VariantHybrid }

// Weights 返回归一化后的权重。
func (h *Hybrid) Weights() [2]float64 { return h.weights }

func (h *Hybrid) Score(ctx context.Context, rctx *core.RecommendContext, candidates []*core.Product) ([]*core.Item, error) {
	var cfItems, contentItems []*core.Item
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := h.cf.Score(gctx, rctx, candidates)
		cfItems = items
		return err
	})
	g.Go(func() error {
		items, err := h.content.Score(gctx, rctx, candidates)
		contentItems = items
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cfByID := index(cfItems)
	contentByID := index(contentItems)

	h.mu.RLock()
	defer h.mu.RUnlock()

	items := make([]*core.Item, 0, len(candidates))
	emitted := make(map[string]struct{}, len(candidates))
	for _, p := range candidates {
		if p == nil {
			continue
		}
		if _, dup := emitted[p.ID]; dup {
			continue
		}
		a, okA := cfByID[p.ID]
		b, okB := contentByID[p.ID]
		if !okA && !okB {
			continue
		}
		emitted[p.ID] = struct{}{}

		it := core.NewItem(p.ID, 0)
		if okA {
			it.Score += h.weights[0] * a.Score
			for _, f := range a.Features {
				it.AddFeature(f)
			}
		}
		if okB {
			it.Score += h.weights[1] * b.Score
			for _, f := range b.Features {
				it.AddFeature(f)
			}
		}
		if h.peak > 0 {
			it.Score += onlineWeight * h.counts[p.ID] / h.peak
		}
		it.AddFeature(FeatureHybrid)
		if it.Score <= 0 {
			continue
		}
		items = append(items, it)
	}
	sortByScore(items)
	return items, nil
}

// UpdateIncremental 按交互权重累计商品在线热度。
func (h *Hybrid) UpdateIncremental(ctx context.Context, in core.Interaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if in.ProductID == "" || !in.Kind.Valid() {
		return core.InvalidInput(core.ModuleAlgorithm, "incremental update: invalid interaction %q/%q", in.ProductID, in.Kind)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.counts[in.ProductID]; !ok && len(h.counts) >= h.capacity {
		clear(h.counts)
		h.peak = 0
	}
	h.counts[in.ProductID] += in.Kind.Weight()
	if h.counts[in.ProductID] > h.peak {
		h.peak = h.counts[in.ProductID]
	}
	return nil
}

// OnlinePopularity 返回商品归一化后的在线热度，范围 [0, 1]。
func (h *Hybrid) OnlinePopularity(productID string) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.peak == 0 {
		return 0
	}
	return h.counts[productID] / h.peak
}

func (h *Hybrid) Evaluate(ctx context.Context, cases []EvaluationCase) (map[string]float64, error) {
	return evaluate(ctx, h, cases)
}

func index(items []*core.Item) map[string]*core.Item {
	m := make(map[string]*core.Item, len(items))
	for _, it := range items {
		m[it.ProductID] = it
	}
	return m
}
