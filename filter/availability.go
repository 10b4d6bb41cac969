package filter

import (
	"context"

	"github.com/rushteam/recserve/core"
)

// AvailabilityChecker 判断商品当前是否可售。
type AvailabilityChecker interface {
	IsAvailable(ctx context.Context, productID string) bool
}

// AvailabilityFilter 过滤掉缺货或不存在的商品。
type AvailabilityFilter struct {
	Catalog AvailabilityChecker
}

func NewAvailabilityFilter(catalog AvailabilityChecker) *AvailabilityFilter {
	return &AvailabilityFilter{Catalog: catalog}
}

func (f *AvailabilityFilter) Name() string {
	return "filter.availability"
}

func (f *AvailabilityFilter) ShouldFilter(
	ctx context.Context,
	_ *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	if f.Catalog == nil {
		return false, nil
	}
	return !f.Catalog.IsAvailable(ctx, item.ProductID), nil
}
