package filter

import (
	"context"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/pkg/dsl"
)

// ProductLookup 按 ID 查商品，不存在时返回 nil。
type ProductLookup interface {
	Get(ctx context.Context, id string) *core.Product
}

// ExprFilter 是表达式过滤器：表达式为 true 的物品被过滤掉。
//
// 示例：
//
//	prg, _ := dsl.Compile(`product.price > 500.0 && user.tier == "basic"`)
//	f := filter.NewExprFilter(prg, products)
type ExprFilter struct {
	Program  *dsl.Program
	Products ProductLookup
}

// NewExprFilter 创建表达式过滤器。products 为空时 product 变量为空 map。
func NewExprFilter(prg *dsl.Program, products ProductLookup) *ExprFilter {
	return &ExprFilter{Program: prg, Products: products}
}

// CompileExprFilter 编译表达式并创建过滤器，expr 为空时返回 nil。
func CompileExprFilter(expr string, products ProductLookup) (*ExprFilter, error) {
	if expr == "" {
		return nil, nil
	}
	prg, err := dsl.Compile(expr)
	if err != nil {
		return nil, err
	}
	return NewExprFilter(prg, products), nil
}

func (f *ExprFilter) Name() string {
	return "filter.expr"
}

func (f *ExprFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil || f.Program == nil {
		return false, nil
	}
	var product *core.Product
	if f.Products != nil {
		product = f.Products.Get(ctx, item.ProductID)
	}
	return f.Program.Eval(item, product, rctx.GetUserProfile())
}
