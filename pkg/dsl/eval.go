// Package dsl 是基于 CEL (Common Expression Language) 的规则表达式解释器。
//
// 表达式可访问三个变量：
//   - item：product_id / score / features
//   - product：id / category / price / in_stock / popularity / rating / attributes
//   - user：id / tier / segments / categories
//
// 示例：
//   - `product.price > 500.0 && user.tier != "premium"`
//   - `product.category == "books" && "new_customer" in user.segments`
//   - `item.score < 0.2`
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/recserve/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("product", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("user", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译好的布尔表达式，可并发调用 Eval。
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式，要求结果类型为 bool。
func Compile(expr string) (*Program, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("dsl: env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("dsl: compile %q: %w", expr, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("dsl: expression %q must return bool, got %s", expr, out)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("dsl: program %q: %w", expr, err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

// String 返回原始表达式。
func (p *Program) String() string { return p.expr }

// Eval 对一个条目求值。product / user 为 nil 时对应变量为空 map，
// 访问不存在的字段会返回错误，可用 has(product.category) 判断。
func (p *Program) Eval(item *core.Item, product *core.Product, user *core.UserProfile) (bool, error) {
	out, _, err := p.prg.Eval(Input(item, product, user))
	if err != nil {
		return false, fmt.Errorf("dsl: eval %q: %w", p.expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("dsl: expression %q must return bool, got %T", p.expr, out.Value())
	}
	return result, nil
}

// Input 构建 CEL 表达式的输入数据。
func Input(item *core.Item, product *core.Product, user *core.UserProfile) map[string]any {
	itemVars := map[string]any{}
	if item != nil {
		features := item.Features
		if features == nil {
			features = []string{}
		}
		itemVars = map[string]any{
			"product_id": item.ProductID,
			"score":      item.Score,
			"features":   features,
		}
	}

	productVars := map[string]any{}
	if product != nil {
		attrs := product.Attributes
		if attrs == nil {
			attrs = map[string]any{}
		}
		productVars = map[string]any{
			"id":         product.ID,
			"category":   product.Category,
			"price":      product.Price,
			"in_stock":   product.InStock,
			"popularity": product.Popularity,
			"rating":     product.Rating,
			"attributes": attrs,
		}
	}

	userVars := map[string]any{}
	if user != nil {
		segments := user.Segments
		if segments == nil {
			segments = []string{}
		}
		categories := user.Preferences.Categories
		if categories == nil {
			categories = []string{}
		}
		userVars = map[string]any{
			"id":         user.ID,
			"tier":       string(user.Tier),
			"segments":   segments,
			"categories": categories,
		}
	}

	return map[string]any{
		"item":    itemVars,
		"product": productVars,
		"user":    userVars,
	}
}
