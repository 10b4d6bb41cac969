// Package algorithm 定义可插拔的打分算法与可选能力。
//
// 所有算法实现 Algorithm；训练、增量更新、评估是按变体声明的可选能力，
// 通过类型断言发现。调用方使用包级函数 Train / UpdateIncremental / Evaluate，
// 变体不支持时返回 core.ErrCapabilityNotSupported（NOT_SUPPORTED）。
package algorithm

import (
	"context"
	"fmt"

	"github.com/rushteam/recserve/core"
)

// Variant 是算法变体。
type Variant string

const (
	VariantCollaborative Variant = "collaborative"
	VariantContentBased  Variant = "content_based"
	VariantHybrid        Variant = "hybrid"
)

// Algorithm 是打分算法：给定用户上下文与候选集，返回按分数降序的新分配条目。
// 实现必须可并发调用。
type Algorithm interface {
	Name() string
	Version() string
	Variant() Variant
	Score(ctx context.Context, rctx *core.RecommendContext, candidates []*core.Product) ([]*core.Item, error)
}

// TrainingData 是全量训练输入。
type TrainingData struct {
	Interactions []core.Interaction
	Products     []*core.Product
}

// EvaluationCase 是一条离线评估样本：对 Context 与 Candidates 打分，
// 用前 K 个结果与 Relevant 比较。K <= 0 时按 10 处理。
type EvaluationCase struct {
	Context    *core.RecommendContext
	Candidates []*core.Product
	Relevant   []string
	K          int
}

// Trainer 支持全量训练。
type Trainer interface {
	Train(ctx context.Context, data TrainingData) error
}

// IncrementalUpdater 支持按单条交互增量更新。
type IncrementalUpdater interface {
	UpdateIncremental(ctx context.Context, in core.Interaction) error
}

// Evaluator 支持离线评估，返回指标名到数值的映射。
type Evaluator interface {
	Evaluate(ctx context.Context, cases []EvaluationCase) (map[string]float64, error)
}

// Capability 是可选能力名。
type Capability string

const (
	CapabilityTrain       Capability = "train"
	CapabilityIncremental Capability = "incremental_update"
	CapabilityEvaluate    Capability = "evaluate"
)

// Capabilities 返回算法声明的可选能力。
func Capabilities(alg Algorithm) []Capability {
	var caps []Capability
	if _, ok := alg.(Trainer); ok {
		caps = append(caps, CapabilityTrain)
	}
	if _, ok := alg.(IncrementalUpdater); ok {
		caps = append(caps, CapabilityIncremental)
	}
	if _, ok := alg.(Evaluator); ok {
		caps = append(caps, CapabilityEvaluate)
	}
	return caps
}

// Train 调用算法的全量训练能力。
func Train(ctx context.Context, alg Algorithm, data TrainingData) error {
	t, ok := alg.(Trainer)
	if !ok {
		return notSupported(alg, CapabilityTrain)
	}
	return t.Train(ctx, data)
}

// UpdateIncremental 调用算法的增量更新能力。
func UpdateIncremental(ctx context.Context, alg Algorithm, in core.Interaction) error {
	u, ok := alg.(IncrementalUpdater)
	if !ok {
		return notSupported(alg, CapabilityIncremental)
	}
	return u.UpdateIncremental(ctx, in)
}

// Evaluate 调用算法的离线评估能力。
func Evaluate(ctx context.Context, alg Algorithm, cases []EvaluationCase) (map[string]float64, error) {
	e, ok := alg.(Evaluator)
	if !ok {
		return nil, notSupported(alg, CapabilityEvaluate)
	}
	return e.Evaluate(ctx, cases)
}

func notSupported(alg Algorithm, c Capability) error {
	return core.NewDomainError(core.ModuleAlgorithm, core.ErrorCodeNotSupported,
		fmt.Sprintf("algorithm %s (%s): %s not supported", alg.Name(), alg.Version(), c))
}
