package algorithm

import (
	"context"

	"github.com/rushteam/recserve/core"
)

// DefaultEvaluationK 是 EvaluationCase.K 未设置时的截断位置。
const DefaultEvaluationK = 10

// 评估指标名
const (
	MetricPrecision = "precision_at_k"
	MetricRecall    = "recall_at_k"
	MetricHitRate   = "hit_rate"
	MetricCases     = "cases"
)

// evaluate 对每个样本打分，取前 K 个与 Relevant 比较，返回各指标的样本平均值。
// Relevant 为空的样本不计入 recall 的分母。
func evaluate(ctx context.Context, alg Algorithm, cases []EvaluationCase) (map[string]float64, error) {
	if len(cases) == 0 {
		return nil, core.InvalidInput(core.ModuleAlgorithm, "evaluate: no cases")
	}
	var precision, recall, hits float64
	recallCases := 0
	for _, c := range cases {
		items, err := alg.Score(ctx, c.Context, c.Candidates)
		if err != nil {
			return nil, err
		}
		k := c.K
		if k <= 0 {
			k = DefaultEvaluationK
		}
		top := core.Truncate(items, k)

		relevant := make(map[string]struct{}, len(c.Relevant))
		for _, id := range c.Relevant {
			relevant[id] = struct{}{}
		}
		n := 0
		for _, it := range top {
			if _, ok := relevant[it.ProductID]; ok {
				n++
			}
		}
		precision += float64(n) / float64(k)
		if len(relevant) > 0 {
			recall += float64(n) / float64(len(relevant))
			recallCases++
		}
		if n > 0 {
			hits++
		}
	}
	total := float64(len(cases))
	out := map[string]float64{
		MetricPrecision: precision / total,
		MetricRecall:    0,
		MetricHitRate:   hits / total,
		MetricCases:     total,
	}
	if recallCases > 0 {
		out[MetricRecall] = recall / float64(recallCases)
	}
	return out, nil
}
