package core

import "slices"

// Item 是推荐链路中的统一承载结构：商品 ID、分数、特征标签。
// 每次打分都会分配新的 Item，业务规则可以修改 Score，但 Item 不会跨请求复用。
// Features 用于解释（collaborative / popular / content ...），按贡献顺序排列。
type Item struct {
	ProductID string   `json:"product_id"`
	Score     float64  `json:"score"`
	Features  []string `json:"features,omitempty"`
}

func NewItem(productID string, score float64, features ...string) *Item {
	return &Item{
		ProductID: productID,
		Score:     score,
		Features:  features,
	}
}

// AddFeature 追加特征标签，已存在则忽略。
func (it *Item) AddFeature(feature string) {
	if slices.Contains(it.Features, feature) {
		return
	}
	it.Features = append(it.Features, feature)
}

// Clone 深拷贝，用于缓存读写时避免共享。
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	return &Item{
		ProductID: it.ProductID,
		Score:     it.Score,
		Features:  slices.Clone(it.Features),
	}
}

// Truncate 返回前 n 个元素，n <= 0 或超出长度时返回全部。
func Truncate(items []*Item, n int) []*Item {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[:n]
}
