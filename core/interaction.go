package core

import "time"

// InteractionKind 是用户-商品交互类型。
type InteractionKind string

const (
	KindView      InteractionKind = "view"
	KindClick     InteractionKind = "click"
	KindAddToCart InteractionKind = "add_to_cart"
	KindPurchase  InteractionKind = "purchase"
	KindRate      InteractionKind = "rate"
)

// interactionWeights 越强的意图权重越高，购买最强。
var interactionWeights = map[InteractionKind]float64{
	KindView:      1,
	KindClick:     2,
	KindAddToCart: 3,
	KindRate:      4,
	KindPurchase:  5,
}

// Weight 返回交互类型的信号强度，未知类型按 1 处理。
func (k InteractionKind) Weight() float64 {
	if w, ok := interactionWeights[k]; ok {
		return w
	}
	return 1
}

// Valid 检查是否为已知交互类型。
func (k InteractionKind) Valid() bool {
	_, ok := interactionWeights[k]
	return ok
}

// Interaction 是一条交互记录。只追加，不修改不删除。
type Interaction struct {
	UserID    string          `json:"user_id"`
	ProductID string          `json:"product_id"`
	Kind      InteractionKind `json:"interaction_type"`
	Timestamp time.Time       `json:"timestamp"`
}

// ProductSet 返回历史中出现过的商品 ID 集合。
func ProductSet(history []Interaction) map[string]struct{} {
	set := make(map[string]struct{}, len(history))
	for _, h := range history {
		set[h.ProductID] = struct{}{}
	}
	return set
}

// PurchasedSet 返回历史中购买过的商品 ID 集合。
func PurchasedSet(history []Interaction) map[string]struct{} {
	set := make(map[string]struct{})
	for _, h := range history {
		if h.Kind == KindPurchase {
			set[h.ProductID] = struct{}{}
		}
	}
	return set
}
