package core

// Product 是商品记录，由商品目录提供方持有。
type Product struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	Category   string         `json:"category"`
	Price      float64        `json:"price"`
	InStock    bool           `json:"in_stock"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Popularity float64        `json:"popularity"` // [0, 1]
	Rating     float64        `json:"rating"`
}

// ProductIDs 提取商品 ID 列表，保持顺序。
func ProductIDs(products []*Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		if p != nil {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
