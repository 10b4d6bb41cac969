package provider

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/rushteam/recserve/core"
)

// SyntheticData 生成确定性的演示用户与商品，仅在 fallback.enabled 时启用。
//
// 只识别带配置前缀的 ID（默认 test_ / product_），前缀后的数字决定生成的属性；
// 数字解析失败时用 ID 的哈希代替。
type SyntheticData struct {
	UserPrefix    string
	ProductPrefix string
}

// NewSyntheticData 创建演示数据源，空前缀使用默认值。
func NewSyntheticData(userPrefix, productPrefix string) *SyntheticData {
	if userPrefix == "" {
		userPrefix = "test_"
	}
	if productPrefix == "" {
		productPrefix = "product_"
	}
	return &SyntheticData{UserPrefix: userPrefix, ProductPrefix: productPrefix}
}

// 演示商品的类目与基础价格
var (
	syntheticCategories = []string{"electronics", "books", "clothing", "home", "sports"}
	syntheticBasePrice  = map[string]float64{"electronics": 100, "books": 15, "clothing": 30}
	syntheticColors     = []string{"red", "blue", "green", "black"}
	syntheticSizes      = []string{"small", "medium", "large"}
)

// SyntheticCandidateStart 是演示候选集的起始编号（product_1000 ... product_1099）。
const SyntheticCandidateStart = 1000

// IsUser 是否为演示用户 ID。
func (s *SyntheticData) IsUser(id string) bool {
	return s != nil && strings.HasPrefix(id, s.UserPrefix)
}

// IsProduct 是否为演示商品 ID。
func (s *SyntheticData) IsProduct(id string) bool {
	return s != nil && strings.HasPrefix(id, s.ProductPrefix)
}

func numericID(id, prefix string) int {
	if n, err := strconv.Atoi(strings.TrimPrefix(id, prefix)); err == nil && n >= 0 {
		return n
	}
	return int(xxhash.Sum64String(id) % 1000)
}

// User 生成演示用户画像。
func (s *SyntheticData) User(id string) *core.UserProfile {
	n := numericID(id, s.UserPrefix)

	tier := core.TierBasic
	switch {
	case n%10 == 0:
		tier = core.TierPremium
	case n%5 == 0:
		tier = core.TierPlus
	}

	segments := []string{}
	if n%2 == 0 {
		segments = append(segments, "high_value")
	}
	if n%3 == 0 {
		segments = append(segments, "frequent_shopper")
	}
	if n%7 == 0 {
		segments = append(segments, "new_customer")
	}

	categories := []string{"clothing", "home"}
	if n%2 == 0 {
		categories = []string{"electronics", "books"}
	}

	return &core.UserProfile{
		ID:          id,
		Name:        fmt.Sprintf("Test User %d", n),
		Email:       fmt.Sprintf("test%d@example.com", n),
		Tier:        tier,
		Segments:    segments,
		Preferences: core.Preferences{Categories: categories},
	}
}

// History 生成演示交互历史：20 次浏览、5 次点击、1 次购买，按时间倒序，最多 limit 条。
func (s *SyntheticData) History(userID string, limit int) []core.Interaction {
	n := numericID(userID, s.UserPrefix)
	at := func(day, hour int) time.Time {
		return time.Date(2023, time.May, day, hour, 0, 0, 0, time.UTC)
	}
	product := func(i int) string {
		return fmt.Sprintf("%s%d", s.ProductPrefix, (n*i)%1000)
	}

	var out []core.Interaction
	for i := 1; i <= 20; i++ {
		out = append(out, core.Interaction{UserID: userID, ProductID: product(i), Kind: core.KindView, Timestamp: at(i, 10)})
	}
	for i := 2; i <= 10; i += 2 {
		out = append(out, core.Interaction{UserID: userID, ProductID: product(i), Kind: core.KindClick, Timestamp: at(i, 11)})
	}
	for i := 3; i <= 5; i += 3 {
		out = append(out, core.Interaction{UserID: userID, ProductID: product(i), Kind: core.KindPurchase, Timestamp: at(i, 12)})
	}

	slices.SortStableFunc(out, func(a, b core.Interaction) int { return b.Timestamp.Compare(a.Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Product 生成演示商品。
func (s *SyntheticData) Product(id string) *core.Product {
	n := numericID(id, s.ProductPrefix)
	category := syntheticCategories[n%len(syntheticCategories)]
	base, ok := syntheticBasePrice[category]
	if !ok {
		base = 10
	}
	return &core.Product{
		ID:       id,
		Name:     fmt.Sprintf("%s Item %d", strings.ToUpper(category[:1])+category[1:], n),
		Category: category,
		Price:    base + float64(n%10)*5,
		InStock:  n%10 != 0,
		Attributes: map[string]any{
			"color":  syntheticColors[n%len(syntheticColors)],
			"size":   syntheticSizes[n%len(syntheticSizes)],
			"weight": float64(n%5) + 0.5,
		},
		Popularity: float64(1000-n%1000) / 1000,
		Rating:     min(5.0, 3.0+float64(n%10)/5),
	}
}

// Products 生成 count 个演示商品（从 product_1000 开始编号）。指定 category 时所有商品
// 归入该类目；excludeID 对应的商品被跳过，由后续编号补足。
func (s *SyntheticData) Products(count int, category, excludeID string) []*core.Product {
	out := make([]*core.Product, 0, count)
	for i := 0; len(out) < count; i++ {
		id := fmt.Sprintf("%s%d", s.ProductPrefix, SyntheticCandidateStart+i)
		if id == excludeID {
			continue
		}
		p := s.Product(id)
		if category != "" {
			p.Category = category
		}
		out = append(out, p)
	}
	return out
}
