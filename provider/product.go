package provider

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/pkg/conv"
)

// ProductOptions 是 ProductProvider 的参数。
type ProductOptions struct {
	// LookupCacheSize 单品查询缓存容量，0 表示 10000
	LookupCacheSize int
	// LookupCacheTTL 单品缓存有效期，0 表示 5 分钟
	LookupCacheTTL time.Duration
	// SyntheticCount 目录为空时生成的演示候选数量，0 表示 100
	SyntheticCount int
	Logger         zerolog.Logger
}

// ProductProvider 提供商品目录访问，单品查询经过 LRU 缓存。
type ProductProvider struct {
	store  core.DocumentStore
	synth  *SyntheticData
	cache  *LRU[string, *core.Product]
	synthN int
	log    zerolog.Logger
}

// NewProductProvider 创建商品数据提供方。synth 为 nil 表示关闭演示数据。
func NewProductProvider(store core.DocumentStore, synth *SyntheticData, opts ProductOptions) *ProductProvider {
	if opts.LookupCacheSize <= 0 {
		opts.LookupCacheSize = 10000
	}
	if opts.LookupCacheTTL <= 0 {
		opts.LookupCacheTTL = 5 * time.Minute
	}
	if opts.SyntheticCount <= 0 {
		opts.SyntheticCount = 100
	}
	return &ProductProvider{
		store:  store,
		synth:  synth,
		cache:  NewLRU[string, *core.Product](opts.LookupCacheSize, opts.LookupCacheTTL),
		synthN: opts.SyntheticCount,
		log:    opts.Logger,
	}
}

// Get 返回商品，不存在时返回 nil。返回值只读。
func (p *ProductProvider) Get(ctx context.Context, productID string) *core.Product {
	if prod, ok := p.cache.Get(productID); ok {
		return prod
	}
	doc, err := p.store.FindOne(ctx, CollectionProducts, core.Filter{"id": productID})
	if err != nil {
		p.log.Error().Err(err).Str("product_id", productID).Msg("get product")
		return nil
	}

	var prod *core.Product
	switch {
	case doc != nil:
		prod = decodeProduct(doc)
	case p.synth.IsProduct(productID):
		prod = p.synth.Product(productID)
	default:
		return nil
	}
	p.cache.Set(productID, prod)
	return prod
}

// Candidates 返回候选商品，category 为空表示全部类目。目录为空且启用演示数据时返回演示候选。
func (p *ProductProvider) Candidates(ctx context.Context, category string, limit int) []*core.Product {
	filter := core.Filter{}
	if category != "" {
		filter["category"] = category
	}
	docs, err := p.store.FindMany(ctx, CollectionProducts, filter, core.FindOptions{Limit: int64(limit)})
	if err != nil {
		p.log.Error().Err(err).Str("category", category).Msg("get candidate products")
		return nil
	}
	if len(docs) == 0 {
		if p.synth == nil {
			return nil
		}
		return p.synthetic(category, "", min(p.synthN, positiveOr(limit, p.synthN)))
	}

	out := make([]*core.Product, 0, len(docs))
	for _, d := range docs {
		prod := decodeProduct(d)
		p.cache.Set(prod.ID, prod)
		out = append(out, prod)
	}
	return out
}

// IsAvailable 商品存在且有库存时返回 true。
func (p *ProductProvider) IsAvailable(ctx context.Context, productID string) bool {
	prod := p.Get(ctx, productID)
	return prod != nil && prod.InStock
}

// Similar 返回同类目的其他商品。
func (p *ProductProvider) Similar(ctx context.Context, productID string, limit int) []*core.Product {
	prod := p.Get(ctx, productID)
	if prod == nil || prod.Category == "" {
		return nil
	}
	docs, err := p.store.FindMany(ctx, CollectionProducts, core.Filter{
		"category": prod.Category,
		"id":       map[string]any{"$ne": productID},
	}, core.FindOptions{Limit: int64(limit)})
	if err != nil {
		p.log.Error().Err(err).Str("product_id", productID).Msg("get similar products")
		return nil
	}
	if len(docs) == 0 {
		if p.synth == nil {
			return nil
		}
		return p.synthetic(prod.Category, productID, limit)
	}
	out := make([]*core.Product, 0, len(docs))
	for _, d := range docs {
		out = append(out, decodeProduct(d))
	}
	return out
}

// SaveProduct 写入（或覆盖）商品，并使本地缓存失效。
func (p *ProductProvider) SaveProduct(ctx context.Context, prod *core.Product) error {
	_, err := p.store.UpdateOne(ctx, CollectionProducts, core.Filter{"id": prod.ID}, encodeProduct(prod), true)
	p.cache.Delete(prod.ID)
	return err
}

// synthetic 生成演示商品。类目被改写的商品不写入缓存，单品查询仍返回其原始属性。
func (p *ProductProvider) synthetic(category, excludeID string, n int) []*core.Product {
	out := p.synth.Products(n, category, excludeID)
	if category == "" {
		for _, prod := range out {
			p.cache.Set(prod.ID, prod)
		}
	}
	return out
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func decodeProduct(doc core.Document) *core.Product {
	return &core.Product{
		ID:         conv.Get(doc, "id", ""),
		Name:       conv.Get(doc, "name", ""),
		Category:   conv.Get(doc, "category", ""),
		Price:      conv.GetFloat64(doc, "price", 0),
		InStock:    conv.Get(doc, "in_stock", false),
		Attributes: conv.GetMap(doc, "attributes"),
		Popularity: conv.GetFloat64(doc, "popularity", 0),
		Rating:     conv.GetFloat64(doc, "rating", 0),
	}
}

func encodeProduct(prod *core.Product) core.Document {
	doc := core.Document{
		"id":         prod.ID,
		"name":       prod.Name,
		"category":   prod.Category,
		"price":      prod.Price,
		"in_stock":   prod.InStock,
		"popularity": prod.Popularity,
		"rating":     prod.Rating,
	}
	if prod.Attributes != nil {
		doc["attributes"] = prod.Attributes
	}
	return doc
}
