// Package provider 是用户与商品数据的访问层，构建在 core.DocumentStore 之上。
//
// 读操作的存储错误只记录日志并返回空结果（不存在 / 空列表 / false），
// 唯一的例外是 RecordInteraction：写入失败会返回 UNAVAILABLE 错误。
// SyntheticData 非 nil 时，对带演示前缀且在存储中不存在的 ID 生成演示数据。
package provider

import (
	"context"

	"github.com/rushteam/recserve/core"
)

// 集合名
const (
	CollectionUsers        = "users"
	CollectionInteractions = "interactions"
	CollectionProducts     = "products"
)

// Indexes 是启动时需要确保存在的索引。
var Indexes = map[string][]core.IndexSpec{
	CollectionUsers: {
		{Fields: []core.SortField{{Field: "id"}}, Unique: true},
	},
	CollectionProducts: {
		{Fields: []core.SortField{{Field: "id"}}, Unique: true},
		{Fields: []core.SortField{{Field: "category"}}},
	},
	CollectionInteractions: {
		{Fields: []core.SortField{{Field: "user_id"}, {Field: "timestamp", Desc: true}}},
	},
}

// EnsureIndexes 创建所有集合的索引。
func EnsureIndexes(ctx context.Context, store core.DocumentStore) error {
	for collection, specs := range Indexes {
		for _, spec := range specs {
			if _, err := store.CreateIndex(ctx, collection, spec); err != nil {
				return err
			}
		}
	}
	return nil
}
