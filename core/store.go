package core

import (
	"context"
	"time"
)

// Store 是 KV 存储的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 遵循依赖倒置原则：领域层定义接口，基础设施层实现接口
//   - 避免循环依赖：领域层不依赖基础设施层
//
// 使用场景：
//   - 推荐结果缓存（cache 包）
//
// 实现：
//   - store.MemoryStore 实现此接口
//   - store.RedisStore 实现此接口
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值，不存在时返回 ErrStoreNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value，ttl <= 0 表示不过期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete 删除 key，返回实际删除的数量
	Delete(ctx context.Context, keys ...string) (int64, error)

	// Close 关闭连接/释放资源
	Close() error
}

// ScanStore 是 Store 的扩展接口，支持游标扫描与整体清空。
//
// Scan 必须是增量的：每次只返回一页 key，由调用方持有游标继续，
// 不允许一次性物化整个 key 空间。
type ScanStore interface {
	Store

	// Ping 检查后端是否可达
	Ping(ctx context.Context) error

	// Scan 按前缀增量扫描，cursor 为 0 表示开始；返回的 next 为 0 表示扫描结束
	Scan(ctx context.Context, cursor uint64, prefix string, count int64) (keys []string, next uint64, err error)

	// Flush 清空当前库
	Flush(ctx context.Context) error
}

// Store 错误定义（使用统一的 DomainError）
var (
	// ErrStoreNotFound 表示 key 不存在
	ErrStoreNotFound = NewDomainError(ModuleStore, ErrorCodeNotFound, "store: key not found")

	// ErrStoreNotSupported 表示操作不支持
	ErrStoreNotSupported = NewDomainError(ModuleStore, ErrorCodeNotSupported, "store: operation not supported")
)

// IsStoreNotFound 检查错误是否为 key 不存在（使用统一的错误检查）
func IsStoreNotFound(err error) bool {
	if err == nil {
		return false
	}
	domainErr := GetDomainError(err)
	if domainErr != nil && domainErr.Module == ModuleStore {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}

// Document 是文档存储中的一条记录。字段值为 JSON 兼容类型。
type Document map[string]any

// Filter 是文档查询条件。
//
// 支持的写法：
//   - {"id": "p1"}                 等值
//   - {"id": {"$ne": "p1"}}        不等
//   - {"category": {"$in": [...]}} 包含
type Filter map[string]any

// SortField 描述一个排序字段，Desc 为 true 表示降序。
type SortField struct {
	Field string
	Desc  bool
}

// FindOptions 是 FindMany 的可选参数。Limit/Skip 为 0 表示不限制。
type FindOptions struct {
	Sort  []SortField
	Limit int64
	Skip  int64
}

// IndexSpec 描述一个索引。
type IndexSpec struct {
	Name   string
	Fields []SortField
	Unique bool
}

// DocumentStore 是文档型存储的领域接口（用户、交互日志、商品）。
//
// 实现：
//   - docstore.MongoStore：生产环境（连接池）
//   - docstore.BadgerStore：嵌入式，开发/测试
//   - docstore.Guard：为任意实现加上单次调用超时与熔断
//
// 单条不存在时 FindOne 返回 (nil, nil)；后端故障返回 UNAVAILABLE 错误。
type DocumentStore interface {
	Name() string
	Ping(ctx context.Context) error

	FindOne(ctx context.Context, collection string, filter Filter) (Document, error)
	FindMany(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]Document, error)

	// InsertOne 返回新文档的 ID
	InsertOne(ctx context.Context, collection string, doc Document) (string, error)
	// InsertMany 返回插入的数量
	InsertMany(ctx context.Context, collection string, docs []Document) (int, error)
	// UpdateOne 将 update 中的字段合并到第一个匹配的文档；upsert 为 true 时不存在则插入。返回是否匹配或插入了文档。
	UpdateOne(ctx context.Context, collection string, filter Filter, update Document, upsert bool) (bool, error)
	// DeleteOne 返回是否删除了文档
	DeleteOne(ctx context.Context, collection string, filter Filter) (bool, error)
	// CreateIndex 返回索引名
	CreateIndex(ctx context.Context, collection string, index IndexSpec) (string, error)

	Close(ctx context.Context) error
}
