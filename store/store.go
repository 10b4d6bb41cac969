// Package store 提供 core.ScanStore 的实现（内存 / Redis）。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//
//	var kv core.ScanStore = store.NewMemoryStore()
//	var kv core.ScanStore = store.NewRedisStore(store.RedisOptions{Addr: "localhost:6379"})
package store
