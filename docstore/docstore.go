// Package docstore 提供 core.DocumentStore 的实现。
//
//   - MongoStore：MongoDB，生产环境
//   - BadgerStore：嵌入式 Badger，单机/开发；Path 为空时为内存模式，单元测试使用
//   - Guard：包装任意实现，提供单次调用超时与熔断
//
// 示例：
//
//	ms, err := docstore.ConnectMongo(ctx, docstore.MongoOptions{URI: "mongodb://localhost:27017", Database: "recommendations"})
//	var ds core.DocumentStore = docstore.NewGuard(ms, docstore.GuardOptions{OpTimeout: 2 * time.Second})
package docstore
