// Package config 加载 recserve 的运行配置。
//
// 优先级：环境变量 > 配置文件 > 默认值。环境变量统一使用 RECSERVE_ 前缀，
// 第一个下划线分隔配置段，例如 RECSERVE_CACHE_TTL -> cache.ttl，
// RECSERVE_RECOMMEND_DEFAULT_LIMIT -> recommend.default_limit。
package config

import "time"

// Config 是进程级配置。
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Mongo     MongoConfig     `koanf:"mongo"`
	DocStore  DocStoreConfig  `koanf:"docstore"`
	Redis     RedisConfig     `koanf:"redis"`
	Cache     CacheConfig     `koanf:"cache"`
	Recommend RecommendConfig `koanf:"recommend"`
	Algorithm AlgorithmConfig `koanf:"algorithm"`
	Rules     RulesConfig     `koanf:"rules"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Fallback  FallbackConfig  `koanf:"fallback"`
	Batch     BatchConfig     `koanf:"batch"`
	Kafka     KafkaConfig     `koanf:"kafka"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

type MongoConfig struct {
	URI            string        `koanf:"uri"`
	Database       string        `koanf:"database"`
	MaxPoolSize    uint64        `koanf:"max_pool_size"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// DocStoreConfig 文档存储后端：mongo 或 badger（嵌入式，适合单机/开发）。
type DocStoreConfig struct {
	Backend         string        `koanf:"backend"`
	BadgerPath      string        `koanf:"badger_path"` // 为空时使用内存模式
	OpTimeout       time.Duration `koanf:"op_timeout"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// CacheConfig 推荐结果缓存。Backend: redis 或 memory。
type CacheConfig struct {
	Backend string        `koanf:"backend"`
	TTL     time.Duration `koanf:"ttl"`
}

type RecommendConfig struct {
	DefaultLimit    int           `koanf:"default_limit"`
	MaxLimit        int           `koanf:"max_limit"`
	HistoryLimit    int           `koanf:"history_limit"`
	CandidateLimit  int           `koanf:"candidate_limit"`
	RealtimeUpdates bool          `koanf:"realtime_updates"`
	SingleFlight    bool          `koanf:"single_flight"`
	ScoreTimeout    time.Duration `koanf:"score_timeout"`
}

type AlgorithmConfig struct {
	Version             string    `koanf:"version"`
	AvailableVersions   []string  `koanf:"available_versions"`
	HybridWeights       []float64 `koanf:"hybrid_weights"`
	SimilarityCacheSize int       `koanf:"similarity_cache_size"`
}

type RulesConfig struct {
	PremiumBoost float64 `koanf:"premium_boost"`
	// ExcludeExpr 可选的 CEL 表达式，命中的条目被剔除，例如 `product.price > 1000.0`
	ExcludeExpr string `koanf:"exclude_expr"`
}

type CatalogConfig struct {
	LookupCacheSize int           `koanf:"lookup_cache_size"`
	LookupCacheTTL  time.Duration `koanf:"lookup_cache_ttl"`
}

// FallbackConfig 控制演示数据。关闭时缺失的用户/商品按“不存在”处理。
type FallbackConfig struct {
	Enabled       bool   `koanf:"enabled"`
	UserPrefix    string `koanf:"user_prefix"`
	ProductPrefix string `koanf:"product_prefix"`
}

type BatchConfig struct {
	Workers int `koanf:"workers"`
	Size    int `koanf:"size"`
	MaxJobs int `koanf:"max_jobs"`
}

// KafkaConfig 反馈事件流；Brokers 为空时不发布。
type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

// Default 返回默认配置。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "recommendations",
			MaxPoolSize:    50,
			ConnectTimeout: 10 * time.Second,
		},
		DocStore: DocStoreConfig{
			Backend:         "mongo",
			OpTimeout:       2 * time.Second,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Cache: CacheConfig{Backend: "redis", TTL: time.Hour},
		Recommend: RecommendConfig{
			DefaultLimit:    10,
			MaxLimit:        100,
			HistoryLimit:    100,
			CandidateLimit:  1000,
			RealtimeUpdates: true,
		},
		Algorithm: AlgorithmConfig{
			Version:             "v1",
			AvailableVersions:   []string{"v1", "v2-beta", "content-v1"},
			HybridWeights:       []float64{0.6, 0.4},
			SimilarityCacheSize: 100000,
		},
		Rules:    RulesConfig{PremiumBoost: 1.2},
		Catalog:  CatalogConfig{LookupCacheSize: 10000, LookupCacheTTL: 5 * time.Minute},
		Fallback: FallbackConfig{Enabled: true, UserPrefix: "test_", ProductPrefix: "product_"},
		Batch:    BatchConfig{Workers: 4, Size: 100, MaxJobs: 1000},
		Kafka:    KafkaConfig{Topic: "recommendation-feedback"},
	}
}
