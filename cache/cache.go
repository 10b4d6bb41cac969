// Package cache 是推荐结果缓存，构建在 core.ScanStore 之上。
//
// 缓存是“失败开放”的：后端不可达或编解码失败都只表现为未命中/写入失败，
// 从不向调用方返回错误。后端一旦出现非 not-found 错误，缓存永久关闭并只记录一次日志。
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/metrics"
)

// ScanCount 是前缀删除时每页扫描的 key 数量。
const ScanCount = 100

// Options 是 Cache 的参数。
type Options struct {
	// PingTimeout 构造时探测后端的超时，0 表示 2s
	PingTimeout time.Duration
	Logger      zerolog.Logger
}

// Cache 推荐结果缓存。可安全并发使用。
type Cache struct {
	backend  core.ScanStore
	enabled  atomic.Bool
	disabled sync.Once
	log      zerolog.Logger
}

// New 创建缓存并探测后端；不可达时返回一个已关闭的缓存，而不是错误。
// backend 为 nil 时同样返回已关闭的缓存。
func New(ctx context.Context, backend core.ScanStore, opts Options) *Cache {
	c := &Cache{backend: backend, log: opts.Logger}
	if backend == nil {
		c.log.Warn().Msg("no cache backend configured, caching disabled")
		metrics.CacheEnabled.Set(0)
		return c
	}

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := backend.Ping(pctx); err != nil {
		c.disable("ping", err)
		return c
	}

	c.enabled.Store(true)
	metrics.CacheEnabled.Set(1)
	c.log.Info().Str("backend", backend.Name()).Msg("cache enabled")
	return c
}

// Enabled 返回缓存当前是否可用。
func (c *Cache) Enabled() bool { return c.enabled.Load() }

// Get 读取 key 并 JSON 解码到 dst，命中返回 true。
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	if !c.Enabled() {
		return false
	}
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !core.IsStoreNotFound(err) {
			c.fail("get", err)
		}
		metrics.CacheMisses.Inc()
		c.log.Debug().Str("key", key).Msg("cache miss")
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.CacheErrors.WithLabelValues("decode").Inc()
		metrics.CacheMisses.Inc()
		c.log.Warn().Err(err).Str("key", key).Msg("cache entry not decodable, treating as miss")
		return false
	}
	metrics.CacheHits.Inc()
	c.log.Debug().Str("key", key).Msg("cache hit")
	return true
}

// Set JSON 编码 value 并写入，ttl <= 0 表示不过期。
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if !c.Enabled() {
		return false
	}
	data, err := json.Marshal(value)
	if err != nil {
		metrics.CacheErrors.WithLabelValues("encode").Inc()
		c.log.Warn().Err(err).Str("key", key).Msg("cache value not encodable")
		return false
	}
	if err := c.backend.Set(ctx, key, data, ttl); err != nil {
		c.fail("set", err)
		return false
	}
	metrics.CacheSets.Inc()
	return true
}

// Delete 删除单个 key，key 存在并被删除时返回 true。
func (c *Cache) Delete(ctx context.Context, key string) bool {
	if !c.Enabled() {
		return false
	}
	n, err := c.backend.Delete(ctx, key)
	if err != nil {
		c.fail("delete", err)
		return false
	}
	return n > 0
}

// DeleteByPrefix 删除所有以 prefix 开头的 key，返回删除数量。
// 使用游标分页扫描，不会一次性加载整个 key 空间。
func (c *Cache) DeleteByPrefix(ctx context.Context, prefix string) int {
	if !c.Enabled() {
		return 0
	}
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := c.backend.Scan(ctx, cursor, prefix, ScanCount)
		if err != nil {
			c.fail("scan", err)
			break
		}
		if len(keys) > 0 {
			n, err := c.backend.Delete(ctx, keys...)
			if err != nil {
				c.fail("delete", err)
				break
			}
			total += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	metrics.CacheInvalidatedKeys.Add(float64(total))
	return int(total)
}

// Clear 清空后端。
func (c *Cache) Clear(ctx context.Context) bool {
	if !c.Enabled() {
		return false
	}
	if err := c.backend.Flush(ctx); err != nil {
		c.fail("flush", err)
		return false
	}
	return true
}

func (c *Cache) fail(op string, err error) {
	metrics.CacheErrors.WithLabelValues(op).Inc()
	c.disable(op, err)
}

// disable 永久关闭缓存，只记录一次日志。
func (c *Cache) disable(op string, err error) {
	c.enabled.Store(false)
	c.disabled.Do(func() {
		metrics.CacheEnabled.Set(0)
		name := "<nil>"
		if c.backend != nil {
			name = c.backend.Name()
		}
		c.log.Warn().Err(err).Str("backend", name).Str("op", op).
			Msg("cache backend unavailable, caching disabled")
	})
}

// keyEscaper 转义 key 段中的分隔符，避免 "u1" 的前缀匹配到 "u1:vip"。
var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Key 构造推荐缓存 key：recommendations:{user}:{version}:{category}:{context}。
// 空的版本/上下文记为 default，空的类目记为 all。各段中的 ':' 被转义。
func Key(userID, version, category, scene string) string {
	if version == "" {
		version = "default"
	}
	if category == "" {
		category = "all"
	}
	if scene == "" {
		scene = "default"
	}
	return fmt.Sprintf("recommendations:%s:%s:%s:%s",
		keyEscaper.Replace(userID), keyEscaper.Replace(version),
		keyEscaper.Replace(category), keyEscaper.Replace(scene))
}

// UserPrefix 返回某用户所有缓存 key 的公共前缀。
func UserPrefix(userID string) string {
	return "recommendations:" + keyEscaper.Replace(userID) + ":"
}
