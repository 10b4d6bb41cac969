package algorithm

import (
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// SimilarityCache 缓存商品对的相似度。key 为无序对，容量满时整体清空。
type SimilarityCache struct {
	mu      sync.RWMutex
	maxSize int
	m       map[[2]string]float64
}

// NewSimilarityCache 创建缓存，maxSize <= 0 时使用 100000。
func NewSimilarityCache(maxSize int) *SimilarityCache {
	if maxSize <= 0 {
		maxSize = 100000
	}
	return &SimilarityCache{maxSize: maxSize, m: make(map[[2]string]float64)}
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Similarity 返回 a、b 的相似度，范围 [0, 1]，与参数顺序无关。
func (c *SimilarityCache) Similarity(a, b string) float64 {
	key := pairKey(a, b)

	c.mu.RLock()
	s, ok := c.m[key]
	c.mu.RUnlock()
	if ok {
		return s
	}

	s = pseudoSimilarity(key[0], key[1])

	c.mu.Lock()
	if len(c.m) >= c.maxSize {
		clear(c.m)
	}
	c.m[key] = s
	c.mu.Unlock()
	return s
}

// Len 返回缓存条目数。
func (c *SimilarityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// pseudoSimilarity 是确定性的伪相似度：sin(h(a)·h(b) mod 1000)·0.5 + 0.5。
func pseudoSimilarity(a, b string) float64 {
	x := (xxhash.Sum64String(a) * xxhash.Sum64String(b)) % 1000
	return math.Sin(float64(x))*0.5 + 0.5
}

// pseudoPopularity 用 ID 哈希模拟热度，范围 [0, 1000)。
func pseudoPopularity(id string) uint64 {
	return xxhash.Sum64String(id) % 1000
}
