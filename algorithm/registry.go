package algorithm

import (
	"fmt"
	"sort"
	"sync"
)

// Registry 按版本号索引算法实例。在进程启动时显式构建，不使用包级全局注册。
type Registry struct {
	mu   sync.RWMutex
	algs map[string]Algorithm
}

// NewRegistry 创建注册表并注册给定算法。
func NewRegistry(algs ...Algorithm) (*Registry, error) {
	r := &Registry{algs: make(map[string]Algorithm, len(algs))}
	for _, a := range algs {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register 注册算法，版本号重复时返回错误。
func (r *Registry) Register(alg Algorithm) error {
	if alg == nil || alg.Version() == "" {
		return fmt.Errorf("algorithm: register requires a versioned algorithm")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.algs[alg.Version()]; ok {
		return fmt.Errorf("algorithm: version %q already registered", alg.Version())
	}
	r.algs[alg.Version()] = alg
	return nil
}

// Get 按版本号查找算法。
func (r *Registry) Get(version string) (Algorithm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.algs[version]
	return a, ok
}

// Versions 返回已注册版本（排序）。
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.algs))
	for v := range r.algs {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Options 是内置算法的构造参数。
type Options struct {
	SimilarityCacheSize int
	HybridWeights       [2]float64
	Lookup              ProductLookup
}

// NewStandardRegistry 注册全部内置变体：v1、content-v1、v2-beta。
// 混合打分复用同一份协同过滤与内容打分实例，共享相似度缓存与类别先验。
func NewStandardRegistry(opts Options) *Registry {
	cf := NewCollaborative(opts.SimilarityCacheSize)
	content := NewContent(opts.Lookup)
	hybrid := NewHybrid(cf, content, HybridOptions{Weights: opts.HybridWeights})
	r, _ := NewRegistry(cf, content, hybrid)
	return r
}
