package config

import (
	"errors"
	"fmt"
	"slices"
)

// Validate 校验配置的一致性，返回所有问题的合并错误。
func (c *Config) Validate() error {
	var errs []error

	if c.Recommend.DefaultLimit <= 0 {
		errs = append(errs, fmt.Errorf("recommend.default_limit must be positive, got %d", c.Recommend.DefaultLimit))
	}
	if c.Recommend.MaxLimit < c.Recommend.DefaultLimit {
		errs = append(errs, fmt.Errorf("recommend.max_limit (%d) must be >= default_limit (%d)", c.Recommend.MaxLimit, c.Recommend.DefaultLimit))
	}
	if c.Recommend.HistoryLimit <= 0 || c.Recommend.CandidateLimit <= 0 {
		errs = append(errs, errors.New("recommend.history_limit and recommend.candidate_limit must be positive"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL))
	}
	switch c.Cache.Backend {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be redis or memory, got %q", c.Cache.Backend))
	}
	switch c.DocStore.Backend {
	case "mongo", "badger":
	default:
		errs = append(errs, fmt.Errorf("docstore.backend must be mongo or badger, got %q", c.DocStore.Backend))
	}

	if len(c.Algorithm.AvailableVersions) == 0 {
		errs = append(errs, errors.New("algorithm.available_versions must not be empty"))
	} else if !slices.Contains(c.Algorithm.AvailableVersions, c.Algorithm.Version) {
		errs = append(errs, fmt.Errorf("algorithm.version %q is not in available_versions %v", c.Algorithm.Version, c.Algorithm.AvailableVersions))
	}
	if len(c.Algorithm.HybridWeights) != 2 {
		errs = append(errs, fmt.Errorf("algorithm.hybrid_weights needs 2 values, got %d", len(c.Algorithm.HybridWeights)))
	} else {
		var sum float64
		for _, w := range c.Algorithm.HybridWeights {
			if w < 0 {
				errs = append(errs, errors.New("algorithm.hybrid_weights must be non-negative"))
			}
			sum += w
		}
		if sum <= 0 {
			errs = append(errs, errors.New("algorithm.hybrid_weights must sum to a positive value"))
		}
	}

	if c.Rules.PremiumBoost <= 0 {
		errs = append(errs, fmt.Errorf("rules.premium_boost must be positive, got %v", c.Rules.PremiumBoost))
	}
	if c.Batch.Workers <= 0 || c.Batch.Size <= 0 || c.Batch.MaxJobs <= 0 {
		errs = append(errs, errors.New("batch.workers, batch.size and batch.max_jobs must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when kafka.brokers is set"))
	}

	return errors.Join(errs...)
}
