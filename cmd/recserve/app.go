package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/recserve/algorithm"
	"github.com/rushteam/recserve/batch"
	"github.com/rushteam/recserve/cache"
	"github.com/rushteam/recserve/config"
	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/docstore"
	"github.com/rushteam/recserve/feedback"
	"github.com/rushteam/recserve/pkg/logging"
	"github.com/rushteam/recserve/provider"
	"github.com/rushteam/recserve/recommend"
	"github.com/rushteam/recserve/store"
)

// app 持有一个进程内的全部组件。
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	docs      core.DocumentStore
	kv        core.ScanStore
	users     *provider.UserProvider
	products  *provider.ProductProvider
	svc       *recommend.Service
	worker    *batch.Worker
	publisher feedback.Publisher
}

// loadConfig 加载配置并初始化全局日志。
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})
	return cfg, nil
}

// openDocStore 按配置打开文档存储，外面包一层超时与熔断。
func openDocStore(ctx context.Context, cfg *config.Config) (core.DocumentStore, error) {
	var (
		inner core.DocumentStore
		err   error
	)
	switch cfg.DocStore.Backend {
	case "badger":
		inner, err = docstore.OpenBadger(docstore.BadgerOptions{Path: cfg.DocStore.BadgerPath})
	default:
		inner, err = docstore.ConnectMongo(ctx, docstore.MongoOptions{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			MaxPoolSize:    cfg.Mongo.MaxPoolSize,
			ConnectTimeout: cfg.Mongo.ConnectTimeout,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open docstore %s: %w", cfg.DocStore.Backend, err)
	}
	return docstore.NewGuard(inner, docstore.GuardOptions{
		OpTimeout:       cfg.DocStore.OpTimeout,
		BreakerFailures: cfg.DocStore.BreakerFailures,
		BreakerTimeout:  cfg.DocStore.BreakerTimeout,
		Logger:          logging.Component("docstore"),
	}), nil
}

// newApp 按配置组装全部组件。文档存储不可达时只记录日志继续，
// 由 provider 的降级逻辑与熔断器处理后续请求。
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, log: logging.Component("recserve")}

	docs, err := openDocStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.docs = docs
	if err := docs.Ping(ctx); err != nil {
		a.log.Warn().Err(err).Str("backend", docs.Name()).Msg("docstore unreachable at startup")
	} else if err := provider.EnsureIndexes(ctx, docs); err != nil {
		a.log.Warn().Err(err).Msg("ensure indexes failed")
	}

	var synth *provider.SyntheticData
	if cfg.Fallback.Enabled {
		synth = provider.NewSyntheticData(cfg.Fallback.UserPrefix, cfg.Fallback.ProductPrefix)
	}
	a.users = provider.NewUserProvider(docs, synth, logging.Component("users"))
	a.products = provider.NewProductProvider(docs, synth, provider.ProductOptions{
		LookupCacheSize: cfg.Catalog.LookupCacheSize,
		LookupCacheTTL:  cfg.Catalog.LookupCacheTTL,
		Logger:          logging.Component("products"),
	})

	switch cfg.Cache.Backend {
	case "memory":
		a.kv = store.NewMemoryStore()
	default:
		a.kv = store.NewRedisStore(store.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	c := cache.New(ctx, a.kv, cache.Options{Logger: logging.Component("cache")})

	algs := algorithm.NewStandardRegistry(algorithm.Options{
		SimilarityCacheSize: cfg.Algorithm.SimilarityCacheSize,
		HybridWeights:       [2]float64{cfg.Algorithm.HybridWeights[0], cfg.Algorithm.HybridWeights[1]},
		Lookup:              a.products,
	})

	a.publisher = feedback.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := feedback.NewKafkaPublisher(feedback.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			Logger:  logging.Component("feedback"),
		})
		if err != nil {
			a.log.Warn().Err(err).Msg("kafka publisher unavailable, feedback events disabled")
		} else {
			a.publisher = p
		}
	}

	a.svc, err = recommend.NewService(a.users, a.products, c, algs, recommend.Options{
		DefaultLimit:      cfg.Recommend.DefaultLimit,
		MaxLimit:          cfg.Recommend.MaxLimit,
		HistoryLimit:      cfg.Recommend.HistoryLimit,
		CandidateLimit:    cfg.Recommend.CandidateLimit,
		CacheTTL:          cfg.Cache.TTL,
		DefaultVersion:    cfg.Algorithm.Version,
		AvailableVersions: cfg.Algorithm.AvailableVersions,
		RealtimeUpdates:   cfg.Recommend.RealtimeUpdates,
		SingleFlight:      cfg.Recommend.SingleFlight,
		ScoreTimeout:      cfg.Recommend.ScoreTimeout,
		PremiumBoost:      cfg.Rules.PremiumBoost,
		ExcludeExpr:       cfg.Rules.ExcludeExpr,
		MaxJobs:           cfg.Batch.MaxJobs,
		Publisher:         a.publisher,
		Logger:            logging.Component("recommend"),
	})
	if err != nil {
		a.close()
		return nil, err
	}

	a.worker = batch.NewWorker(a.svc.Jobs(), a.svc, a.users, batch.Options{
		Workers: cfg.Batch.Workers,
		Size:    cfg.Batch.Size,
		Logger:  logging.Component("batch"),
	})
	a.svc.SetDispatcher(a.worker)
	return a, nil
}

// close 释放外部连接，错误只记录日志。
func (a *app) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close feedback publisher")
		}
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close cache backend")
		}
	}
	if a.docs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.docs.Close(ctx); err != nil {
			a.log.Warn().Err(err).Msg("close docstore")
		}
	}
}
