// Package recommend 是推荐编排层：缓存、用户/商品数据、打分算法与业务规则的组合，
// 以及反馈写入与批量任务表。
package recommend

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rushteam/recserve/algorithm"
	"github.com/rushteam/recserve/cache"
	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/filter"
	"github.com/rushteam/recserve/metrics"
	"github.com/rushteam/recserve/pipeline"
	"github.com/rushteam/recserve/rerank"
)

// UserSource 是编排层依赖的用户数据接口，provider.UserProvider 实现了它。
type UserSource interface {
	Get(ctx context.Context, userID string) *core.UserProfile
	History(ctx context.Context, userID string, limit int) []core.Interaction
	RecordInteraction(ctx context.Context, in core.Interaction) error
}

// Catalog 是编排层依赖的商品目录接口，provider.ProductProvider 实现了它。
type Catalog interface {
	Get(ctx context.Context, productID string) *core.Product
	Candidates(ctx context.Context, category string, limit int) []*core.Product
	IsAvailable(ctx context.Context, productID string) bool
}

// Publisher 发布反馈事件，尽力而为。
type Publisher interface {
	Publish(ctx context.Context, in core.Interaction) error
}

// Dispatcher 接收新建的批量任务，由批处理 worker 实现。
type Dispatcher interface {
	Dispatch(jobID string)
}

// Options 是 Service 的参数，零值字段使用默认值。
type Options struct {
	DefaultLimit   int
	MaxLimit       int
	HistoryLimit   int
	CandidateLimit int
	CacheTTL       time.Duration

	// DefaultVersion 是请求未指定版本时使用的算法版本
	DefaultVersion    string
	AvailableVersions []string

	RealtimeUpdates bool
	SingleFlight    bool
	// ScoreTimeout 单次打分超时，0 表示不限制
	ScoreTimeout time.Duration

	PremiumBoost float64
	// ExcludeExpr 是可选的 CEL 排除表达式，为 true 的条目被过滤
	ExcludeExpr string

	MaxJobs   int
	Publisher Publisher
	Logger    zerolog.Logger
}

func (o *Options) defaults() {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = 10
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = 100
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 100
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = 1000
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = time.Hour
	}
	if o.DefaultVersion == "" {
		o.DefaultVersion = "v1"
	}
	if len(o.AvailableVersions) == 0 {
		o.AvailableVersions = []string{o.DefaultVersion}
	}
	if o.PremiumBoost <= 0 {
		o.PremiumBoost = rerank.DefaultPremiumBoost
	}
}

// Request 是一次推荐请求。
type Request struct {
	UserID           string
	Limit            int
	AlgorithmVersion string
	Category         string
	// Context 是场景标签，如 homepage / cart
	Context string
}

// Service 是推荐编排服务，可安全并发使用。
type Service struct {
	users      UserSource
	catalog    Catalog
	cache      *cache.Cache
	algs       *algorithm.Registry
	rules      *pipeline.Pipeline
	jobs       *JobTable
	dispatcher Dispatcher
	sf         singleflight.Group
	opts       Options
	log        zerolog.Logger
	now        func() time.Time
}

// NewService 组装编排服务。c 为 nil 时缓存关闭；默认版本必须在 AvailableVersions 中且已注册。
func NewService(users UserSource, catalog Catalog, c *cache.Cache, algs *algorithm.Registry, opts Options) (*Service, error) {
	opts.defaults()
	if users == nil || catalog == nil || algs == nil {
		return nil, errors.New("recommend: users, catalog and algorithms are required")
	}
	if !slices.Contains(opts.AvailableVersions, opts.DefaultVersion) {
		return nil, core.InvalidInput(core.ModuleService, "default version %q not in available versions %v", opts.DefaultVersion, opts.AvailableVersions)
	}
	if _, ok := algs.Get(opts.DefaultVersion); !ok {
		return nil, core.InvalidInput(core.ModuleService, "default version %q not registered", opts.DefaultVersion)
	}
	if c == nil {
		c = cache.New(context.Background(), nil, cache.Options{Logger: opts.Logger})
	}

	filters := []filter.Filter{filter.NewAvailabilityFilter(catalog)}
	exclude, err := filter.CompileExprFilter(opts.ExcludeExpr, catalog)
	if err != nil {
		return nil, core.InvalidInput(core.ModuleService, "rules.exclude_expr: %v", err)
	}
	if exclude != nil {
		filters = append(filters, exclude)
	}

	return &Service{
		users:   users,
		catalog: catalog,
		cache:   c,
		algs:    algs,
		rules: pipeline.New(
			&filter.FilterNode{Filters: filters, Logger: opts.Logger},
			rerank.NewTierBoost(opts.PremiumBoost),
			&rerank.SortNode{},
		),
		jobs: NewJobTable(opts.MaxJobs),
		opts: opts,
		log:  opts.Logger,
		now:  time.Now,
	}, nil
}

// SetDispatcher 注册批量任务分发器。必须在处理请求前调用。
func (s *Service) SetDispatcher(d Dispatcher) { s.dispatcher = d }

// Jobs 返回任务表的修改接口，交给批处理 worker。
func (s *Service) Jobs() Jobs { return s.jobs }

// CurrentAlgorithmVersion 返回默认算法版本。
func (s *Service) CurrentAlgorithmVersion() string { return s.opts.DefaultVersion }

// DefaultLimit 返回默认返回条数。
func (s *Service) DefaultLimit() int { return s.opts.DefaultLimit }

// GetRecommendations 返回按分数降序的推荐列表，长度不超过 req.Limit。
//
// 缓存命中时直接截断返回；未命中时打分、应用业务规则并写入完整列表。
func (s *Service) GetRecommendations(ctx context.Context, req Request) ([]*core.Item, error) {
	if req.UserID == "" {
		return nil, core.InvalidInput(core.ModuleService, "user_id is required")
	}
	if req.Limit <= 0 || req.Limit > s.opts.MaxLimit {
		return nil, core.InvalidInput(core.ModuleService, "limit must be in [1, %d], got %d", s.opts.MaxLimit, req.Limit)
	}
	alg, err := s.algorithm(req.AlgorithmVersion)
	if err != nil {
		return nil, err
	}

	start := s.now()
	version := alg.Version()
	key := cache.Key(req.UserID, req.AlgorithmVersion, req.Category, req.Context)
	topN := &rerank.TopNNode{N: req.Limit}

	var cached []*core.Item
	if s.cache.Get(ctx, key, &cached) {
		metrics.RecordRecommendation(version, "hit", s.now().Sub(start))
		s.log.Debug().Str("user_id", req.UserID).Str("key", key).Msg("recommendation cache hit")
		return topN.Process(ctx, nil, cached)
	}

	var items []*core.Item
	if s.opts.SingleFlight {
		// 共享计算不继承任何一个调用方的取消，每个调用方只等待自己的 ctx
		ch := s.sf.DoChan(key, func() (any, error) {
			return s.compute(context.WithoutCancel(ctx), req, alg, key)
		})
		select {
		case <-ctx.Done():
			metrics.RecordRecommendation(version, "error", s.now().Sub(start))
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				metrics.RecordRecommendation(version, "error", s.now().Sub(start))
				return nil, res.Err
			}
			items = res.Val.([]*core.Item)
			if res.Shared {
				items = cloneItems(items)
			}
		}
	} else {
		items, err = s.compute(ctx, req, alg, key)
		if err != nil {
			metrics.RecordRecommendation(version, "error", s.now().Sub(start))
			return nil, err
		}
	}

	metrics.RecordRecommendation(version, "computed", s.now().Sub(start))
	return topN.Process(ctx, nil, items)
}

// algorithm 解析请求版本，空串使用默认版本。
func (s *Service) algorithm(version string) (algorithm.Algorithm, error) {
	if version == "" {
		version = s.opts.DefaultVersion
	}
	if !slices.Contains(s.opts.AvailableVersions, version) {
		return nil, core.InvalidInput(core.ModuleService, "unknown algorithm version %q", version)
	}
	alg, ok := s.algs.Get(version)
	if !ok {
		return nil, core.InvalidInput(core.ModuleService, "algorithm version %q not registered", version)
	}
	return alg, nil
}

// compute 执行一次完整的打分与业务规则，并把完整结果写入缓存。
func (s *Service) compute(ctx context.Context, req Request, alg algorithm.Algorithm, key string) ([]*core.Item, error) {
	profile := s.users.Get(ctx, req.UserID)
	if profile == nil {
		s.log.Warn().Str("user_id", req.UserID).Msg("user profile not found, using empty profile")
		profile = core.EmptyProfile(req.UserID)
	}
	history := s.users.History(ctx, req.UserID, s.opts.HistoryLimit)
	candidates := s.catalog.Candidates(ctx, req.Category, s.opts.CandidateLimit)

	rctx := &core.RecommendContext{
		UserID:           req.UserID,
		Scene:            req.Context,
		Category:         req.Category,
		AlgorithmVersion: alg.Version(),
		User:             profile,
		History:          history,
	}

	sctx := ctx
	if s.opts.ScoreTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, s.opts.ScoreTimeout)
		defer cancel()
	}
	items, err := alg.Score(sctx, rctx, candidates)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Error().Err(err).Str("user_id", req.UserID).Str("algorithm_version", alg.Version()).Msg("scoring failed")
		return nil, core.WrapDomainError(core.ModuleService, core.ErrorCodeInternalError, "scoring failed", err)
	}

	items, err = s.rules.Run(ctx, rctx, items)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.WrapDomainError(core.ModuleService, core.ErrorCodeInternalError, "business rules failed", err)
	}
	if items == nil {
		items = []*core.Item{}
	}

	metrics.RecommendationsGenerated.WithLabelValues(alg.Version()).Add(float64(len(items)))
	s.cache.Set(ctx, key, items, s.opts.CacheTTL)
	s.log.Debug().
		Str("user_id", req.UserID).
		Str("algorithm_version", alg.Version()).
		Int("candidates", len(candidates)).
		Int("items", len(items)).
		Msg("recommendations computed")
	return items, nil
}

// RecordFeedback 记录一次用户反馈，清除该用户的全部缓存，并按配置触发增量更新与事件发布。
// 写入失败时返回错误；增量更新与事件发布的失败只记录日志。
func (s *Service) RecordFeedback(ctx context.Context, userID, productID string, kind core.InteractionKind) error {
	if userID == "" || productID == "" {
		return core.InvalidInput(core.ModuleService, "user_id and product_id are required")
	}
	if !kind.Valid() {
		return core.InvalidInput(core.ModuleService, "unknown interaction type %q", kind)
	}

	in := core.Interaction{
		UserID:    userID,
		ProductID: productID,
		Kind:      kind,
		Timestamp: s.now().UTC(),
	}
	if err := s.users.RecordInteraction(ctx, in); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("record interaction")
		if core.IsDomainError(err) {
			return err
		}
		return core.Unavailable(core.ModuleService, "record interaction failed", err)
	}
	metrics.FeedbackRecorded.WithLabelValues(string(kind)).Inc()

	n := s.cache.DeleteByPrefix(ctx, cache.UserPrefix(userID))
	s.log.Debug().Str("user_id", userID).Int("keys", n).Msg("user cache invalidated")

	if s.opts.RealtimeUpdates {
		alg, _ := s.algs.Get(s.opts.DefaultVersion)
		if err := algorithm.UpdateIncremental(ctx, alg, in); err != nil {
			if core.IsNotSupported(err) {
				s.log.Warn().Str("algorithm_version", alg.Version()).Msg("incremental update not supported")
			} else {
				s.log.Error().Err(err).Str("algorithm_version", alg.Version()).Msg("incremental update failed")
			}
		}
	}

	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.Publish(ctx, in); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("publish feedback event")
		}
	}
	return nil
}

// TriggerBatchJob 新建 queued 任务并返回其 ID。任务本身由分发器异步执行。
func (s *Service) TriggerBatchJob(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if _, err := s.jobs.Create(id); err != nil {
		return "", err
	}
	s.log.Info().Str("job_id", id).Msg("batch job queued")
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(id)
	}
	return id, nil
}

// GetBatchJobStatus 返回任务快照，不存在时返回 NOT_FOUND。
func (s *Service) GetBatchJobStatus(jobID string) (core.BatchJob, error) {
	return s.jobs.Get(jobID)
}

// Refresh 清除用户缓存并以默认参数重新生成推荐。
func (s *Service) Refresh(ctx context.Context, userID string) error {
	if userID == "" {
		return core.InvalidInput(core.ModuleService, "user_id is required")
	}
	s.cache.DeleteByPrefix(ctx, cache.UserPrefix(userID))
	_, err := s.GetRecommendations(ctx, Request{UserID: userID, Limit: s.opts.DefaultLimit})
	return err
}

func cloneItems(items []*core.Item) []*core.Item {
	out := make([]*core.Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
