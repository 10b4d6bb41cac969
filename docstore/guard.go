package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/metrics"
)

// GuardOptions 是 Guard 的参数。
type GuardOptions struct {
	// OpTimeout 单次调用超时，<= 0 表示不额外限制
	OpTimeout time.Duration
	// BreakerFailures 连续失败多少次后熔断，0 表示 5
	BreakerFailures uint32
	// BreakerTimeout 熔断后多久进入半开，0 表示 30s
	BreakerTimeout time.Duration
	Logger         zerolog.Logger
}

// Guard 为任意 DocumentStore 加上单次调用超时与熔断。
//
// 熔断打开期间所有调用立即返回 UNAVAILABLE，不再访问后端；
// INVALID_INPUT 类错误（如唯一键冲突）不计为后端故障。
type Guard struct {
	inner   core.DocumentStore
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[any]
	log     zerolog.Logger
}

func NewGuard(inner core.DocumentStore, opts GuardOptions) *Guard {
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	g := &Guard{inner: inner, timeout: opts.OpTimeout, log: opts.Logger}

	name := inner.Name()
	metrics.DocStoreBreakerState.WithLabelValues(name).Set(0)
	g.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || core.IsInvalidInput(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn().Str("backend", name).Str("from", from.String()).Str("to", to.String()).
				Msg("docstore circuit breaker state changed")
			metrics.DocStoreBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return g
}

// State 返回熔断器当前状态。
func (g *Guard) State() gobreaker.State { return g.cb.State() }

func (g *Guard) Name() string { return g.inner.Name() }

func (g *Guard) Ping(ctx context.Context) error {
	_, err := g.do(ctx, "ping", func(ctx context.Context) (any, error) {
		return nil, g.inner.Ping(ctx)
	})
	return err
}

func (g *Guard) FindOne(ctx context.Context, collection string, filter core.Filter) (core.Document, error) {
	v, err := g.do(ctx, "find_one", func(ctx context.Context) (any, error) {
		return g.inner.FindOne(ctx, collection, filter)
	})
	doc, _ := v.(core.Document)
	return doc, err
}

func (g *Guard) FindMany(ctx context.Context, collection string, filter core.Filter, opts core.FindOptions) ([]core.Document, error) {
	v, err := g.do(ctx, "find", func(ctx context.Context) (any, error) {
		return g.inner.FindMany(ctx, collection, filter, opts)
	})
	docs, _ := v.([]core.Document)
	return docs, err
}

func (g *Guard) InsertOne(ctx context.Context, collection string, doc core.Document) (string, error) {
	v, err := g.do(ctx, "insert", func(ctx context.Context) (any, error) {
		return g.inner.InsertOne(ctx, collection, doc)
	})
	id, _ := v.(string)
	return id, err
}

func (g *Guard) InsertMany(ctx context.Context, collection string, docs []core.Document) (int, error) {
	v, err := g.do(ctx, "insert_many", func(ctx context.Context) (any, error) {
		return g.inner.InsertMany(ctx, collection, docs)
	})
	n, _ := v.(int)
	return n, err
}

func (g *Guard) UpdateOne(ctx context.Context, collection string, filter core.Filter, update core.Document, upsert bool) (bool, error) {
	v, err := g.do(ctx, "update", func(ctx context.Context) (any, error) {
		return g.inner.UpdateOne(ctx, collection, filter, update, upsert)
	})
	ok, _ := v.(bool)
	return ok, err
}

func (g *Guard) DeleteOne(ctx context.Context, collection string, filter core.Filter) (bool, error) {
	v, err := g.do(ctx, "delete", func(ctx context.Context) (any, error) {
		return g.inner.DeleteOne(ctx, collection, filter)
	})
	ok, _ := v.(bool)
	return ok, err
}

func (g *Guard) CreateIndex(ctx context.Context, collection string, index core.IndexSpec) (string, error) {
	v, err := g.do(ctx, "create_index", func(ctx context.Context) (any, error) {
		return g.inner.CreateIndex(ctx, collection, index)
	})
	name, _ := v.(string)
	return name, err
}

// Close 不经过熔断器。
func (g *Guard) Close(ctx context.Context) error {
	return g.inner.Close(ctx)
}

func (g *Guard) do(ctx context.Context, op string, fn func(context.Context) (any, error)) (any, error) {
	start := time.Now()
	v, err := g.cb.Execute(func() (any, error) {
		cctx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		v, err := fn(cctx)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			err = core.Unavailable(core.ModuleDocStore, "docstore: "+op+" timed out", err)
		}
		return v, err
	})
	metrics.RecordDocStoreOp(g.inner.Name(), op, time.Since(start), err)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, core.Unavailable(core.ModuleDocStore, "docstore: circuit open", err)
	}
	return v, err
}

var _ core.DocumentStore = (*Guard)(nil)
