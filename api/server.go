// Package api 把推荐服务暴露为 HTTP/JSON 接口。
//
// 路由：
//
//	GET  /api/v1/recommendations/{userID}
//	POST /api/v1/recommendations/{userID}/feedback
//	POST /api/v1/recommendations/batch
//	GET  /api/v1/recommendations/batch/{jobID}/status
//	GET  /healthz
//	GET  /metrics
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/metrics"
	"github.com/rushteam/recserve/recommend"
)

// Recommender 是 HTTP 层依赖的推荐服务接口，recommend.Service 实现了它。
type Recommender interface {
	GetRecommendations(ctx context.Context, req recommend.Request) ([]*core.Item, error)
	RecordFeedback(ctx context.Context, userID, productID string, kind core.InteractionKind) error
	TriggerBatchJob(ctx context.Context) (string, error)
	GetBatchJobStatus(jobID string) (core.BatchJob, error)
	CurrentAlgorithmVersion() string
	DefaultLimit() int
}

// RecommendationEntry 是响应中的单条推荐，Rank 从 1 开始。
type RecommendationEntry struct {
	ProductID string   `json:"product_id"`
	Score     float64  `json:"score"`
	Rank      int      `json:"rank"`
	Features  []string `json:"features"`
}

// RecommendationResponse 是推荐接口的响应。
type RecommendationResponse struct {
	UserID           string                `json:"user_id"`
	Recommendations  []RecommendationEntry `json:"recommendations"`
	AlgorithmVersion string                `json:"algorithm_version"`
	Context          string                `json:"context,omitempty"`
}

// BatchStatusResponse 是批量任务状态接口的响应。
type BatchStatusResponse struct {
	JobID  string        `json:"job_id"`
	Status core.BatchJob `json:"status"`
}

type handler struct {
	svc Recommender
	log zerolog.Logger
}

// NewRouter 构造完整的路由。
func NewRouter(svc Recommender, logger zerolog.Logger) http.Handler {
	h := &handler{svc: svc, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.recoverer)
	r.Use(h.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/recommendations", func(r chi.Router) {
		r.Post("/batch", h.triggerBatch)
		r.Get("/batch/{jobID}/status", h.batchStatus)
		r.Get("/{userID}", h.recommend)
		r.Post("/{userID}/feedback", h.feedback)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: "not_found", Message: "resource not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorBody{Error: "method_not_allowed", Message: "method not allowed"})
	})
	return r
}

func (h *handler) recommend(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	q, err := parseRecommendQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit := q.Limit
	if limit == 0 {
		limit = h.svc.DefaultLimit()
	}

	items, err := h.svc.GetRecommendations(r.Context(), recommend.Request{
		UserID:           userID,
		Limit:            limit,
		AlgorithmVersion: q.AlgorithmVersion,
		Category:         q.Category,
		Context:          q.Context,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := RecommendationResponse{
		UserID:           userID,
		Recommendations:  make([]RecommendationEntry, 0, len(items)),
		AlgorithmVersion: q.AlgorithmVersion,
		Context:          q.Context,
	}
	if resp.AlgorithmVersion == "" {
		resp.AlgorithmVersion = h.svc.CurrentAlgorithmVersion()
	}
	for i, it := range items {
		features := it.Features
		if features == nil {
			features = []string{}
		}
		resp.Recommendations = append(resp.Recommendations, RecommendationEntry{
			ProductID: it.ProductID,
			Score:     it.Score,
			Rank:      i + 1,
			Features:  features,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) feedback(w http.ResponseWriter, r *http.Request) {
	req, err := parseFeedback(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	userID := chi.URLParam(r, "userID")
	if err := h.svc.RecordFeedback(r.Context(), userID, req.ProductID, core.InteractionKind(req.InteractionType)); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *handler) triggerBatch(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.TriggerBatchJob(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "success", "job_id": id})
}

func (h *handler) batchStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := h.svc.GetBatchJobStatus(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchStatusResponse{JobID: id, Status: job})
}

// fail 写出错误响应；5xx 记 error 日志，4xx 记 debug。
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	ev := h.log.Debug()
	if status >= http.StatusInternalServerError {
		ev = h.log.Error()
	}
	ev.Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("request failed")
	writeError(w, err)
}

// recoverer 把 panic 转成 500 并记录日志。
func (h *handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.log.Error().
					Interface("panic", rec).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("path", r.URL.Path).
					Msg("handler panic")
				writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: "internal", Message: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// observe 记录请求耗时指标与访问日志。路由标签使用 chi 的路由模式，避免 user_id 打爆基数。
func (h *handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.APIRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(elapsed.Seconds())
		h.log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Msg("http request")
	})
}
