package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/recommend"
)

type fakeRecommender struct {
	items    []*core.Item
	err      error
	lastReq  recommend.Request
	feedback []core.Interaction
	jobs     map[string]core.BatchJob
	panicky  bool
}

func (f *fakeRecommender) GetRecommendations(_ context.Context, req recommend.Request) ([]*core.Item, error) {
	if f.panicky {
		panic("boom")
	}
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	if len(f.items) > req.Limit {
		return f.items[:req.Limit], nil
	}
	return f.items, nil
}

func (f *fakeRecommender) RecordFeedback(_ context.Context, userID, productID string, kind core.InteractionKind) error {
	if f.err != nil {
		return f.err
	}
	f.feedback = append(f.feedback, core.Interaction{UserID: userID, ProductID: productID, Kind: kind})
	return nil
}

func (f *fakeRecommender) TriggerBatchJob(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "job-1", nil
}

func (f *fakeRecommender) GetBatchJobStatus(jobID string) (core.BatchJob, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return core.BatchJob{}, core.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeRecommender) CurrentAlgorithmVersion() string { return "v1" }
func (f *fakeRecommender) DefaultLimit() int               { return 2 }

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestRecommend(t *testing.T) {
	svc := &fakeRecommender{items: []*core.Item{
		{ProductID: "p1", Score: 0.9, Features: []string{"collaborative_filtering"}},
		{ProductID: "p2", Score: 0.5},
		{ProductID: "p3", Score: 0.1},
	}}
	h := NewRouter(svc, zerolog.Nop())

	rec := do(t, h, http.MethodGet, "/api/v1/recommendations/u1?context=homepage", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode[RecommendationResponse](t, rec)
	if resp.UserID != "u1" || resp.AlgorithmVersion != "v1" || resp.Context != "homepage" {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Recommendations) != 2 {
		t.Fatalf("len = %d, want default limit 2", len(resp.Recommendations))
	}
	if resp.Recommendations[0].Rank != 1 || resp.Recommendations[1].Rank != 2 {
		t.Errorf("ranks = %d, %d", resp.Recommendations[0].Rank, resp.Recommendations[1].Rank)
	}
	if resp.Recommendations[1].Features == nil {
		t.Error("features should encode as an empty list")
	}
	if svc.lastReq.Limit != 2 || svc.lastReq.Context != "homepage" {
		t.Errorf("request = %+v", svc.lastReq)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/recommendations/u1?limit=3&algorithm_version=v2-beta&category=books", "")
	resp = decode[RecommendationResponse](t, rec)
	if resp.AlgorithmVersion != "v2-beta" || len(resp.Recommendations) != 3 {
		t.Errorf("resp = %+v", resp)
	}
	if svc.lastReq.Category != "books" {
		t.Errorf("category = %q", svc.lastReq.Category)
	}
}

func TestRecommend_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
		kind   string
	}{
		{"non-numeric limit", "/api/v1/recommendations/u1?limit=abc", nil, http.StatusBadRequest, "invalid_input"},
		{"negative limit", "/api/v1/recommendations/u1?limit=-1", nil, http.StatusBadRequest, "invalid_input"},
		{"service invalid", "/api/v1/recommendations/u1?limit=500", core.InvalidInput(core.ModuleService, "limit too large"), http.StatusBadRequest, "invalid_input"},
		{"unavailable", "/api/v1/recommendations/u1", core.Unavailable(core.ModuleProvider, "down", errors.New("dial tcp")), http.StatusServiceUnavailable, "upstream_unavailable"},
		{"internal", "/api/v1/recommendations/u1", errors.New("secret detail"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(&fakeRecommender{err: tt.err}, zerolog.Nop())
			rec := do(t, h, http.MethodGet, tt.target, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			body := decode[ErrorBody](t, rec)
			if body.Error != tt.kind {
				t.Errorf("error = %q, want %q", body.Error, tt.kind)
			}
			if strings.Contains(rec.Body.String(), "secret") || strings.Contains(rec.Body.String(), "dial tcp") {
				t.Errorf("body leaks internal detail: %s", rec.Body.String())
			}
		})
	}
}

func TestFeedback(t *testing.T) {
	svc := &fakeRecommender{}
	h := NewRouter(svc, zerolog.Nop())

	rec := do(t, h, http.MethodPost, "/api/v1/recommendations/u1/feedback", `{"product_id":"p1","interaction_type":"purchase"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := decode[map[string]string](t, rec); got["status"] != "success" {
		t.Errorf("body = %v", got)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/recommendations/u2/feedback?product_id=p2&interaction_type=view", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("query form status = %d", rec.Code)
	}
	if len(svc.feedback) != 2 || svc.feedback[1].UserID != "u2" || svc.feedback[1].Kind != core.KindView {
		t.Errorf("feedback = %+v", svc.feedback)
	}

	bad := []string{
		`{"product_id":"p1","interaction_type":"like"}`,
		`{"interaction_type":"view"}`,
		`{"product_id":"p1","interaction_type":"view","extra":1}`,
		`{not json`,
	}
	for _, body := range bad {
		rec := do(t, h, http.MethodPost, "/api/v1/recommendations/u1/feedback", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
	if len(svc.feedback) != 2 {
		t.Errorf("invalid feedback reached the service: %+v", svc.feedback)
	}
}

func TestBatch(t *testing.T) {
	svc := &fakeRecommender{jobs: map[string]core.BatchJob{
		"job-1": {ID: "job-1", Status: core.JobRunning, TotalUsers: 10, ProcessedUsers: 4, Errors: []string{}},
	}}
	h := NewRouter(svc, zerolog.Nop())

	rec := do(t, h, http.MethodPost, "/api/v1/recommendations/batch", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[map[string]string](t, rec); got["job_id"] != "job-1" || got["status"] != "success" {
		t.Errorf("body = %v", got)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/recommendations/batch/job-1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	st := decode[BatchStatusResponse](t, rec)
	if st.JobID != "job-1" || st.Status.Status != core.JobRunning || st.Status.ProcessedUsers != 4 {
		t.Errorf("status = %+v", st)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/recommendations/batch/missing/status", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", rec.Code)
	}
}

func TestHealthAndFallbacks(t *testing.T) {
	h := NewRouter(&fakeRecommender{panicky: true}, zerolog.Nop())

	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Errorf("metrics = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/v1/recommendations/u1", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method = %d", rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/api/v1/recommendations/u1", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("panic status = %d, want 500", rec.Code)
	}
}
