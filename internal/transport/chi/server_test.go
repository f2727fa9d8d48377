package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/citation"
	answeruc "github.com/kailas-cloud/ragdex/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	usageuc "github.com/kailas-cloud/ragdex/internal/usecase/usage"
)

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	s.Router(nil).ServeHTTP(rr, req)
	return rr
}

func TestIngestDocument(t *testing.T) {
	s, m := newTestServer()
	m.ingest.ingestFn = func(ctx context.Context, req ingestuc.Request) (ingestuc.Result, error) {
		if req.Source != "guide.md" || req.Title != "Guide" {
			t.Errorf("unexpected request: %+v", req)
		}
		if usage := domain.UsageFromContext(ctx); usage != nil {
			usage.AddTokens(42)
		}
		return ingestuc.Result{Source: req.Source, Chunks: 3, Tokens: 42}, nil
	}

	rr := doRequest(s, "POST", "/api/v1/documents",
		`{"source":"guide.md","title":"Guide","text":"some document text"}`)

	if rr.Code != http.StatusCreated {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if got := rr.Header().Get("X-Embedding-Tokens"); got != "42" {
		t.Errorf("X-Embedding-Tokens: got %q, want %q", got, "42")
	}

	var resp ingestResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Source != "guide.md" || resp.Chunks != 3 || resp.Tokens != 42 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestIngestDocument_EmptyText_200(t *testing.T) {
	s, m := newTestServer()
	m.ingest.ingestFn = func(_ context.Context, req ingestuc.Request) (ingestuc.Result, error) {
		return ingestuc.Result{Source: req.Source}, nil
	}

	rr := doRequest(s, "POST", "/api/v1/documents", `{"source":"empty.md","text":"   "}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}

	var resp ingestResponse
	_ = json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Chunks != 0 {
		t.Errorf("expected 0 chunks, got %d", resp.Chunks)
	}
}

func TestIngestDocument_MissingSource_400(t *testing.T) {
	s, m := newTestServer()

	rr := doRequest(s, "POST", "/api/v1/documents", `{"text":"some text"}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if m.ingest.calls != 0 {
		t.Errorf("service must not be called, got %d calls", m.ingest.calls)
	}
}

func TestIngestDocument_InvalidJSON_400(t *testing.T) {
	s, _ := newTestServer()

	rr := doRequest(s, "POST", "/api/v1/documents", `{not json`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCreateAnswer(t *testing.T) {
	s, m := newTestServer()
	m.answer.answerFn = func(ctx context.Context, query string) (answeruc.Response, error) {
		if query != "how do goroutines work?" {
			t.Errorf("unexpected query: %q", query)
		}
		if usage := domain.UsageFromContext(ctx); usage != nil {
			usage.AddTokens(7)
		}
		return answeruc.Response{
			Answer: "They are lightweight threads [1].",
			Contexts: []answeruc.Context{
				{Text: "goroutines are lightweight", Source: "go.md", Position: 0, Relevance: 0.9, CiteNum: 1},
			},
			Sources: []citation.Source{
				{N: 1, Source: "go.md", Snippet: "goroutines are lightweight"},
			},
		}, nil
	}

	rr := doRequest(s, "POST", "/api/v1/answers", `{"question":"how do goroutines work?"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if got := rr.Header().Get("X-Embedding-Tokens"); got != "7" {
		t.Errorf("X-Embedding-Tokens: got %q, want %q", got, "7")
	}

	var resp answeruc.Response
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "They are lightweight threads [1]." {
		t.Errorf("unexpected answer: %q", resp.Answer)
	}
	if len(resp.Contexts) != 1 || resp.Contexts[0].CiteNum != 1 {
		t.Errorf("unexpected contexts: %+v", resp.Contexts)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].N != 1 {
		t.Errorf("unexpected sources: %+v", resp.Sources)
	}
}

func TestCreateAnswer_EmptyQuestion_400(t *testing.T) {
	s, m := newTestServer()

	rr := doRequest(s, "POST", "/api/v1/answers", `{"question":"  "}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if m.answer.calls != 0 {
		t.Errorf("service must not be called, got %d calls", m.answer.calls)
	}
}

func TestDomainErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"quota exceeded", domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, codeEmbeddingQuota},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited},
		{"embedding provider", domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderError},
		{"rerank provider", domain.ErrRerankProviderError, http.StatusBadGateway, codeRerankProviderError},
		{"llm provider", domain.ErrLLMProviderError, http.StatusBadGateway, codeLLMProviderError},
		{"dim mismatch", domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch},
		{"unknown", fmt.Errorf("redis exploded"), http.StatusInternalServerError, codeInternalError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, m := newTestServer()
			m.answer.answerFn = func(context.Context, string) (answeruc.Response, error) {
				return answeruc.Response{}, fmt.Errorf("pipeline: %w", tc.err)
			}

			rr := doRequest(s, "POST", "/api/v1/answers", `{"question":"q"}`)

			if rr.Code != tc.wantStatus {
				t.Fatalf("got %d, want %d", rr.Code, tc.wantStatus)
			}

			var errResp errorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != tc.wantCode {
				t.Errorf("error code: got %s, want %s", errResp.Code, tc.wantCode)
			}
			if tc.wantCode == codeInternalError && errResp.Message != "internal error" {
				t.Errorf("internal errors must not leak details, got %q", errResp.Message)
			}
		})
	}
}

func TestGetUsage(t *testing.T) {
	s, m := newTestServer()
	m.usage.reportFn = func(_ context.Context, period usageuc.Period) usageuc.Report {
		if period != usageuc.PeriodDay {
			t.Errorf("expected day period, got %q", period)
		}
		return usageuc.Report{
			Period:          usageuc.PeriodDay,
			TokensLimit:     10000,
			TokensUsed:      3000,
			TokensRemaining: 7000,
		}
	}

	rr := doRequest(s, "GET", "/api/v1/usage?period=day", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}

	var resp usageuc.Report
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TokensRemaining != 7000 {
		t.Errorf("unexpected report: %+v", resp)
	}
}

func TestGetUsage_DefaultPeriodMonth(t *testing.T) {
	s, m := newTestServer()
	var gotPeriod usageuc.Period
	m.usage.reportFn = func(_ context.Context, period usageuc.Period) usageuc.Report {
		gotPeriod = period
		return usageuc.Report{Period: period}
	}

	rr := doRequest(s, "GET", "/api/v1/usage", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}
	if gotPeriod != usageuc.PeriodMonth {
		t.Errorf("expected month period by default, got %q", gotPeriod)
	}
}

func TestHealthCheck_OK(t *testing.T) {
	s, _ := newTestServer()

	rr := doRequest(s, "GET", "/health", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Checks["database"] != "ok" {
		t.Errorf("unexpected health response: %+v", resp)
	}
}

func TestHealthCheck_Degraded_503(t *testing.T) {
	s, m := newTestServer()
	m.health.checkFn = func(context.Context) healthuc.Report {
		return healthuc.Report{
			Status: healthuc.Degraded,
			Checks: map[string]healthuc.CheckResult{
				"database":  healthuc.CheckOK,
				"embedding": healthuc.CheckError,
			},
		}
	}

	rr := doRequest(s, "GET", "/health", "")

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer()

	// A prior request so the middleware has recorded at least one sample.
	doRequest(s, "GET", "/health", "")

	rr := doRequest(s, "GET", "/metrics", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "ragdex_http_requests_total") {
		t.Error("expected prometheus exposition to include ragdex_http_requests_total")
	}
}

func TestRouterAuth(t *testing.T) {
	s, _ := newTestServer()
	router := s.Router([]string{"secret"})

	req := httptest.NewRequest("POST", "/api/v1/answers", strings.NewReader(`{"question":"q"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("without token: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest("GET", "/health", http.NoBody)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("health exempt: got %d, want %d", rr.Code, http.StatusOK)
	}
}
