package chi

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain/citation"
	answeruc "github.com/kailas-cloud/ragdex/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	usageuc "github.com/kailas-cloud/ragdex/internal/usecase/usage"
)

// --- Mocks ---

type mockIngester struct {
	ingestFn func(ctx context.Context, req ingestuc.Request) (ingestuc.Result, error)
	calls    int
}

func (m *mockIngester) Ingest(ctx context.Context, req ingestuc.Request) (ingestuc.Result, error) {
	m.calls++
	if m.ingestFn != nil {
		return m.ingestFn(ctx, req)
	}
	return ingestuc.Result{Source: req.Source}, nil
}

type mockAnswerer struct {
	answerFn func(ctx context.Context, query string) (answeruc.Response, error)
	calls    int
}

func (m *mockAnswerer) Answer(ctx context.Context, query string) (answeruc.Response, error) {
	m.calls++
	if m.answerFn != nil {
		return m.answerFn(ctx, query)
	}
	return answeruc.Response{
		Answer:   "stub answer [1]",
		Contexts: []answeruc.Context{},
		Sources:  []citation.Source{},
	}, nil
}

type mockUsageReporter struct {
	reportFn func(ctx context.Context, period usageuc.Period) usageuc.Report
}

func (m *mockUsageReporter) GetReport(ctx context.Context, period usageuc.Period) usageuc.Report {
	if m.reportFn != nil {
		return m.reportFn(ctx, period)
	}
	return usageuc.Report{Period: period}
}

type mockHealthChecker struct {
	checkFn func(ctx context.Context) healthuc.Report
}

func (m *mockHealthChecker) Check(ctx context.Context) healthuc.Report {
	if m.checkFn != nil {
		return m.checkFn(ctx)
	}
	return healthuc.Report{
		Status: healthuc.Healthy,
		Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
	}
}

type testMocks struct {
	ingest *mockIngester
	answer *mockAnswerer
	usage  *mockUsageReporter
	health *mockHealthChecker
}

func newTestServer() (*Server, *testMocks) {
	m := &testMocks{
		ingest: &mockIngester{},
		answer: &mockAnswerer{},
		usage:  &mockUsageReporter{},
		health: &mockHealthChecker{},
	}
	s := NewServer(m.ingest, m.answer, m.usage, m.health, zap.NewNop())
	return s, m
}
