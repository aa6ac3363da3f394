package services

import (
	"context"
	"sync"
	"time"

	"github.com/TFMV/cypherplan/pkg/models"
)

// mockLogger implements Logger
type mockLogger struct {
	debugFunc func(msg string, keysAndValues ...interface{})
	infoFunc  func(msg string, keysAndValues ...interface{})
	warnFunc  func(msg string, keysAndValues ...interface{})
	errorFunc func(msg string, keysAndValues ...interface{})
}

func (m *mockLogger) Debug(msg string, keysAndValues ...interface{}) {
	if m.debugFunc != nil {
		m.debugFunc(msg, keysAndValues...)
	}
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	if m.infoFunc != nil {
		m.infoFunc(msg, keysAndValues...)
	}
}

func (m *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	if m.warnFunc != nil {
		m.warnFunc(msg, keysAndValues...)
	}
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	if m.errorFunc != nil {
		m.errorFunc(msg, keysAndValues...)
	}
}

// mockMetricsCollector implements MetricsCollector and counts counter increments.
type mockMetricsCollector struct {
	mu       sync.Mutex
	counters map[string]int
}

func (m *mockMetricsCollector) IncrementCounter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int)
	}
	m.counters[name]++
}

func (m *mockMetricsCollector) RecordHistogram(name string, value float64, labels ...string) {}

func (m *mockMetricsCollector) RecordGauge(name string, value float64, labels ...string) {}

func (m *mockMetricsCollector) StartTimer(name string) Timer {
	return &mockTimer{}
}

func (m *mockMetricsCollector) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// mockTimer implements Timer
type mockTimer struct{}

func (m *mockTimer) Stop() time.Duration {
	return 0
}

// countingRepo implements repositories.GraphRepository and records every call.
type countingRepo struct {
	mu         sync.Mutex
	readCalls  []string
	writeCalls []string
	respond    func(ctx context.Context, query string) (*models.ExecutionResult, error)
}

func (r *countingRepo) ExecuteRead(ctx context.Context, query string, params map[string]interface{}) (*models.ExecutionResult, error) {
	r.mu.Lock()
	r.readCalls = append(r.readCalls, query)
	r.mu.Unlock()
	return r.answer(ctx, query)
}

func (r *countingRepo) Execute(ctx context.Context, query string, params map[string]interface{}) (*models.ExecutionResult, error) {
	r.mu.Lock()
	r.writeCalls = append(r.writeCalls, query)
	r.mu.Unlock()
	return r.answer(ctx, query)
}

func (r *countingRepo) answer(ctx context.Context, query string) (*models.ExecutionResult, error) {
	if r.respond != nil {
		return r.respond(ctx, query)
	}
	return rowsResult(query, 1), nil
}

func (r *countingRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.readCalls) + len(r.writeCalls)
}

func rowsResult(query string, n int) *models.ExecutionResult {
	rows := make([]models.Row, n)
	for i := range rows {
		rows[i] = models.Row{"query": query, "n": i}
	}
	return &models.ExecutionResult{
		Query:         query,
		Records:       rows,
		Success:       true,
		ExecutionTime: time.Millisecond,
		Timestamp:     time.Now(),
	}
}

// stubExecutor implements QueryExecutor with a scripted response per query.
type stubExecutor struct {
	mu      sync.Mutex
	calls   []executorCall
	respond func(ctx context.Context, query string) *models.ExecutionResult
}

type executorCall struct {
	query         string
	maxComplexity int
	allowWrite    bool
}

func (s *stubExecutor) ExecuteSafely(ctx context.Context, query string, params map[string]interface{}, maxComplexity int, allowWrite bool) *models.ExecutionResult {
	s.mu.Lock()
	s.calls = append(s.calls, executorCall{query: query, maxComplexity: maxComplexity, allowWrite: allowWrite})
	s.mu.Unlock()
	if s.respond != nil {
		return s.respond(ctx, query)
	}
	return rowsResult(query, 1)
}

func failedResult(query, msg string) *models.ExecutionResult {
	return &models.ExecutionResult{
		Query:        query,
		Records:      []models.Row{},
		ErrorMessage: msg,
		Timestamp:    time.Now(),
	}
}

// blockUntilDone waits for ctx and reports the context error as a failed result.
func blockUntilDone(ctx context.Context, query string) *models.ExecutionResult {
	<-ctx.Done()
	return failedResult(query, ctx.Err().Error())
}

type stubSchema struct {
	summary string
	err     error
}

func (s *stubSchema) Summary(ctx context.Context) (string, error) {
	return s.summary, s.err
}

type stubPlanner struct {
	response string
	err      error
	calls    int
}

func (s *stubPlanner) Plan(ctx context.Context, question, schemaSummary string) (string, error) {
	s.calls++
	return s.response, s.err
}

type stubGenerator struct {
	query string
	err   error
	calls int
}

func (s *stubGenerator) GenerateQuery(ctx context.Context, question, schemaSummary string) (string, error) {
	s.calls++
	return s.query, s.err
}

type stubSynthesizer struct {
	answer     string
	err        error
	panicMsg   string
	integrated *models.IntegratedContext
	records    []models.Row
}

func (s *stubSynthesizer) SynthesizeSingle(ctx context.Context, question, query string, records []models.Row) (string, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	s.records = records
	return s.answer, s.err
}

func (s *stubSynthesizer) SynthesizeIntegrated(ctx context.Context, question string, integrated *models.IntegratedContext) (string, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	s.integrated = integrated
	return s.answer, s.err
}

type memoryHistory struct {
	mu       sync.Mutex
	runs     []models.RunRecord
	err      error
	panicMsg string
}

func (h *memoryHistory) Record(ctx context.Context, run models.RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	if h.err != nil {
		return h.err
	}
	h.runs = append(h.runs, run)
	return nil
}

func (h *memoryHistory) Recent(ctx context.Context, limit int) ([]models.RunRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runs, nil
}

func (h *memoryHistory) Get(ctx context.Context, id string) (*models.RunRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.runs {
		if h.runs[i].ID == id {
			return &h.runs[i], nil
		}
	}
	return nil, nil
}

func (h *memoryHistory) Close() error {
	return nil
}
