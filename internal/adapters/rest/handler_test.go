package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/ewilliams-labs/encore/internal/core/domain"
	"github.com/ewilliams-labs/encore/internal/worker"
)

// --- Mocks ---

type mockJobs struct {
	accept bool
	jobs   []worker.Job
}

func (m *mockJobs) Submit(job worker.Job) bool {
	if !m.accept {
		return false
	}
	m.jobs = append(m.jobs, job)
	return true
}

type mockRuns struct {
	reports   map[string]domain.RunReport
	list      []domain.RunReport
	err       error
	saveErr   error
	saved     []domain.RunReport
	lastLimit int
}

func (m *mockRuns) SaveRun(ctx context.Context, r domain.RunReport) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.reports == nil {
		m.reports = map[string]domain.RunReport{}
	}
	m.reports[r.ID] = r
	m.saved = append(m.saved, r)
	return nil
}

func (m *mockRuns) GetRun(ctx context.Context, id string) (domain.RunReport, error) {
	if m.err != nil {
		return domain.RunReport{}, m.err
	}
	r, ok := m.reports[id]
	if !ok {
		return domain.RunReport{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *mockRuns) ListRuns(ctx context.Context, limit int) ([]domain.RunReport, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	if len(m.list) > limit {
		return m.list[:limit], nil
	}
	return m.list, nil
}

func sampleRun(id string) domain.RunReport {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return domain.RunReport{
		ID:         id,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Outcome:    domain.OutcomeUpdated,
		Resolved:   2,
		TrackIDs:   []string{"a", "b"},
	}
}

func TestHandler_HealthCheck(t *testing.T) {
	h := NewHandler(&mockJobs{}, &mockRuns{})
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type: got %q", ct)
	}
}

func TestHandler_SubmitRun(t *testing.T) {
	tests := []struct {
		name           string
		accept         bool
		saveErr        error
		expectedStatus int
		expectedBody   string
		wantOutcome    domain.Outcome
		wantJobs       int
	}{
		{
			name:           "Accepted: job queued",
			accept:         true,
			expectedStatus: http.StatusAccepted,
			expectedBody:   `"status":"queued"`,
			wantOutcome:    domain.OutcomeQueued,
			wantJobs:       1,
		},
		{
			name:           "Unavailable: queue full",
			accept:         false,
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "run queue is full",
			wantOutcome:    domain.OutcomeFailed,
		},
		{
			name:           "Error: queued run not recorded",
			accept:         true,
			saveErr:        errors.New("disk full"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "failed to queue run",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := &mockJobs{accept: tt.accept}
			runs := &mockRuns{saveErr: tt.saveErr}
			h := NewHandler(jobs, runs)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs", nil))

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d, body: %s", tt.expectedStatus, rec.Code, strings.TrimSpace(rec.Body.String()))
			}
			if !strings.Contains(rec.Body.String(), tt.expectedBody) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedBody, rec.Body.String())
			}
			if len(jobs.jobs) != tt.wantJobs {
				t.Fatalf("queued jobs: got %d, want %d", len(jobs.jobs), tt.wantJobs)
			}
			if tt.wantOutcome != "" {
				if len(runs.saved) == 0 || runs.saved[len(runs.saved)-1].Outcome != tt.wantOutcome {
					t.Fatalf("stored reports: got %+v, want last outcome %q", runs.saved, tt.wantOutcome)
				}
			}
			if rec.Code != http.StatusAccepted {
				return
			}

			var resp submitRunResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(jobs.jobs) != 1 || jobs.jobs[0].ID != resp.ID {
				t.Fatalf("queued job %+v does not match response id %q", jobs.jobs, resp.ID)
			}
			if jobs.jobs[0].Trigger != worker.TriggerAPI {
				t.Errorf("trigger: got %q", jobs.jobs[0].Trigger)
			}
			if loc := rec.Header().Get("Location"); loc != "/runs/"+resp.ID {
				t.Errorf("location: got %q", loc)
			}
		})
	}
}

func TestHandler_SubmittedRunIsVisible(t *testing.T) {
	h := NewHandler(&mockJobs{accept: true}, &mockRuns{})

	submit := httptest.NewRecorder()
	h.ServeHTTP(submit, httptest.NewRequest(http.MethodPost, "/runs", nil))
	if submit.Code != http.StatusAccepted {
		t.Fatalf("submit: expected 202, got %d", submit.Code)
	}

	get := httptest.NewRecorder()
	h.ServeHTTP(get, httptest.NewRequest(http.MethodGet, submit.Header().Get("Location"), nil))
	if get.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d, body: %s", get.Code, strings.TrimSpace(get.Body.String()))
	}

	var report domain.RunReport
	if err := json.Unmarshal(get.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Outcome != domain.OutcomeQueued {
		t.Errorf("outcome: got %q, want %q", report.Outcome, domain.OutcomeQueued)
	}
}

func TestHandler_SubmitRunRateLimited(t *testing.T) {
	h := NewHandler(&mockJobs{accept: true}, &mockRuns{}, WithSubmitRateLimit(1, time.Minute))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/runs", nil))
	if first.Code != http.StatusAccepted {
		t.Fatalf("first submit: expected 202, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/runs", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second submit: expected 429, got %d", second.Code)
	}

	// Reads are not limited.
	read := httptest.NewRecorder()
	h.ServeHTTP(read, httptest.NewRequest(http.MethodGet, "/runs", nil))
	if read.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", read.Code)
	}
}

func TestHandler_GetRun(t *testing.T) {
	tests := []struct {
		name           string
		id             string
		repoErr        error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Success: stored report",
			id:             "r1",
			expectedStatus: http.StatusOK,
			expectedBody:   `"outcome":"updated"`,
		},
		{
			name:           "Not Found: unknown id",
			id:             "missing",
			expectedStatus: http.StatusNotFound,
			expectedBody:   "run not found",
		},
		{
			name:           "Server Error: repository fails",
			id:             "r1",
			repoErr:        errors.New("disk gone"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "failed to load run",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := &mockRuns{reports: map[string]domain.RunReport{"r1": sampleRun("r1")}, err: tt.repoErr}
			h := NewHandler(&mockJobs{}, runs)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+tt.id, nil))

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d, body: %s", tt.expectedStatus, rec.Code, strings.TrimSpace(rec.Body.String()))
			}
			if !strings.Contains(rec.Body.String(), tt.expectedBody) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedBody, rec.Body.String())
			}
		})
	}
}

func TestHandler_ListRuns(t *testing.T) {
	all := []domain.RunReport{sampleRun("r3"), sampleRun("r2"), sampleRun("r1")}

	tests := []struct {
		name           string
		query          string
		repoErr        error
		expectedStatus int
		expectedLimit  int
		expectedCount  int
	}{
		{name: "Default limit", query: "", expectedStatus: http.StatusOK, expectedLimit: 20, expectedCount: 3},
		{name: "Explicit limit", query: "?limit=2", expectedStatus: http.StatusOK, expectedLimit: 2, expectedCount: 2},
		{name: "Limit is capped", query: "?limit=5000", expectedStatus: http.StatusOK, expectedLimit: maxListLimit, expectedCount: 3},
		{name: "Bad limit", query: "?limit=abc", expectedStatus: http.StatusBadRequest},
		{name: "Zero limit", query: "?limit=0", expectedStatus: http.StatusBadRequest},
		{name: "Repository error", query: "", repoErr: errors.New("locked"), expectedStatus: http.StatusInternalServerError, expectedLimit: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := &mockRuns{list: all, err: tt.repoErr}
			h := NewHandler(&mockJobs{}, runs)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs"+tt.query, nil))

			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d, body: %s", tt.expectedStatus, rec.Code, strings.TrimSpace(rec.Body.String()))
			}
			if runs.lastLimit != tt.expectedLimit {
				t.Errorf("limit: got %d, want %d", runs.lastLimit, tt.expectedLimit)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var got []domain.RunReport
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != tt.expectedCount {
				t.Fatalf("count: got %d, want %d", len(got), tt.expectedCount)
			}
			if got[0].ID != "r3" {
				t.Errorf("order: first is %q", got[0].ID)
			}
		})
	}
}

func TestHandler_Metrics(t *testing.T) {
	h := NewHandler(&mockJobs{}, &mockRuns{})
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("expected prometheus exposition, got %q", rec.Body.String())
	}
}

// --- ServerService ---

type mockHTTPServer struct {
	mu            sync.Mutex
	listenErr     error
	stopCh        chan struct{}
	started       chan struct{}
	shutdownCalls int
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{stopCh: make(chan struct{}), started: make(chan struct{}, 1)}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.started <- struct{}{}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownCalls++
	close(m.stopCh)
	return nil
}

func TestServerService_Serve(t *testing.T) {
	t.Run("graceful shutdown on cancel", func(t *testing.T) {
		srv := newMockHTTPServer()
		svc := NewServerService(srv, time.Second)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()
		<-srv.started
		cancel()

		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if srv.shutdownCalls != 1 {
			t.Errorf("shutdown calls: got %d", srv.shutdownCalls)
		}
	})

	t.Run("listen failure is returned", func(t *testing.T) {
		srv := newMockHTTPServer()
		srv.listenErr = errors.New("address in use")
		svc := NewServerService(srv, 0)

		err := svc.Serve(context.Background())
		if err == nil || !strings.Contains(err.Error(), "address in use") {
			t.Fatalf("expected listen error, got %v", err)
		}
		if svc.String() != "http-server" {
			t.Errorf("name: got %q", svc.String())
		}
	})
}
