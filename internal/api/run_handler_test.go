package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/jwt"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/api"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/gmpe"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/runstate"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/service"
)

type mockRunService struct {
	submitFunc func(event map[string]any) (service.RunHandle, error)
	pollFunc   func(runID string) (service.PollResult, error)
	sessFunc   func(sessionID int64) (service.PollResult, error)
	cancelFunc func(runID string) error
}

func (m *mockRunService) SubmitRun(_ context.Context, event map[string]any) (service.RunHandle, error) {
	if m.submitFunc != nil {
		return m.submitFunc(event)
	}
	return service.RunHandle{RunID: "run-1"}, nil
}

func (m *mockRunService) Poll(_ context.Context, runID string) (service.PollResult, error) {
	if m.pollFunc != nil {
		return m.pollFunc(runID)
	}
	return service.PollResult{RunID: runID, Status: runstate.StatusRunning, Messages: []string{}}, nil
}

func (m *mockRunService) PollSession(_ context.Context, sessionID int64) (service.PollResult, error) {
	if m.sessFunc != nil {
		return m.sessFunc(sessionID)
	}
	return service.PollResult{}, domain.ErrRunNotFound
}

func (m *mockRunService) Cancel(_ context.Context, runID string) error {
	if m.cancelFunc != nil {
		return m.cancelFunc(runID)
	}
	return nil
}

func setupTestRouter(t *testing.T, svc api.Runs, jwtSecret string) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)

	router := gin.New()
	api.SetupRoutes(router, api.NewRunHandler(svc), api.NewGMPEHandler(gmpe.DefaultRegistry()),
		prometheus.NewRegistry(), jwtSecret)
	return router
}

func do(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRunHandler_SubmitRun_Accepted(t *testing.T) {
	var got map[string]any
	svc := &mockRunService{
		submitFunc: func(event map[string]any) (service.RunHandle, error) {
			got = event
			return service.RunHandle{RunID: "abc"}, nil
		},
	}
	router := setupTestRouter(t, svc, "")

	w := do(router, http.MethodPost, "/api/v1/runs", map[string]any{"lat": 42.87, "mag": []float64{6.5, 7}})

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, w.Code, w.Body.String())
	}
	var handle service.RunHandle
	if err := json.Unmarshal(w.Body.Bytes(), &handle); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if handle.RunID != "abc" {
		t.Errorf("expected run id abc, got %q", handle.RunID)
	}
	if got["lat"] != 42.87 {
		t.Errorf("expected lat to reach the service, got %v", got["lat"])
	}
}

func TestRunHandler_SubmitRun_InvalidJSON(t *testing.T) {
	router := setupTestRouter(t, &mockRunService{}, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestRunHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: &domain.ValidationError{Field: "mag", Reason: "missing"}, want: http.StatusBadRequest},
		{name: "not found", err: domain.ErrRunNotFound, want: http.StatusNotFound},
		{name: "wrapped not found", err: wrapNotFound("x"), want: http.StatusNotFound},
		{name: "illegal state", err: &domain.IllegalStateError{Op: "cancel", State: "DONE"}, want: http.StatusConflict},
		{name: "internal", err: errors.New("database down"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockRunService{
				pollFunc: func(string) (service.PollResult, error) { return service.PollResult{}, tt.err },
			}
			router := setupTestRouter(t, svc, "")

			w := do(router, http.MethodGet, "/api/v1/runs/x", nil)
			if w.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func wrapNotFound(id string) error {
	return errors.Join(errors.New("run "+id), domain.ErrRunNotFound)
}

func TestRunHandler_GetRun(t *testing.T) {
	svc := &mockRunService{
		pollFunc: func(runID string) (service.PollResult, error) {
			return service.PollResult{
				RunID:           runID,
				Status:          runstate.StatusDone,
				PercentComplete: 100,
				Messages:        []string{"Process completed"},
				SessionID:       7,
			}, nil
		},
	}
	router := setupTestRouter(t, svc, "")

	w := do(router, http.MethodGet, "/api/v1/runs/r1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var res service.PollResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if res.RunID != "r1" || res.Status != runstate.StatusDone || res.SessionID != 7 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Messages) != 1 {
		t.Errorf("expected one message, got %v", res.Messages)
	}
}

func TestRunHandler_GetSession(t *testing.T) {
	svc := &mockRunService{
		sessFunc: func(sessionID int64) (service.PollResult, error) {
			if sessionID != 7 {
				return service.PollResult{}, domain.ErrRunNotFound
			}
			return service.PollResult{RunID: "r1", Status: runstate.StatusRunning, SessionID: 7}, nil
		},
	}
	router := setupTestRouter(t, svc, "")

	w := do(router, http.MethodGet, "/api/v1/sessions/7", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var res service.PollResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if res.RunID != "r1" {
		t.Errorf("expected run r1, got %q", res.RunID)
	}

	if w := do(router, http.MethodGet, "/api/v1/sessions/8", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown session: expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if w := do(router, http.MethodGet, "/api/v1/sessions/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestRunHandler_CancelRun(t *testing.T) {
	var cancelled []string
	svc := &mockRunService{
		cancelFunc: func(runID string) error {
			cancelled = append(cancelled, runID)
			return nil
		},
	}
	router := setupTestRouter(t, svc, "")

	if w := do(router, http.MethodPost, "/api/v1/runs/a/cancel", nil); w.Code != http.StatusAccepted {
		t.Errorf("cancel: expected status %d, got %d", http.StatusAccepted, w.Code)
	}
	if w := do(router, http.MethodDelete, "/api/v1/runs/b", nil); w.Code != http.StatusAccepted {
		t.Errorf("delete: expected status %d, got %d", http.StatusAccepted, w.Code)
	}
	if len(cancelled) != 2 || cancelled[0] != "a" || cancelled[1] != "b" {
		t.Errorf("unexpected cancelled runs %v", cancelled)
	}
}

func TestRoutes_ProtectedWithSecret(t *testing.T) {
	const secret = "test-secret"
	router := setupTestRouter(t, &mockRunService{}, secret)

	if w := do(router, http.MethodGet, "/api/v1/runs/r1", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d without token, got %d", http.StatusUnauthorized, w.Code)
	}

	token, err := jwt.Sign(secret, "tester", time.Minute)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/r1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected status %d with token, got %d", http.StatusOK, w.Code)
	}

	if w := do(router, http.MethodGet, "/api/v1/gmpes", nil); w.Code != http.StatusOK {
		t.Errorf("gmpes: expected public status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestGMPEHandler_ListGMPEs(t *testing.T) {
	router := setupTestRouter(t, &mockRunService{}, "")

	w := do(router, http.MethodGet, "/api/v1/gmpes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var body struct {
		GMPEs []api.GMPEResponse `json:"gmpes"`
		Count int                `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Count != 3 || len(body.GMPEs) != 3 {
		t.Fatalf("expected 3 models, got %d", body.Count)
	}
	if body.GMPEs[0].ID != 1 || body.GMPEs[0].SourceType == "" {
		t.Errorf("unexpected first model %+v", body.GMPEs[0])
	}
}

func TestRoutes_Metrics(t *testing.T) {
	router := setupTestRouter(t, &mockRunService{}, "")

	if w := do(router, http.MethodGet, "/metrics", nil); w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
}
