package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/metrics"
	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/handlers"
	testhelpers "github.com/wrwrabbit/apk-customizer-bot/internal/test"
)

func newFacade() testhelpers.ControllerFacadeStub {
	return testhelpers.ControllerFacadeStub{
		WorkerAuthStub: &testhelpers.WorkerAuthStub{Workers: map[int64]*model.Worker{1: {ID: 1, Name: "w1"}}},
		ErrorSinkStub:  &testhelpers.ErrorSinkStub{},
		WorkerFacadeStub: testhelpers.WorkerFacadeStub{
			ReceiveFn: func(context.Context, int64) (*model.Order, error) {
				return &model.Order{ID: 9}, nil
			},
		},
	}
}

func setup(t *testing.T, facade handlers.ControllerFacade) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	engine, err := Setup(facade, &config.Config{MaxUploadSize: 1 << 20}, metrics.NewPrometheus(nil, "routertest"), logger)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return engine
}

func serve(engine *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)
	return resp
}

func TestSetupRoutes(t *testing.T) {
	facade := newFacade()
	engine := setup(t, facade)

	resp := serve(engine, http.MethodGet, "/receive-order", "worker:1")
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"id":9`) {
		t.Fatalf("expected leased order, got %d %q", resp.Code, resp.Body.String())
	}
	if hb := facade.Heartbeats(); len(hb) != 1 || hb[0] != 1 {
		t.Fatalf("expected heartbeat for worker 1, got %v", hb)
	}

	resp = serve(engine, http.MethodGet, "/keep-alive", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}

	resp = serve(engine, http.MethodGet, "/keep-alive", "frontend:0")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for frontend token on worker route, got %d", resp.Code)
	}

	resp = serve(engine, http.MethodGet, "/api/orders/3", "frontend:0")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for order lookup, got %d", resp.Code)
	}

	resp = serve(engine, http.MethodGet, "/api/orders/3", "worker:1")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for worker token on api route, got %d", resp.Code)
	}

	resp = serve(engine, http.MethodGet, "/healthz", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for health, got %d", resp.Code)
	}
	if resp.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	engine := setup(t, newFacade())

	serve(engine, http.MethodGet, "/healthz", "")
	resp := serve(engine, http.MethodGet, "/metrics", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for metrics, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "routertest_http_requests_total") {
		t.Fatalf("expected request counter in scrape, got %q", resp.Body.String())
	}
}

func TestRecoveryStoresPanic(t *testing.T) {
	facade := newFacade()
	facade.FrontendFacadeStub.PopFn = func(context.Context) (*model.ErrorLog, error) {
		panic("boom")
	}
	engine := setup(t, facade)

	resp := serve(engine, http.MethodPost, "/api/error-logs/pop", "frontend:0")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", resp.Code)
	}
	texts := facade.Texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "boom") {
		t.Fatalf("expected panic to be stored, got %v", texts)
	}
}

func TestSetupRejectsBadProxies(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	_, err := Setup(newFacade(), &config.Config{TrustedProxies: []string{"not-an-ip"}}, metrics.NewPrometheus(nil, ""), logger)
	if err == nil {
		t.Fatal("expected error for invalid trusted proxy")
	}
}

var _ handlers.ControllerFacade = testhelpers.ControllerFacadeStub{}
