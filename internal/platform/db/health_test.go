package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func serveHealth(t *testing.T, p Pinger) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	stats := func() *PoolStats {
		return &PoolStats{TotalConns: 2, IdleConns: 1, AcquiredConns: 1, MaxConns: 10, AcquireDuration: "1ms", Healthy: true}
	}
	if err := HealthHandler(p, stats)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	return rec, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	rec, body := serveHealth(t, fakePinger{})
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if string(body["status"]) != `"healthy"` {
		t.Errorf("expected healthy status, got %s", body["status"])
	}

	var stats PoolStats
	if err := json.Unmarshal(body["pool"], &stats); err != nil {
		t.Fatalf("invalid pool stats: %v", err)
	}
	if stats.TotalConns != 2 || stats.MaxConns != 10 || !stats.Healthy {
		t.Errorf("unexpected pool stats: %+v", stats)
	}
}

func TestHealthHandler_PingFailure(t *testing.T) {
	rec, body := serveHealth(t, fakePinger{err: errors.New("connection refused")})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if string(body["error"]) != `"connection refused"` {
		t.Errorf("expected ping error in body, got %s", body["error"])
	}

	var stats PoolStats
	if err := json.Unmarshal(body["pool"], &stats); err != nil {
		t.Fatalf("invalid pool stats: %v", err)
	}
	if stats.Healthy {
		t.Error("expected Healthy to be false when ping fails")
	}
}
