package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/handlers"
	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/pgp"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	keys := pgp.NewKeyStore(slog.Default(), filepath.Join(t.TempDir(), "key.asc"), "passphrase", "bot", "", "bot@example.test")
	if err := keys.Ensure(); err != nil {
		t.Fatalf("ensure key: %v", err)
	}
	return NewServer(slog.Default(), ":0",
		handlers.NewPingHandler(slog.Default()),
		handlers.NewKeyHandler(slog.Default(), pgp.NewGateway(slog.Default(), keys)))
}

func TestPing(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestHealthHead(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestKeyEndpoint(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/key", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			Key string `json:"key"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != 0 {
		t.Fatalf("code = %d msg = %q", body.Code, body.Msg)
	}
	if !strings.Contains(body.Data.Key, "BEGIN PGP PUBLIC KEY BLOCK") {
		t.Fatalf("key not armored: %q", body.Data.Key)
	}
}
