package di

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"TradeDesk/internal/usecase"
	"TradeDesk/pkg/config"
)

func standaloneConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Backend.Type = usecase.BackendNone
	cfg.ClickHouse.Enabled = false
	cfg.Redis.Enabled = false
	cfg.Kafka.Brokers = nil
	cfg.Metrics.Enabled = false
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Logging.Output = "stderr"
	cfg.Logging.Level = "error"
	return cfg
}

func TestInitializeAppWithoutBackends(t *testing.T) {
	app, err := InitializeApp(standaloneConfig(t))
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if app == nil {
		t.Fatalf("expected an app")
	}

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, port, err := net.SplitHostPort(app.Addr())
	if err != nil {
		t.Fatalf("addr %q: %v", app.Addr(), err)
	}
	base := "http://127.0.0.1:" + port
	client := &http.Client{Timeout: 2 * time.Second, Transport: &http.Transport{DisableKeepAlives: true}}

	resp, err := client.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	var health struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusOK || health.Data.Status != "ok" {
		t.Fatalf("unexpected healthz %d %+v (%v)", resp.StatusCode, health, err)
	}

	resp, err = client.Post(base+"/api/chat", "application/json", bytes.NewBufferString(`{"userMessage":"What is RSI?"}`))
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status %d", resp.StatusCode)
	}

	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if resp, err := client.Get(base + "/healthz"); err == nil {
		resp.Body.Close()
		t.Fatalf("still serving after shutdown")
	}
}

func TestInitializeAppRejectsBackendWithoutStore(t *testing.T) {
	cfg := standaloneConfig(t)
	cfg.Backend.Type = usecase.BackendClickHouse
	if _, err := InitializeApp(cfg); err == nil {
		t.Fatalf("expected clickhouse backend without a store to fail")
	}
}
