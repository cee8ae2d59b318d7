package core

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"watchdog/internal/config"
	"watchdog/internal/eventlog"
	"watchdog/internal/storage"
	logx "watchdog/pkg/logx"
)

func waitForHTTP(ctx context.Context, url string) (*http.Response, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		reqCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, http.NoBody)
		if err != nil {
			cancel()
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		cancel()
		if err == nil {
			return resp, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func TestAdminServerApplyEnableDisable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	st := storage.NewMemory()
	if _, err := st.Append(ctx, eventlog.Event{Message: "hello"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	srv := newAdminServer(logx.Nop(), st, nil)
	t.Cleanup(func() { srv.Stop(context.Background()) })

	srv.Apply(ctx, config.AdminConfig{Enabled: true, Addr: "127.0.0.1:0"})
	addr := srv.Addr()
	if addr == "" {
		t.Fatal("expected admin server to expose address")
	}

	resp, err := waitForHTTP(ctx, "http://"+addr+"/healthz")
	if err != nil {
		t.Fatalf("healthz not reachable: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", resp.StatusCode)
	}
	var h struct {
		OK      bool   `json:"ok"`
		Store   string `json:"store"`
		Entries int64  `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	if !h.OK || h.Store != "ok" || h.Entries != 1 {
		t.Fatalf("healthz = %+v, want ok with 1 entry", h)
	}

	resp2, err := http.Get("http://" + addr + "/events?limit=10")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer resp2.Body.Close()
	var events []eventlog.Event
	if err := json.NewDecoder(resp2.Body).Decode(&events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 1 || events[0].Message != "hello" {
		t.Fatalf("events = %+v, want the one appended entry", events)
	}

	// Disable and ensure the listener shuts down.
	srv.Apply(ctx, config.AdminConfig{Enabled: false})
	if addr := srv.Addr(); addr != "" {
		t.Fatalf("expected admin server to stop, still at %s", addr)
	}
}

func TestAdminServerEventsLimitValidation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	srv := newAdminServer(logx.Nop(), storage.NewMemory(), nil)
	t.Cleanup(func() { srv.Stop(context.Background()) })
	srv.Apply(ctx, config.AdminConfig{Enabled: true, Addr: "127.0.0.1:0"})

	resp, err := waitForHTTP(ctx, "http://"+srv.Addr()+"/events?limit=5000")
	if err != nil {
		t.Fatalf("events not reachable: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for out-of-range limit", resp.StatusCode)
	}
}
