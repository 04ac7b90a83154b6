package api

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/bgunnarsson/tabled/internal/store"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Addr != DefaultAddr || cfg.MaxBodyBytes != DefaultMaxBodyBytes || cfg.UsersTable != DefaultUsersTable {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.ShutdownTimeout <= 0 || cfg.Version == "" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestServeAndShutdown(t *testing.T) {
	s, _ := newTestServer(t, store.Config{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var res *http.Response
	for i := 0; i < 50; i++ {
		res, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d", res.StatusCode)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
