package test

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"livepaste/cfg"
	"livepaste/svc/api"
	"livepaste/svc/cache"
	"livepaste/svc/history"
	"livepaste/svc/hub"
	"livepaste/svc/lim"
	"livepaste/svc/store"
	"livepaste/svc/svc"
	"livepaste/svc/ws"
)

var envLoadOnce sync.Once

func loadTestEnv() {
	envLoadOnce.Do(func() {
		paths := []string{
			".env.test",
			"../.env.test",
		}
		for _, p := range paths {
			if absPath, err := filepath.Abs(p); err == nil {
				if _, err := os.Stat(absPath); err == nil {
					if err := godotenv.Load(absPath); err == nil {
						return
					}
				}
			}
		}
	})
}

func createTestConfig(t *testing.T) *cfg.Cfg {
	t.Helper()
	loadTestEnv()
	return &cfg.Cfg{
		Port:            "0",
		Environment:     "test",
		LogLevel:        "error",
		DataDir:         t.TempDir(),
		MaxPasteSize:    1024 * 1024,
		HistoryMaxLines: 500,
		LRUCacheSize:    100,
		ContextTimeout:  5 * time.Second,
		RateLimit:       cfg.RateLimitCfg{RPM: 100000, Burst: 10000},
		AllowedOrigins:  []string{"*"},
		WSIdleTimeout:   time.Hour,
		WSWriteTimeout:  10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

type testApp struct {
	srv   *httptest.Server
	paste *svc.Paste
	cfg   *cfg.Cfg
}

func startTestApp(t *testing.T) *testApp {
	t.Helper()
	c := createTestConfig(t)

	lru, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(c.DataDir, c.MaxPasteSize, lru)
	if err != nil {
		t.Fatal(err)
	}
	hist, err := history.Open(c.DataDir, c.HistoryMaxLines)
	if err != nil {
		t.Fatal(err)
	}
	pasteSvc := svc.NewPaste(st, hist)
	limiter := lim.New(c.RateLimit.RPM, c.RateLimit.Burst, c.TrustedProxies)
	t.Cleanup(limiter.Stop)

	sessions := hub.New()
	engine := ws.NewEngine(sessions, pasteSvc, c)
	server := api.NewServer(c, pasteSvc, sessions, engine, limiter)

	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)
	return &testApp{srv: srv, paste: pasteSvc, cfg: c}
}
