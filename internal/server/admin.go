package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tidekv/internal/ttlindex"
)

// statusResponse is the JSON body served at /status.
type statusResponse struct {
	Running      bool           `json:"running"`
	TotalEnqueue uint64         `json:"total_enqueue"`
	TotalDequeue uint64         `json:"total_dequeue"`
	QueueDepth   map[string]int `json:"queue_depth"`
}

// NewAdminHandler returns an http.Handler exposing a small JSON status
// API for operators: /healthz and /status.
func NewAdminHandler(engine *ttlindex.Engine, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		stats := engine.Stats()
		depth := make(map[string]int, len(stats.QueueDepth))
		for shard, n := range stats.QueueDepth {
			depth[shardKey(shard)] = n
		}
		resp := statusResponse{
			Running:      engine.IsRunning(),
			TotalEnqueue: stats.TotalEnqueue,
			TotalDequeue: stats.TotalDequeue,
			QueueDepth:   depth,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("admin: failed to encode status", "err", err)
		}
	})

	return r
}

func shardKey(shard ttlindex.ShardID) string {
	return itoaShard(uint32(shard))
}

func itoaShard(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// StartAdmin starts the admin HTTP server on addr in the background.
func StartAdmin(addr string, engine *ttlindex.Engine, logger *slog.Logger) {
	if addr == "" {
		return
	}
	h := NewAdminHandler(engine, logger)
	srv := &http.Server{Addr: addr, Handler: h}
	go func() {
		logger.Info("admin server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", "err", err)
		}
	}()
}
