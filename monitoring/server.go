package monitoring

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type HealthStatus struct {
	Status         string    `json:"status"`
	Uptime         string    `json:"uptime"`
	StartTime      time.Time `json:"start_time"`
	MemoryUsage    uint64    `json:"memory_usage"`
	GoroutineCount int       `json:"goroutine_count"`
}

var startTime = time.Now()

func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := HealthStatus{
		Status:         "ok",
		Uptime:         time.Since(startTime).String(),
		StartTime:      startTime,
		MemoryUsage:    m.Alloc,
		GoroutineCount: runtime.NumGoroutine(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Start runs the operational listener in the background. The farm itself is a
// pure outbound client; this surface exists only for operators and is off by
// default.
func Start(addr string, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthCheckHandler)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Infow("Metrics listener started", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("Metrics listener error", "error", err)
		}
	}()
}
