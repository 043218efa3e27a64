package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/linesmerrill/benefits-access-api/models"
)

// Pinger is anything whose reachability decides liveness, usually the mongo client
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheckHandler reports alive while p answers a ping. A nil p is always alive.
func HealthCheckHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		alive := true
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				zap.S().Warnw("health check ping failed", "error", err)
				status = http.StatusServiceUnavailable
				alive = false
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		b, _ := json.Marshal(models.HealthCheckResponse{Alive: alive})
		w.Write(b)
	}
}
