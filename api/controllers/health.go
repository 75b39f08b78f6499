package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/commercebridge/ideal-gateway/api/responses"
	"github.com/commercebridge/ideal-gateway/pkg/config"
	"github.com/commercebridge/ideal-gateway/pkg/logger"
)

type healthPinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	cfg   config.AppConfig
	db    healthPinger
	redis healthPinger
	logg  *logger.Logger
}

func NewHealthController(cfg config.AppConfig, db, redis healthPinger, logg *logger.Logger) *HealthController {
	return &HealthController{cfg: cfg, db: db, redis: redis, logg: logg}
}

func (h *HealthController) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-App-Env", h.cfg.Env)
	responses.WriteSuccess(w, map[string]string{"status": "ok"})
}

func (h *HealthController) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	checks["db"] = "ok"
	if h.db == nil {
		checks["db"] = "not configured"
		healthy = false
	} else if err := h.db.Ping(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	}

	checks["redis"] = "ok"
	if h.redis == nil {
		checks["redis"] = "not configured"
		healthy = false
	} else if err := h.redis.Ping(ctx); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	}

	w.Header().Set("X-App-Env", h.cfg.Env)

	if !healthy {
		if h.logg != nil {
			h.logg.Warn(ctx, "readiness check failed")
		}
		responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, checks)
		return
	}
	responses.WriteSuccess(w, checks)
}
