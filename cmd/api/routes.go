package main

import (
	"database/sql"
	"net/http"
	"time"

	"survey-dialer/internal/audit"
	"survey-dialer/internal/auth"
	"survey-dialer/internal/callflow"
	"survey-dialer/internal/config"
	"survey-dialer/internal/conversation"
	"survey-dialer/internal/httpapi"
	"survey-dialer/internal/reporting"
	"survey-dialer/internal/tasks"
	"survey-dialer/internal/telephony"
	"survey-dialer/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type routeDeps struct {
	cfg      config.Config
	auth     *auth.Manager
	flow     *callflow.Orchestrator
	tasks    *tasks.Service
	audit    *audit.Service
	reports  *reporting.Service
	db       *sql.DB
	redis    *redis.Client
	sessions *conversation.Store
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Survey dialer is running")
	})
	r.GET("/healthz", func(c *gin.Context) {
		ctx := c.Request.Context()
		status := gin.H{"status": "ok", "sessions": d.sessions.Len()}
		if d.db != nil {
			if err := utils.HealthCheck(ctx, d.db, 2*time.Second); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
				return
			}
		}
		if d.redis != nil {
			if err := d.redis.Ping(ctx).Err(); err != nil {
				// dialing continues without the limiter
				status["redis"] = err.Error()
			}
		}
		c.JSON(http.StatusOK, status)
	})

	// Twilio webhooks (public, signed).
	{
		gather := telephony.DefaultGatherOptions()
		gather.Action = d.cfg.App.PublicURL + "/gather"
		h := telephony.WebhookHandler{Flow: d.flow, Gather: gather}

		hooks := r.Group("/")
		if d.cfg.Twilio.ValidateSignature {
			hooks.Use(telephony.RequireTwilioSignature(d.cfg.Twilio.AuthToken, d.cfg.App.PublicURL))
		}
		hooks.POST("/voice", h.HandleVoice)
		hooks.POST("/gather", h.HandleGather)
		hooks.POST("/status", h.HandleStatus)
	}

	// Admin API.
	httpapi.Handlers{
		Tasks:      d.tasks,
		Audit:      d.audit,
		Reports:    d.reports,
		StaleAfter: d.cfg.Dispatch.StaleClaimAfter,
	}.Register(r, d.auth)
}
