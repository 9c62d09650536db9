package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"survey-dialer/internal/audit"
	"survey-dialer/internal/auth"
	"survey-dialer/internal/reporting"
	"survey-dialer/internal/tasks"
	"survey-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups the admin API handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Tasks   *tasks.Service
	Audit   *audit.Service
	Reports *reporting.Service

	// StaleAfter is passed to task reports.
	StaleAfter time.Duration
}

// anonymousActor is recorded when the admin API runs without JWT auth.
const anonymousActor = "anonymous"

// --- Scheduling ---

func (h Handlers) Schedule(c *gin.Context) {
	var req tasks.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.Actor = actor(c)

	t, err := h.Tasks.Schedule(c.Request.Context(), req)
	switch {
	case errors.Is(err, tasks.ErrMissingFields):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Missing fields"})
		return
	case errors.Is(err, tasks.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		logger.FromGin(c).Error("schedule failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule call"})
		return
	}
	logger.FromGin(c).Info("call scheduled", "task_id", t.ID, "scheduled_at", t.ScheduledAt)
	c.JSON(http.StatusOK, gin.H{"success": true, "id": t.ID})
}

// --- Tasks ---

func (h Handlers) ListTasks(c *gin.Context) {
	f := tasks.ListFilter{Status: tasks.Status(c.Query("status"))}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		f.Limit = n
	}
	out, err := h.Tasks.List(c.Request.Context(), f)
	if err != nil {
		h.taskError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": out})
}

func (h Handlers) GetTask(c *gin.Context) {
	t, err := h.Tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.taskError(c, err)
		return
	}
	events := []audit.Event{}
	if h.Audit != nil {
		evs, err := h.Audit.ListByTask(c.Request.Context(), t.ID)
		if err != nil {
			logger.FromGin(c).Warn("audit lookup failed", "task_id", t.ID, "err", err)
		} else if evs != nil {
			events = evs
		}
	}
	c.JSON(http.StatusOK, gin.H{"task": t, "events": events})
}

// RetryTask replaces a stuck claimed task with a new pending one.
// RBAC: admin.
func (h Handlers) RetryTask(c *gin.Context) {
	t, err := h.Tasks.Retry(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		h.taskError(c, err)
		return
	}
	logger.FromGin(c).Info("task retried", "task_id", c.Param("id"), "retry_id", t.ID)
	c.JSON(http.StatusCreated, t)
}

// --- Reports ---

func (h Handlers) TaskReport(c *gin.Context) {
	now := time.Now().UTC()
	rng := reporting.TimeRange{From: now.Add(-24 * time.Hour), To: now.Add(24 * time.Hour)}
	var ok bool
	if rng.From, ok = queryTime(c, "from", rng.From); !ok {
		return
	}
	if rng.To, ok = queryTime(c, "to", rng.To); !ok {
		return
	}

	out, err := h.Reports.TaskSummary(c.Request.Context(), reporting.TaskSummaryRequest{
		Range:      rng,
		StaleAfter: h.StaleAfter,
		Now:        now,
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("task report failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) taskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, tasks.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, tasks.ErrInvalidTransition),
		errors.Is(err, tasks.ErrNotRetryable),
		errors.Is(err, tasks.ErrAlreadyExists):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("task request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func queryTime(c *gin.Context, key string, def time.Time) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := tasks.ParseScheduledAt(raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be an ISO 8601 date-time"})
		return time.Time{}, false
	}
	return v, true
}

func actor(c *gin.Context) string {
	if op, err := auth.Operator(c.Request.Context()); err == nil {
		return op
	}
	return anonymousActor
}
