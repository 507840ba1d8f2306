package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"diag-agent/app/domains"
	"diag-agent/app/services"
	"diag-agent/app/storage"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 500
)

// AgentView is the read-only agent surface the status server exposes
type AgentView interface {
	State() services.State
	Status() services.Status
	Identity() domains.Identity
}

// ErrorResponse is returned for failed status requests
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// respondError sends an error response
func respondError(c *gin.Context, status int, message string, details map[string]string) {
	c.JSON(status, ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// StatusHandler serves local health, status and journal endpoints
type StatusHandler struct {
	agent   AgentView
	journal storage.Journal
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(agent AgentView, journal storage.Journal) *StatusHandler {
	if journal == nil {
		journal = storage.NopJournal{}
	}
	return &StatusHandler{agent: agent, journal: journal}
}

// Health reports that the process is serving
func (h *StatusHandler) Health(c *gin.Context) {
	respondJSON(c, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready reports whether the agent loops are running
func (h *StatusHandler) Ready(c *gin.Context) {
	state := h.agent.State()
	if state != services.StateRunning {
		respondJSON(c, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"state":  state.String(),
		})
		return
	}
	respondJSON(c, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Status returns the agent status snapshot together with its identity
func (h *StatusHandler) Status(c *gin.Context) {
	respondJSON(c, http.StatusOK, gin.H{
		"agent":    h.agent.Status(),
		"identity": h.agent.Identity(),
	})
}

// RecentCommands lists the newest journal entries
func (h *StatusHandler) RecentCommands(c *gin.Context) {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, "invalid limit", map[string]string{"limit": raw})
			return
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := h.journal.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to read command journal", nil)
		return
	}
	if records == nil {
		records = []domains.CommandRecord{}
	}

	respondJSON(c, http.StatusOK, gin.H{
		"commands": records,
		"count":    len(records),
	})
}

// NewRouter builds the status server routes. A nil gatherer leaves out /metrics.
func NewRouter(h *StatusHandler, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/status", h.Status)
	router.GET("/commands", h.RecentCommands)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
