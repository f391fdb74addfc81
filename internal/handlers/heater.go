package handlers

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/host"

	"water_heater/internal/version"
)

const (
	statusOK = "ok"

	errGetState = "failed to load state"
)

var processStart = time.Now()

// hostUptime is swapped in tests.
var hostUptime = host.Uptime

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...any) {
	if h.log != nil && err != nil {
		fields := append([]any{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status         string       `json:"status"`
	Version        version.Info `json:"version"`
	Hostname       string       `json:"hostname,omitempty"`
	UptimeSeconds  float64      `json:"uptime_seconds"`
	HostUptimeSecs uint64       `json:"host_uptime_seconds,omitempty"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	resp := HealthResponse{
		Status:        statusOK,
		Version:       version.Get(),
		UptimeSeconds: time.Since(processStart).Seconds(),
	}
	if name, err := os.Hostname(); err == nil {
		resp.Hostname = name
	}
	if up, err := hostUptime(); err == nil {
		resp.HostUptimeSecs = up
	} else if h.log != nil {
		h.log.Debugw("host_uptime_unavailable", "err", err)
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary      Get heater state
// @Description  Live controller snapshot: temperature, thresholds, heater and latch flags, supervisor phase and the last pressure value.
// @Tags         heater
// @Produce      json
// @Success      200  {object}  models.HeaterState
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/heater/state [get]
// @Security     BearerAuth
func (h *Handler) getState(c *gin.Context) {
	st, err := h.services.Monitoring.GetState(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errGetState, "get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}
