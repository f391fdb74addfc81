package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"water_heater/internal/models"
	"water_heater/internal/service"
)

const (
	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

var errRangeOrder = errors.New("'from' must be <= 'to'")

// LogsResponse is the body of GET /api/v1/logs.
type LogsResponse struct {
	Count int `json:"count"`
	// ByType counts the returned events per type, e.g. how many recycles
	// happened in the range.
	ByType map[string]int       `json:"by_type"`
	Events []models.HeaterEvent `json:"events"`
}

// @Summary      List controller events
// @Description  Events such as HEATER_START, RECYCLE or SAFETY_LATCH, oldest first. Times are RFC3339, 'YYYY-MM-DD HH:MM:SS' or 'YYYY-MM-DD'; a date-only 'to' covers the whole day.
// @Tags         logs
// @Produce      json
// @Param        from  query   string  false  "Start of range"  example(2025-08-01)
// @Param        to    query   string  false  "End of range"    example(2025-08-31)
// @Param        type  query   string  false  "Event type (case-insensitive)"  Enums(BOOT,CONNECTED,HEATER_START,HEATER_STOP,RECYCLE,SAFETY_LATCH,ACTUATOR_ERROR,REBOOT)
// @Success      200   {object}  LogsResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/logs [get]
// @Security     BearerAuth
func (h *Handler) getLogs(c *gin.Context) {
	filter, err := parseLogQuery(c.Query("from"), c.Query("to"), c.Query("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.services.EventLog.List(c.Request.Context(), filter)
	if err != nil {
		if service.IsFilterError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load logs", "logs_list_failed", err,
			"from", filter.From, "to", filter.To, "type", filter.Type)
		return
	}

	resp := LogsResponse{
		Count:  len(events),
		ByType: map[string]int{},
		Events: events,
	}
	if resp.Events == nil {
		resp.Events = []models.HeaterEvent{}
	}
	for _, e := range events {
		resp.ByType[e.Type]++
	}
	c.JSON(http.StatusOK, resp)
}

// parseLogQuery turns the query strings into a filter. Empty values leave
// the bound open.
func parseLogQuery(from, to, typ string) (service.LogFilter, error) {
	var f service.LogFilter
	var err error
	if from != "" {
		if f.From, err = parseQueryTime(from); err != nil {
			return f, fmt.Errorf("invalid 'from': %w", err)
		}
	}
	if to != "" {
		if f.To, err = parseQueryTime(to); err != nil {
			return f, fmt.Errorf("invalid 'to': %w", err)
		}
		if !strings.ContainsAny(to, "T ") {
			f.To = f.To.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return f, errRangeOrder
	}
	f.Type = strings.ToUpper(strings.TrimSpace(typ))
	return f, nil
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not RFC3339, 'YYYY-MM-DD HH:MM:SS' or 'YYYY-MM-DD'", s)
}
