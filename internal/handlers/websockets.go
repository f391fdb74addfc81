package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"water_heater/internal/logger"
	"water_heater/internal/models"
	"water_heater/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB

	defaultSampleEvery = time.Second
	minSampleEvery     = 100 * time.Millisecond
	maxSampleEvery     = 10 * time.Second
)

// Stream message types.
const (
	msgState       = "state"
	msgSafetyLatch = "safety_latch"
	msgError       = "error"
)

// StreamMessage is one frame pushed over /ws. State frames list the fields
// that differ from the previous frame; the first frame lists none.
type StreamMessage struct {
	Type    string              `json:"type"`
	State   *models.HeaterState `json:"state,omitempty"`
	Changed []string            `json:"changed,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// The zero CheckOrigin only accepts same-host browser origins.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// @Summary      State stream
// @Description  Upgrades to a WebSocket. Sends the controller state first, then a state frame whenever the heater flags, phase, thresholds, temperature or pressure change, and a single safety_latch frame when the latch trips. ?all=true sends every sample.
// @Tags         heater
// @Param        interval      query  string  false  "Sampling interval as a Go duration (100ms..10s)"
// @Param        all           query  bool    false  "Send every sample, not only changes"
// @Param        access_token  query  string  false  "Operator token when no Authorization header can be set"
// @Success      101
// @Failure      401  {object}  map[string]string
// @Router       /ws [get]
// @Security     BearerAuth
func (h *Handler) stateStream(c *gin.Context) {
	every := sampleInterval(c.Query("interval"))
	all, _ := strconv.ParseBool(c.Query("all"))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	log := h.log
	if log == nil {
		log = logger.Nop()
	}
	s := &stream{conn: conn, mon: h.services.Monitoring, all: all, log: log}
	s.run(c.Request.Context(), every)
}

// sampleInterval parses ?interval, clamping it to the supported range.
func sampleInterval(q string) time.Duration {
	d, err := time.ParseDuration(q)
	if q == "" || err != nil || d <= 0 {
		return defaultSampleEvery
	}
	return min(max(d, minSampleEvery), maxSampleEvery)
}

type stream struct {
	conn *websocket.Conn
	mon  service.Monitoring
	all  bool
	log  *logger.Logger

	last    *models.HeaterState
	latched bool
}

func (s *stream) run(ctx context.Context, every time.Duration) {
	s.conn.SetReadLimit(maxMsgSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go s.drain(done)

	sample := time.NewTicker(every)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		sample.Stop()
		ping.Stop()
	}()

	if err := s.sample(ctx); err != nil {
		s.log.Infow("ws_initial_sample_failed", "err", err)
		return
	}
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Infow("ws_ping_failed", "err", err)
				return
			}
		case <-sample.C:
			if err := s.sample(ctx); err != nil {
				s.log.Infow("ws_sample_failed", "err", err)
				return
			}
		}
	}
}

// drain reads (and discards) client frames so control frames are processed
// and a closed peer is noticed.
func (s *stream) drain(done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.log.Debugw("ws_read_closed", "err", err)
			return
		}
	}
}

// sample reads the controller state and pushes what changed. A failed read
// is reported to the client and ends the stream.
func (s *stream) sample(ctx context.Context) error {
	st, err := s.mon.GetState(ctx)
	if err != nil {
		_ = s.write(StreamMessage{Type: msgError, Error: errGetState})
		return err
	}

	changed := stateChanges(s.last, st)
	if s.last == nil || s.all || len(changed) > 0 {
		if err := s.write(StreamMessage{Type: msgState, State: &st, Changed: changed}); err != nil {
			return err
		}
	}
	s.last = &st

	if st.SafetyLatched && !s.latched {
		s.latched = true
		return s.write(StreamMessage{Type: msgSafetyLatch, State: &st})
	}
	return nil
}

func (s *stream) write(m StreamMessage) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(m)
}

// stateChanges names the fields of cur that differ from prev. Timestamps and
// the humanized start time are ignored; they move on every sample.
func stateChanges(prev *models.HeaterState, cur models.HeaterState) []string {
	if prev == nil {
		return nil
	}
	var out []string
	add := func(name string, differs bool) {
		if differs {
			out = append(out, name)
		}
	}
	add("phase", prev.Phase != cur.Phase)
	add("heater_on", prev.HeaterOn != cur.HeaterOn)
	add("cooling_down", prev.CoolingDown != cur.CoolingDown)
	add("safety_latched", prev.SafetyLatched != cur.SafetyLatched)
	add("current_temp", prev.CurrentTemp != cur.CurrentTemp)
	add("upper_temp", prev.UpperTemp != cur.UpperTemp)
	add("lower_temp", prev.LowerTemp != cur.LowerTemp)
	add("pressure", !samePressure(prev.Pressure, cur.Pressure))
	return out
}

func samePressure(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
