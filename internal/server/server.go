/*
Package server exposes the light session over HTTP.

	GET  /light-ws      websocket: inbound event frames, outbound color frames
	POST /events        one event frame per request
	GET  /light-status  session and device state
	GET  /bots          bots with a profile directory
	POST /probe         device reachability probe
	GET  /metrics       Prometheus metrics, once instrumented

When the last websocket client goes away the session is reset.
*/
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/scheerer/crystal-lights/internal/dispatch"
	"github.com/scheerer/crystal-lights/internal/events"
	"github.com/scheerer/crystal-lights/internal/logging"
	"github.com/scheerer/crystal-lights/internal/profile"
	"github.com/scheerer/crystal-lights/internal/session"
)

var logger = logging.New("server")

type Controller interface {
	events.Handler
	Status() session.Status
}

type Device interface {
	Status() dispatch.Status
	Probe(ctx context.Context) error
}

type BotDirectory interface {
	Bots() ([]string, error)
	InvalidateAll()
}

// Recorder observes inbound events and websocket clients.
type Recorder interface {
	Event(result string)
	ClientsChanged(count int)
}

type nopRecorder struct{}

func (nopRecorder) Event(string)       {}
func (nopRecorder) ClientsChanged(int) {}

type LightStatus struct {
	Session session.Status  `json:"session"`
	Device  dispatch.Status `json:"device"`
	Clients int             `json:"clients"`
}

type Server struct {
	controller Controller
	device     Device
	bots       BotDirectory
	hub        *Hub
	recorder   Recorder
	upgrader   websocket.Upgrader
	router     *httprouter.Router
}

func New(controller Controller, device Device, bots BotDirectory, hub *Hub) *Server {
	s := &Server{
		controller: controller,
		device:     device,
		bots:       bots,
		hub:        hub,
		recorder:   nopRecorder{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the voice client is served from another origin on the LAN
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := httprouter.New()
	r.GET("/light-ws", s.handleLightWebsocketGET)
	r.POST("/events", s.handleEventsPOST)
	r.GET("/light-status", s.handleLightStatusGET)
	r.GET("/bots", s.handleBotsGET)
	r.POST("/probe", s.handleProbePOST)
	s.router = r
	return s
}

// Instrument records into r and serves metrics at GET /metrics.
func (s *Server) Instrument(r Recorder, metrics http.Handler) {
	s.recorder = r
	s.router.Handler(http.MethodGet, "/metrics", metrics)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleLightWebsocketGET(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		logger.With(zap.Error(err)).Warn("Websocket upgrade failed")
		return
	}

	// profiles are re-read for every new connection
	s.bots.InvalidateAll()

	c := s.hub.add(conn)
	s.recorder.ClientsChanged(s.hub.Count())
	log := logger.With(zap.String("client", c.id), zap.String("remote", r.RemoteAddr))
	log.Info("Light websocket connected")
	go c.writePump()

	defer func() {
		remaining := s.hub.remove(c)
		s.recorder.ClientsChanged(remaining)
		log.With(zap.Int("remaining", remaining)).Info("Light websocket disconnected")
		if remaining == 0 {
			s.controller.Reset()
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) || (ce.Code != websocket.CloseNoStatusReceived && ce.Code != websocket.CloseNormalClosure && ce.Code != websocket.CloseGoingAway) {
				log.With(zap.Error(err)).Warn("Light websocket read failed")
			}
			return
		}
		if apiErr := s.handleFrame(data); apiErr != nil {
			frame, _ := json.Marshal(ErrorFrame{Type: "error", Code: apiErr.Code, Message: apiErr.Message, Param: apiErr.Param})
			s.hub.sendTo(c, frame)
		}
	}
}

// handleFrame decodes and applies one event. Malformed frames and unknown
// bots are logged and dropped.
func (s *Server) handleFrame(data []byte) *APIError {
	apiErr := s.applyFrame(data)
	if apiErr != nil {
		s.recorder.Event(apiErr.Code)
	} else {
		s.recorder.Event("ok")
	}
	return apiErr
}

func (s *Server) applyFrame(data []byte) *APIError {
	msg, err := events.Decode(data)
	if err != nil {
		var de *events.DecodeError
		if errors.As(err, &de) {
			logger.With(zap.String("code", de.Code), zap.String("param", de.Param), zap.Error(err)).Warn("Dropping malformed event")
			return &APIError{Code: de.Code, Message: de.Message, Param: de.Param}
		}
		logger.With(zap.Error(err)).Warn("Dropping malformed event")
		return &APIError{Code: "bad_request", Message: err.Error()}
	}

	logger.With(zap.Any("event", msg)).Debug("Event received")
	if err := events.Apply(s.controller, msg); err != nil {
		code := "unprocessable"
		if errors.Is(err, profile.ErrUnknownBot) {
			code = "unknown_bot"
		}
		return &APIError{Code: code, Message: err.Error()}
	}
	return nil
}

func (s *Server) handleEventsPOST(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		writeHTTPError(rw, http.StatusBadRequest, APIError{Code: "bad_request", Message: err.Error()})
		return
	}

	if apiErr := s.handleFrame(data); apiErr != nil {
		status := http.StatusBadRequest
		if apiErr.Code == "unknown_bot" {
			status = http.StatusNotFound
		}
		writeHTTPError(rw, status, *apiErr)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLightStatusGET(rw http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeHTTPData(rw, http.StatusOK, s.status())
}

func (s *Server) handleBotsGET(rw http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	bots, err := s.bots.Bots()
	if err != nil {
		logger.With(zap.Error(err)).Error("Failed to list bots")
		writeHTTPError(rw, http.StatusInternalServerError, APIError{Message: err.Error()})
		return
	}
	writeHTTPData(rw, http.StatusOK, map[string][]string{"bots": bots})
}

func (s *Server) handleProbePOST(rw http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := s.device.Probe(r.Context()); err != nil {
		status := http.StatusServiceUnavailable
		code := "unreachable"
		if errors.Is(err, dispatch.ErrNoDeviceAddress) {
			status = http.StatusConflict
			code = "no_device_address"
		}
		writeHTTPError(rw, status, APIError{Code: code, Message: err.Error()})
		return
	}
	writeHTTPData(rw, http.StatusOK, s.device.Status())
}

func (s *Server) status() LightStatus {
	return LightStatus{
		Session: s.controller.Status(),
		Device:  s.device.Status(),
		Clients: s.hub.Count(),
	}
}
