package astitranscoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/asticode/go-astikit"
	"github.com/asticode/go-astiws"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Server exposes the transcoder status over HTTP and pushes events to websocket clients
type Server struct {
	e  *exposer
	l  astikit.SeverityLogger
	m  *Metrics
	ws *astiws.Manager
}

// ServerOptions represents server options
type ServerOptions struct {
	Logger astikit.StdLogger
	// /metrics is not served when nil
	Metrics *Metrics
}

// NewServer creates a new server
func NewServer(o ServerOptions) *Server {
	return &Server{
		e:  newExposer(),
		l:  astikit.AdaptStdLogger(o.Logger),
		m:  o.Metrics,
		ws: astiws.NewManager(astiws.ManagerConfiguration{MaxMessageSize: 8192}, o.Logger),
	}
}

// Handler returns the server handler
func (s *Server) Handler() http.Handler {
	// Create router
	r := httprouter.New()

	// Add routes
	r.Handler(http.MethodGet, "/ok", s.serveOK())
	r.Handler(http.MethodGet, "/status", s.serveStatus())
	r.Handler(http.MethodGet, "/websocket", s.serveWebSocket())
	if s.m != nil {
		r.Handler(http.MethodGet, "/metrics", s.m.Handler())
	}
	return r
}

func (s *Server) serveOK() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {})
}

func (s *Server) serveStatus() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		// Write
		rw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(s.e.status()); err != nil {
			s.l.Error(fmt.Errorf("astitranscoder: writing failed: %w", err))
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}
	})
}

func (s *Server) serveWebSocket() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if err := s.ws.ServeHTTP(rw, r, s.adaptWebSocketClient); err != nil {
			var e *websocket.CloseError
			if ok := errors.As(err, &e); !ok ||
				(e.Code != websocket.CloseNoStatusReceived && e.Code != websocket.CloseNormalClosure) {
				s.l.Error(fmt.Errorf("astitranscoder: handling websocket failed: %w", err))
			}
			return
		}
	})
}

func (s *Server) adaptWebSocketClient(c *astiws.Client) (err error) {
	// Register client
	s.ws.AutoRegisterClient(c)

	// Add listeners
	c.AddListener(astiws.EventNameDisconnect, s.webSocketDisconnected)
	c.AddListener("ping", s.webSocketPing)
	return
}

func (s *Server) webSocketDisconnected(c *astiws.Client, eventName string, payload json.RawMessage) error {
	s.ws.UnregisterClient(c)
	return nil
}

func (s *Server) webSocketPing(c *astiws.Client, eventName string, payload json.RawMessage) error {
	if err := c.ExtendConnection(); err != nil {
		s.l.Error(fmt.Errorf("astitranscoder: extending ws connection failed: %w", err))
	}
	return nil
}

func (s *Server) sendWebSocket(eventName string, payload interface{}) {
	// Loop through clients
	s.ws.Loop(func(_ interface{}, c *astiws.Client) {
		if err := c.Write(eventName, payload); err != nil {
			s.l.Error(fmt.Errorf("astitranscoder: writing event %s to websocket client %p failed: %w", eventName, c, err))
			return
		}
	})
}

// EventHandlerAdapter updates the exposed status and pushes events to websocket clients
func (s *Server) EventHandlerAdapter(eh *EventHandler) {
	eh.AddForAll(func(e Event) bool {
		// Update status
		s.e.handleEvent(e)

		// Send
		s.sendWebSocket(string(e.Name), newExposedEvent(e))
		return false
	})
}
