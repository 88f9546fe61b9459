// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package stats serves a live view of the frame supply over WebSocket.
package stats

import (
	"context"
	"errors"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/logging"
	"github.com/pion/rtsp-bridge/supply"
)

const (
	// DefaultInterval is how often a snapshot is pushed to clients.
	DefaultInterval = time.Second

	clientBuffer    = 16
	writeTimeout    = 2 * time.Second
	shutdownTimeout = 2 * time.Second
)

// ErrInvalidInterval is returned for a non-positive push interval.
var ErrInvalidInterval = errors.New("interval must be positive")

// Message types sent over the websocket.
const (
	TypeSnapshot = "snapshot"
	TypePoint    = "point"
)

// DataPoint represents a single data point for visualization.
type DataPoint struct {
	Label     string
	Timestamp int64 // milliseconds after the server started
	Value     float64
}

// Snapshot is the JSON form of supply.Stats.
type Snapshot struct {
	Timestamp           int64  `json:"timestamp"`
	State               string `json:"state"`
	ConsecutiveFailures uint64 `json:"consecutiveFailures"`
	RealFrames          uint64 `json:"realFrames"`
	PlaceholderFrames   uint64 `json:"placeholderFrames"`
	Opens               uint64 `json:"opens"`
	OpenFailures        uint64 `json:"openFailures"`
	ReadFailures        uint64 `json:"readFailures"`
	Width               int    `json:"width"`
	Height              int    `json:"height"`
	LastPTS             int64  `json:"lastPts"`
	SessionID           string `json:"sessionId,omitempty"`
}

// Message is one websocket message.
type Message struct {
	Type     string     `json:"type"`
	Snapshot *Snapshot  `json:"snapshot,omitempty"`
	Point    *DataPoint `json:"point,omitempty"`
}

// NewSnapshot converts supply counters taken at t.
func NewSnapshot(s supply.Stats, t time.Time) Snapshot {
	return Snapshot{
		Timestamp:           t.UnixMilli(),
		State:               s.State.String(),
		ConsecutiveFailures: s.ConsecutiveFailures,
		RealFrames:          s.RealFrames,
		PlaceholderFrames:   s.PlaceholderFrames,
		Opens:               s.Opens,
		OpenFailures:        s.OpenFailures,
		ReadFailures:        s.ReadFailures,
		Width:               s.Width,
		Height:              s.Height,
		LastPTS:             s.LastPTS,
		SessionID:           s.SessionID,
	}
}

// Option configures a Server.
type Option func(*Server) error

// WithSource sets the function polled for supply counters.
func WithSource(source func() supply.Stats) Option {
	return func(s *Server) error {
		s.source = source

		return nil
	}
}

// WithInterval sets the snapshot push interval.
func WithInterval(d time.Duration) Option {
	return func(s *Server) error {
		if d <= 0 {
			return ErrInvalidInterval
		}
		s.interval = d

		return nil
	}
}

// WithHandler mounts an extra handler, e.g. promhttp on /metrics.
func WithHandler(pattern string, handler http.Handler) Option {
	return func(s *Server) error {
		s.mux.Handle(pattern, handler)

		return nil
	}
}

// SetLoggerFactory sets the logger factory.
func SetLoggerFactory(loggerFactory logging.LoggerFactory) Option {
	return func(s *Server) error {
		s.log = loggerFactory.NewLogger("stats")

		return nil
	}
}

// Server handles WebSocket connections for real-time data visualization.
type Server struct {
	upgrader *websocket.Upgrader
	mux      *http.ServeMux
	log      logging.LeveledLogger
	source   func() supply.Stats
	interval time.Duration
	start    time.Time

	mu      sync.Mutex
	clients map[chan Message]struct{}
}

// New creates a new statistics server.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		upgrader: &websocket.Upgrader{},
		mux:      http.NewServeMux(),
		log:      logging.NewDefaultLoggerFactory().NewLogger("stats"),
		interval: DefaultInterval,
		start:    time.Now(),
		clients:  make(map[chan Message]struct{}),
	}
	s.mux.HandleFunc("/", s.home)
	s.mux.HandleFunc("/update", s.update)

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Handler returns the HTTP handler serving the page, the websocket and extra handlers.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Add broadcasts a data point to connected clients.
func (s *Server) Add(d DataPoint) {
	s.broadcast(Message{Type: TypePoint, Point: &d})
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.clients)
}

// Run pushes a snapshot every interval until ctx is done.
func (s *Server) Run(ctx context.Context) {
	if s.source == nil {
		<-ctx.Done()

		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			snapshot := NewSnapshot(s.source(), now)
			s.broadcast(Message{Type: TypeSnapshot, Snapshot: &snapshot})
			s.Add(DataPoint{
				Label:     "consecutive_failures",
				Timestamp: now.Sub(s.start).Milliseconds(),
				Value:     float64(snapshot.ConsecutiveFailures),
			})
		}
	}
}

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go s.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Warnf("stats server shutdown: %v", err)
		}
	}()

	s.log.Infof("Serving stats on http://%s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) subscribe() chan Message {
	ch := make(chan Message, clientBuffer)

	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()

	return ch
}

func (s *Server) unsubscribe(ch chan Message) {
	s.mu.Lock()
	delete(s.clients, ch)
	s.mu.Unlock()
}

// broadcast never blocks; a slow client misses messages.
func (s *Server) broadcast(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.clients {
		select {
		case ch <- m:
		default:
		}
	}
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("s.upgrader.Upgrade: %v", err)

		return
	}
	defer func() {
		if err = wsConn.Close(); err != nil {
			s.log.Debugf("failed to close websocket connection: %v", err)
		}
	}()

	messages := s.subscribe()
	defer s.unsubscribe(messages)

	// reads only to notice the peer going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := wsConn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case m := <-messages:
			_ = wsConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err = wsConn.WriteJSON(m); err != nil {
				s.log.Errorf("c.WriteJSON: %v", err)

				return
			}
		}
	}
}

var homeTemplate = template.Must(template.New("").Parse(`<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>rtsp-bridge</title>
    <script src="https://cdn.plot.ly/plotly-latest.min.js"></script>
  </head>
  <body>
    <pre id="state">waiting for data</pre>
    <div id="graph"></div>
    <script>
      Plotly.newPlot('graph', [
        {name: 'real', y: [], x: [], mode: 'lines', type: 'scatter'},
        {name: 'placeholder', y: [], x: [], mode: 'lines', type: 'scatter'},
        {name: 'failures', y: [], x: [], mode: 'lines', type: 'scatter'}
      ]);

      const socket = new WebSocket("{{.}}");
      socket.onmessage = function(event) {
        const msg = JSON.parse(event.data);
        if (msg.type !== 'snapshot') {
          return;
        }
        const s = msg.snapshot;
        document.getElementById('state').textContent =
          s.state + ' ' + s.width + 'x' + s.height + ' pts=' + s.lastPts;
        const t = new Date(s.timestamp);
        Plotly.extendTraces('graph', {
          y: [[s.realFrames], [s.placeholderFrames], [s.consecutiveFailures]],
          x: [[t], [t], [t]]
        }, [0, 1, 2]);
      };
    </script>
  </body>
</html>
`)) //nolint:gochecknoglobals

func (s *Server) home(respWriter http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		http.NotFound(respWriter, req)

		return
	}

	if err := homeTemplate.Execute(respWriter, "ws://"+req.Host+"/update"); err != nil {
		s.log.Errorf("failed to execute template: %v", err)
		http.Error(respWriter, "Internal server error", http.StatusInternalServerError)
	}
}
