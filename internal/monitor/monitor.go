// Package monitor serves a local WebSocket endpoint that streams control
// plane counters, for operators who want a live view of path status
// without tailing JSON logs (SPEC_FULL.md §4, ambient observability —
// not part of the tunnel's wire protocol).
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jmeyer977/ethudp/internal/logging"
)

// StatusSource reports a point-in-time snapshot of tunnel state. Provided
// by internal/tunnel so this package has no import-time dependency on it.
type StatusSource interface {
	Status() Snapshot
}

// Snapshot is one point-in-time view of the tunnel's control plane,
// serialized as-is to WebSocket clients.
type Snapshot struct {
	Paths []PathSnapshot `json:"paths"`
}

type PathSnapshot struct {
	Role       string `json:"role"`
	Status     string `json:"status"`
	Remote     string `json:"remote,omitempty"`
	FramesSent uint64 `json:"frames_sent"`
	FramesRecv uint64 `json:"frames_recv"`
	PingSend   uint64 `json:"ping_send"`
	PongRecv   uint64 `json:"pong_recv"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server serves /status on listen, pushing a Snapshot once a second to
// each connected WebSocket client until a write to that client fails.
// Canceling Run's context stops the listener; it does not close
// connections that are already streaming.
type Server struct {
	listen string
	source StatusSource
	log    *logging.Logger
	http   *http.Server
}

func New(listen string, source StatusSource, log *logging.Logger) *Server {
	s := &Server{listen: listen, source: source, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	s.http = &http.Server{Addr: listen, Handler: mux}
	return s
}

// Run listens until ctx is canceled, then shuts the server down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", logging.Fields{"error": err.Error()})
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		data, err := json.Marshal(s.source.Status())
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
