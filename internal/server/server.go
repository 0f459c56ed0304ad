// Package server implements the loopback dual-protocol server: it accepts
// raw TCP on a loopback port, parses HTTP/1.1 itself, dispatches
// POST /messages to a notification callback, and upgrades GET /tim-agent
// to a wsconn.Conn. No net/http, no WS framework — both protocols are
// parsed by hand on the same socket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/timhq/tim-agent-core/internal/model"
	"github.com/timhq/tim-agent-core/internal/wsconn"
	"github.com/timhq/tim-agent-core/internal/wsframe"
)

// ErrUnknownConnection is returned by Send when connID names no live
// WebSocket connection.
var ErrUnknownConnection = errors.New("server: unknown connection")

// wireNotification mirrors model.Notification's JSON wire shape.
type wireNotification struct {
	Message       string          `json:"message"`
	WorkspacePath string          `json:"workspacePath"`
	Terminal      *model.Terminal `json:"terminal,omitempty"`
}

// Handlers wires the server to the rest of the core. All callbacks may be
// invoked concurrently from different connection goroutines.
type Handlers struct {
	// Notification runs on POST /messages.
	Notification func(model.Notification)
	// WSMessage runs once per decoded WS text message.
	WSMessage func(connID string, text string)
	// WSConnected runs right after a connection is registered and the 101
	// response has flushed, before the read loop starts.
	WSConnected func(connID string)
	// WSDisconnected runs exactly once when a WS connection goes away.
	WSDisconnected func(connID string)
}

// Server is the loopback TCP listener.
type Server struct {
	port     int
	handlers Handlers
	logger   *slog.Logger

	mu       sync.Mutex
	ln       net.Listener
	conns    map[string]*wsconn.Conn
	wg       sync.WaitGroup
	stopping bool
}

// New builds a Server bound to the given loopback port (0 picks an
// ephemeral port).
func New(port int, handlers Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		port:     port,
		handlers: handlers,
		logger:   logger,
		conns:    make(map[string]*wsconn.Conn),
	}
}

// Start binds the listener and begins accepting connections in the
// background. It is idempotent — a second call on an already-started
// server is a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.ln != nil {
		s.mu.Unlock()
		return nil
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("bind loopback server: %w", err)
	}
	s.ln = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// BoundPort returns the port actually bound, useful when Start was called
// with port 0.
func (s *Server) BoundPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return 0
	}
	_, portStr, _ := net.SplitHostPort(s.ln.Addr().String())
	p, _ := strconv.Atoi(portStr)
	return p
}

// Stop cancels the listener and closes every live connection, each firing
// its disconnect callback exactly once.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	ln := s.ln
	conns := make([]*wsconn.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopping := s.stopping
			s.mu.Unlock()
			if stopping {
				return
			}
			s.logger.Error("accept failed", "error", err)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	start := time.Now()
	req, leftover, err := readRequest(conn)
	if err != nil {
		s.logger.Debug("request", "error", err, "duration", time.Since(start))
		s.writeJSON(conn, 400, map[string]string{"error": "Bad request"})
		conn.Close()
		return
	}
	s.logger.Debug("request", "method", req.Method, "path", req.Path)

	switch {
	case req.Method == "POST" && req.Path == "/messages":
		s.handleMessages(conn, req)
	case req.Method == "GET" && req.Path == "/tim-agent":
		s.handleUpgrade(conn, req, leftover)
	default:
		s.writeJSON(conn, 404, map[string]string{"error": "Not found"})
		conn.Close()
	}
}

func (s *Server) handleMessages(conn net.Conn, req *httpRequest) {
	if len(req.Body) == 0 {
		s.writeJSON(conn, 400, map[string]string{"error": "Missing body"})
		conn.Close()
		return
	}

	var wire wireNotification
	if err := json.Unmarshal(req.Body, &wire); err != nil {
		s.writeJSON(conn, 400, map[string]string{"error": "Bad request"})
		conn.Close()
		return
	}

	if s.handlers.Notification != nil {
		s.handlers.Notification(model.Notification{
			Message:       wire.Message,
			WorkspacePath: wire.WorkspacePath,
			Terminal:      wire.Terminal,
		})
	}
	s.writeJSON(conn, 200, map[string]string{"status": "ok"})
	conn.Close()
}

func (s *Server) handleUpgrade(conn net.Conn, req *httpRequest, leftover []byte) {
	upgrade, hasUpgrade := req.header("Upgrade")
	key, hasKey := req.header("Sec-WebSocket-Key")
	if !hasUpgrade || !headerEqualFold(upgrade, "websocket") || !hasKey || key == "" {
		s.writeJSON(conn, 400, map[string]string{"error": "Bad request"})
		conn.Close()
		return
	}

	connID := uuid.NewString()
	c := wsconn.New(connID, conn, leftover, func(text string) {
		if s.handlers.WSMessage != nil {
			s.handlers.WSMessage(connID, text)
		}
	}, func() {
		s.unregister(connID)
		if s.handlers.WSDisconnected != nil {
			s.handlers.WSDisconnected(connID)
		}
	})

	s.mu.Lock()
	s.conns[connID] = c
	s.mu.Unlock()

	accept := wsframe.AcceptKey(key)
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := conn.Write([]byte(resp)); err != nil {
		s.unregister(connID)
		conn.Close()
		return
	}

	c.MarkOpen()
	if s.handlers.WSConnected != nil {
		s.handlers.WSConnected(connID)
	}
	c.ReadLoop()
}

func (s *Server) unregister(connID string) {
	s.mu.Lock()
	delete(s.conns, connID)
	s.mu.Unlock()
}

// Send delivers text to the agent behind connID — the transport side of
// the aggregator's outgoing path.
func (s *Server) Send(connID string, text string) error {
	s.mu.Lock()
	c, ok := s.conns[connID]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownConnection
	}
	return c.SendText(text)
}

func (s *Server) writeJSON(conn net.Conn, status int, body map[string]string) {
	data, _ := json.Marshal(body)
	statusText := httpStatusText(status)
	resp := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Type: application/json\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		status, statusText, len(data))
	conn.Write([]byte(resp))
	conn.Write(data)
}

func httpStatusText(status int) string {
	switch status {
	case 200:
		return "OK"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	default:
		return "Error"
	}
}
