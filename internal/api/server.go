package api

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/xid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/zde37/chordring/internal/chord"
	"github.com/zde37/chordring/pkg"
)

// DefaultWalkLimit bounds the ring walk behind GET /api/v1/ring.
const DefaultWalkLimit = 1024

// Server represents the HTTP status API of a node.
type Server struct {
	node       *chord.ChordNode
	httpServer *http.Server
	listener   net.Listener
	wsHub      *WebSocketHub
	mux        *runtime.ServeMux
	marshaler  runtime.Marshaler
	logger     *pkg.Logger
	walkLimit  int
	mu         sync.Mutex
}

// LookupResponse is the body of GET /api/v1/lookup/{id}.
type LookupResponse struct {
	ID      string             `json:"id"`
	Owner   *chord.AddressView `json:"owner"`
	TraceID string             `json:"trace_id"`
}

// RingResponse is the body of GET /api/v1/ring.
type RingResponse struct {
	Members  []*chord.AddressView `json:"members"`
	Complete bool                 `json:"complete"`
	Error    string               `json:"error,omitempty"`
}

// NewServer creates the HTTP API for node.
func NewServer(node *chord.ChordNode, logger *pkg.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("node cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	marshaler := &runtime.JSONBuiltin{}
	logger = logger.WithFields(pkg.Fields{"component": "http_api"})

	s := &Server{
		node:      node,
		wsHub:     NewWebSocketHub(marshaler, logger),
		marshaler: marshaler,
		logger:    logger,
		walkLimit: DefaultWalkLimit,
	}

	s.mux = runtime.NewServeMux(runtime.WithMarshalerOption(runtime.MIMEWildcard, marshaler))
	routes := []struct {
		pattern string
		handler runtime.HandlerFunc
	}{
		{"/api/v1/node", s.nodeHandler},
		{"/api/v1/lookup/{id}", s.lookupHandler},
		{"/api/v1/ring", s.ringHandler},
	}
	for _, rt := range routes {
		if err := s.mux.HandlePath(http.MethodGet, rt.pattern, rt.handler); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", rt.pattern, err)
		}
	}

	return s, nil
}

// Hub returns the WebSocket hub streaming the node's ring updates.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Handler returns the HTTP routes of the API.
func (s *Server) Handler() http.Handler {
	httpMux := http.NewServeMux()

	// Register gateway routes
	httpMux.Handle("/api/", corsMiddleware(s.mux))

	// WebSocket endpoint for live updates
	httpMux.HandleFunc("/api/ws", s.wsHub.HandleWebSocket)

	// Health check endpoint
	httpMux.HandleFunc("/health", s.healthHandler)

	return httpMux
}

// Start starts the HTTP server on port (0 picks a free one) and subscribes
// the WebSocket hub to the node's updates.
func (s *Server) Start(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.wsHub.Start()
	s.node.SetBroadcaster(s.wsHub)

	httpServer := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpServer
	s.mu.Unlock()

	s.logger.Info().
		Str("address", listener.Addr().String()).
		Msg("Starting HTTP API server")

	// Start server in goroutine
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Addr returns the address the server listens on, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop() error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	if httpServer == nil {
		return nil
	}

	s.logger.Info().Msg("Stopping HTTP API server")

	s.node.SetBroadcaster(nil)
	s.wsHub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info().Msg("HTTP API server stopped")
	return nil
}

// nodeHandler serves the node's routing state.
func (s *Server) nodeHandler(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	s.writeJSON(w, r, s.node.Snapshot())
}

// lookupHandler resolves the owner of an identifier given in decimal or 0x hex.
func (s *Server) lookupHandler(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id, err := parseID(params["id"])
	if err != nil {
		s.writeError(w, r, status.Error(codes.InvalidArgument, err.Error()))
		return
	}
	if !s.node.Space().IsValidID(id) {
		s.writeError(w, r, status.Errorf(codes.InvalidArgument, "id %s outside a %d-bit ring", id, s.node.Space().Bits()))
		return
	}

	traceID := xid.New().String()
	ctx := pkg.ContextWithTraceID(r.Context(), traceID)

	owner, err := s.node.FindSuccessor(ctx, id)
	if err != nil {
		s.logger.WithContext(ctx).Warn().Err(err).Str("id", id.String()).Msg("Lookup failed")
		s.writeError(w, r, lookupStatus(err))
		return
	}

	s.writeJSON(w, r, &LookupResponse{
		ID:      id.String(),
		Owner:   chord.ViewOf(owner),
		TraceID: traceID,
	})
}

// ringHandler walks the ring from this node. A walk that does not come back
// around is still reported, with Complete unset.
func (s *Server) ringHandler(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	view, err := s.node.WalkRing(r.Context(), s.walkLimit)

	resp := &RingResponse{Complete: err == nil}
	if view != nil {
		for _, m := range view.Members() {
			resp.Members = append(resp.Members, chord.ViewOf(m))
		}
	}
	if err != nil {
		resp.Error = err.Error()
	}

	s.writeJSON(w, r, resp)
}

// healthHandler handles health check requests.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	data, err := s.marshaler.Marshal(v)
	if err != nil {
		s.writeError(w, r, status.Error(codes.Internal, err.Error()))
		return
	}
	w.Header().Set("Content-Type", s.marshaler.ContentType(v))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write response")
	}
}

// writeError renders a gRPC status the way the gateway does, mapping the
// code to an HTTP status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	runtime.HTTPError(r.Context(), s.mux, s.marshaler, w, r, err)
}

// lookupStatus maps lookup failures to gRPC codes for the gateway error handler.
func lookupStatus(err error) error {
	switch {
	case errors.Is(err, pkg.ErrHopLimitExceeded):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, pkg.ErrNodeUnreachable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// parseID accepts a decimal identifier or a 0x-prefixed hex one.
func parseID(s string) (*big.Int, error) {
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	if digits == "" {
		return nil, fmt.Errorf("empty id")
	}

	id, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}
