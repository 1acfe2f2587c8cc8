package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/libreone/libreone-server/internal/model"
)

var _ model.Server = (*HTTPServer)(nil)

// HTTPServer runs the API behind a pluggable security layer.
type HTTPServer struct {
	srv  *http.Server
	addr string
}

func NewHTTPServer(handler http.Handler, addr string) *HTTPServer {
	return &HTTPServer{
		srv:  &http.Server{Handler: handler},
		addr: addr,
	}
}

// Start blocks until the server stops. A clean shutdown is not an error.
func (s *HTTPServer) Start(securityLayer model.SecurityLayer) error {
	listener, err := securityLayer.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *HTTPServer) Address() string {
	return s.addr
}
