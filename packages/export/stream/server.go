package stream

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Path is where the hub is mounted.
const Path = "/ws"

// Server exposes a hub over HTTP.
type Server struct {
	hub    *Hub
	ln     net.Listener
	server *http.Server
	errc   chan error
}

// Listen starts serving hub on addr.
func Listen(addr string, hub *Hub) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(Path, hub)

	s := &Server{
		hub: hub,
		ln:  ln,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		errc: make(chan error, 1),
	}

	go func() {
		err := s.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.errc <- err
	}()

	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// URL returns the websocket URL of the hub.
func (s *Server) URL() string {
	return "ws://" + s.Addr() + Path
}

// Close disconnects the clients and stops the server.
func (s *Server) Close() error {
	_ = s.hub.Close()
	if err := s.server.Close(); err != nil {
		return err
	}
	return <-s.errc
}
