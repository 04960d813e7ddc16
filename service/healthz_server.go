package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// httpServer serves a handler on a listener opened by Start
type httpServer struct {
	name     string
	log      log.Logger
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

func (s *httpServer) start(addr string, handler http.Handler) error {
	if s.server != nil {
		return fmt.Errorf("%s server already started", s.name)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server stopped unexpectedly", "server", s.name, "err", err)
		}
	}()
	return nil
}

// Addr returns the address the server listens on, or "" before Start
func (s *httpServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *httpServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	<-s.done
	return err
}

// HealthzServer answers liveness checks on /healthz
type HealthzServer struct {
	httpServer
}

func NewHealthzServer(logger log.Logger) *HealthzServer {
	return &HealthzServer{httpServer{name: "healthz", log: logger}}
}

// Start listens on addr and serves in the background
func (h *HealthzServer) Start(addr string) error {
	hdlr := mux.NewRouter()
	hdlr.HandleFunc("/healthz", h.Handle).Methods(http.MethodGet, http.MethodHead)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return h.start(addr, c.Handler(hdlr))
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	h.log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}
