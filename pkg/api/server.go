package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/cbodonnell/roomsync/pkg/api/handlers"
	"github.com/cbodonnell/roomsync/pkg/api/middleware"
	"github.com/cbodonnell/roomsync/pkg/log"
	"github.com/gorilla/mux"
)

// APIServer serves a read-only view of the world and the connected clients.
type APIServer struct {
	address  string
	server   *http.Server
	listener net.Listener
}

type NewAPIServerOptions struct {
	Address string
	World   handlers.World
	Clients handlers.Clients
}

// NewAPIServer creates a new http.Server for handling admin API requests
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	return &APIServer{
		address: opts.Address,
		server: &http.Server{
			Handler: NewRouter(opts.World, opts.Clients),
		},
	}
}

// NewRouter builds the admin API routes.
func NewRouter(world handlers.World, clients handlers.Clients) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.NewLoggingMiddleware(), middleware.NewCORSMiddleware())
	r.HandleFunc("/healthz", handlers.HandleHealthz(world, clients)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/game", handlers.HandleGetGame(world)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/rooms/{roomKey}", handlers.HandleGetRoom(world)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/clients", handlers.HandleListClients(clients)).Methods(http.MethodGet, http.MethodOptions)
	return r
}

func (s *APIServer) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on API address %s: %v", s.address, err)
	}
	s.listener = listener
	return nil
}

func (s *APIServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start serves the API until ctx is cancelled.
func (s *APIServer) Start(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	stop := context.AfterFunc(ctx, func() {
		s.server.Shutdown(context.Background())
	})
	defer stop()

	log.Info("API server listening on %s", s.listener.Addr().String())
	if err := s.server.Serve(s.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return nil
		}
		return fmt.Errorf("API server error: %v", err)
	}
	return nil
}
