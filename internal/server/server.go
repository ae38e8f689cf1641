package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scythe504/werewolf-backend/internal/config"
	"github.com/scythe504/werewolf-backend/internal/database"
	"github.com/scythe504/werewolf-backend/internal/game"
)

type Server struct {
	port          int
	allowedOrigin string
	pingInterval  time.Duration

	registry *game.Registry
	db       database.Service
	log      *logrus.Logger
}

func New(cfg config.Config, registry *game.Registry, db database.Service, log *logrus.Logger) *Server {
	return &Server{
		port:          cfg.Port,
		allowedOrigin: cfg.AllowedOrigin,
		pingInterval:  cfg.Session.PingInterval,
		registry:      registry,
		db:            db,
		log:           log,
	}
}

// NewServer returns the HTTP server. There is no write timeout: game streams
// stay open for as long as the client is connected.
func NewServer(cfg config.Config, registry *game.Registry, db database.Service, log *logrus.Logger) *http.Server {
	s := New(cfg, registry, db, log)

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.RegisterRoutes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
