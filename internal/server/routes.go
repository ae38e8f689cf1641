package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/scythe504/werewolf-backend/internal"
	"github.com/scythe504/werewolf-backend/internal/game"
	"github.com/scythe504/werewolf-backend/internal/utils"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	r.Use(s.corsMiddleware)
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)

	r.HandleFunc("/games", s.CreateGame).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/games", s.ListGames).Methods(http.MethodGet)
	r.HandleFunc("/games-available", s.GetGameToJoin).Methods(http.MethodGet)

	r.HandleFunc("/games/{name}", s.StreamGame).Methods(http.MethodGet)
	r.HandleFunc("/games/{name}", s.PostEvent).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/games/{name}/ws", s.GameSocket).Methods(http.MethodGet)
	r.HandleFunc("/games/{name}/json", s.GameJSON).Methods(http.MethodGet)

	return r
}

// CORS middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		// The client id travels in a cookie, which browsers only send with
		// credentials; that is not allowed with a wildcard origin.
		if s.allowedOrigin != "*" {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		// If it's a websocket upgrade, skip further CORS checks
		if strings.ToLower(r.Header.Get("Upgrade")) == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("[Server] request handled")
	})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health()
	status := http.StatusOK
	if health["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, time.Now().UnixMilli(), health)
}

func (s *Server) CreateGame(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now().UnixMilli()

	var req internal.CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, startTime, errors.Mark(errors.Wrap(err, "decode body"), game.ErrInvalidPayload))
		return
	}

	session, err := s.registry.Create(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, startTime, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, startTime, session.View())
}

func (s *Server) ListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, time.Now().UnixMilli(), internal.GameList{Games: s.registry.List()})
}

func (s *Server) GetGameToJoin(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now().UnixMilli()

	name, ok := s.registry.Joinable()
	if !ok {
		s.writeJSON(w, http.StatusNotFound, startTime, "No joinable games available")
		return
	}
	s.writeJSON(w, http.StatusOK, startTime, name)
}

// PostEvent applies {event, data} on behalf of the client named by the id
// cookie.
func (s *Server) PostEvent(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now().UnixMilli()

	session, err := s.registry.Get(mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, startTime, err)
		return
	}

	var post internal.Post
	if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
		s.writeError(w, startTime, errors.Mark(errors.Wrap(err, "decode body"), game.ErrInvalidPayload))
		return
	}

	// A fresh id is never connected, so HandlePost rejects it.
	id, _ := utils.ResolveClientID(r)
	if err := session.HandlePost(id, post); err != nil {
		s.writeError(w, startTime, err)
		return
	}
	s.writeJSON(w, http.StatusOK, startTime, "ok")
}

func (s *Server) GameJSON(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now().UnixMilli()

	session, err := s.registry.Get(mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, startTime, err)
		return
	}
	s.writeJSON(w, http.StatusOK, startTime, session.View())
}

// statusFor maps game errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrAlreadyExists), errors.Is(err, game.ErrAlreadyConnected):
		return http.StatusConflict
	case errors.Is(err, game.ErrNotConnected), errors.Is(err, game.ErrNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, game.ErrInvalidEvent), errors.Is(err, game.ErrInvalidPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, startTime int64, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("[Server] request failed")
		s.writeJSON(w, status, startTime, "Internal server error")
		return
	}
	s.writeJSON(w, status, startTime, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, startTime int64, data any) {
	endTime := time.Now().UnixMilli()
	resp := internal.Response{
		StatusCode:    status,
		RespStartTime: startTime,
		RespEndTime:   endTime,
		NetRespTime:   endTime - startTime,
		Data:          data,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.WithError(err).Warn("[Server] error encoding response")
	}
}
