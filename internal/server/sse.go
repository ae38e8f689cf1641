package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"

	"github.com/scythe504/werewolf-backend/internal"
	"github.com/scythe504/werewolf-backend/internal/game"
	"github.com/scythe504/werewolf-backend/internal/utils"
)

// StreamGame connects the client to a session and streams its updates as
// Server-Sent Events until the client goes away.
func (s *Server) StreamGame(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now().UnixMilli()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, startTime, errors.New("streaming unsupported"))
		return
	}

	session, err := s.registry.Get(mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, startTime, err)
		return
	}

	id, _ := utils.ResolveClientID(r)
	conn, err := session.Connect(id)
	if err != nil {
		s.writeError(w, startTime, err)
		return
	}
	defer session.Disconnect(id)

	entry := s.log.WithField("session", session.Name()).WithField("client", id.String())
	entry.Info("[StreamGame] stream opened")
	defer entry.Info("[StreamGame] stream closed")

	http.SetCookie(w, utils.ClientIDCookieFor(id, session.Name()))
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates := pumpUpdates(ctx, conn)

	var ping <-chan time.Time
	if s.pingInterval > 0 {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-ping:
			if _, err := fmt.Fprintf(w, ": ping - %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
				return
			}
			flusher.Flush()

		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, u); err != nil {
				entry.WithError(err).Warn("[StreamGame] write failed")
				return
			}
			flusher.Flush()
		}
	}
}

// pumpUpdates moves a connection's queued updates onto a channel so they can
// be selected on alongside keep-alive ticks. The channel closes when ctx ends.
func pumpUpdates(ctx context.Context, conn *game.Connection) <-chan internal.Update {
	out := make(chan internal.Update)
	go func() {
		defer close(out)
		for {
			u, err := conn.ReceiveNext(ctx)
			if err != nil {
				return
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func writeSSEEvent(w io.Writer, u internal.Update) error {
	data, err := json.Marshal(u.Data)
	if err != nil {
		return errors.Wrap(err, "marshal event data")
	}
	_, err = fmt.Fprintf(w, "event: %s\nretry: %d\ndata: %s\n\n", u.Event, u.Retry, data)
	return err
}
