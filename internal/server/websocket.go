package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/scythe504/werewolf-backend/internal"
	"github.com/scythe504/werewolf-backend/internal/game"
	"github.com/scythe504/werewolf-backend/internal/utils"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient serializes writes; gorilla connections allow one concurrent writer.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) SafeWriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

func (c *wsClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// GameSocket is the WebSocket variant of StreamGame. Updates go out as JSON
// frames shaped like {"event", "data", "retry"}; inbound frames are posts.
func (s *Server) GameSocket(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now().UnixMilli()

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

	header := http.Header{}
	header.Add("Set-Cookie", utils.ClientIDCookieFor(id, session.Name()).String())
	ws, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		s.log.WithError(err).Warn("[GameSocket] upgrade failed")
		return
	}
	defer ws.Close()

	entry := s.log.WithField("session", session.Name()).WithField("client", id.String())
	entry.Info("[GameSocket] socket opened")
	defer entry.Info("[GameSocket] socket closed")

	client := &wsClient{conn: ws}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.writeUpdates(ctx, cancel, client, conn, entry)
	s.readPosts(ctx, client, session, id, entry)
}

// writeUpdates drains the connection's queue onto the socket.
func (s *Server) writeUpdates(ctx context.Context, cancel context.CancelFunc, client *wsClient, conn *game.Connection, entry *logrus.Entry) {
	defer cancel()
	// Unblocks the read loop once writing has stopped.
	defer client.conn.Close()

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
			if err := client.ping(); err != nil {
				return
			}
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := client.SafeWriteJSON(u); err != nil {
				entry.WithError(err).Warn("[GameSocket] write failed")
				return
			}
		}
	}
}

// readPosts applies inbound frames until the socket fails. Errors are
// reported back on the same socket only.
func (s *Server) readPosts(ctx context.Context, client *wsClient, session *game.Session, id internal.ClientID, entry *logrus.Entry) {
	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				entry.WithError(err).Warn("[GameSocket] read error")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		var post internal.Post
		if err := json.Unmarshal(raw, &post); err != nil {
			entry.WithError(err).Debug("[GameSocket] failed to parse post")
			_ = client.SafeWriteJSON(internal.Message[string]{Type: "error", Data: "malformed event"})
			continue
		}

		if err := session.HandlePost(id, post); err != nil {
			_ = client.SafeWriteJSON(internal.Message[string]{Type: "error", Data: err.Error()})
		}
	}
}
