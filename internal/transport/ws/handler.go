package ws

import (
	"net/http"

	"github.com/vedran77/pulse-inbox/internal/transport/http/middleware"
	"nhooyr.io/websocket"
)

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (WebSocket can't send headers).
// The handler blocks for the life of the connection.
func ServeWS(hub *Hub, counter UnreadCounter, jwtSecret string, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		actorID, err := middleware.ParseActorToken(tokenStr, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			hub.logger.Warn("ws: accept error", "err", err)
			return
		}

		ctx := r.Context()
		client := NewClient(hub, conn, actorID, counter)
		hub.Register(client)

		go client.WritePump(ctx)
		go client.ForwardCounts(ctx)
		client.ReadPump(ctx)
	}
}
