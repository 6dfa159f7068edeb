package websocket

import (
	"net/http"
	"time"

	ws "github.com/coder/websocket"
)

// Serve upgrades the request and streams the group's events to it until
// the connection closes. Callers must have checked membership already.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, groupID, accountID int64) {
	// The server's read and write timeouts would otherwise cut the stream.
	rc := http.NewResponseController(w)
	rc.SetReadDeadline(time.Time{})
	rc.SetWriteDeadline(time.Time{})

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true, // mobile clients send no stable Origin
	})
	if err != nil {
		h.logger.Warn("websocket accept", "error", err)
		return
	}

	client := NewClient(h, conn, groupID, accountID)
	client.Run(r.Context())
}
