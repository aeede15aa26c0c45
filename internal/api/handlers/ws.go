package handlers

import (
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/waveform-labs/melodex/internal/domain"
	"github.com/waveform-labs/melodex/internal/search"
	"github.com/waveform-labs/melodex/internal/session"
)

// WSHandler serves the live channel: one websocket per client, registered
// as a connection with the session manager for push-event routing.
type WSHandler struct {
	manager  *session.Manager
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(manager *session.Manager) *WSHandler {
	return &WSHandler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and pumps client events into the session
// manager until the transport closes.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	hint := hintFromQuery(r)
	transport := newWSTransport(ws)
	conn := h.manager.RegisterConnection(uuid.NewString(), hint, transport)
	defer h.manager.Disconnect(conn.ID)

	for {
		var ev session.ClientEvent
		if err := ws.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("connection %s: read: %v", conn.ID, err)
			}
			return
		}
		if err := h.manager.RouteClientEvent(conn.ID, ev); err != nil {
			// Routing failures go back on the same channel instead of
			// tearing the transport down.
			transport.Push(search.Event{Type: search.EventError, Message: err.Error()})
		}
	}
}

func hintFromQuery(r *http.Request) domain.UserHint {
	q := r.URL.Query()
	return domain.UserHint{
		UserID: q.Get("user_id"),
		Genres: splitCSV(q.Get("genres")),
		Moods:  splitCSV(q.Get("moods")),
	}
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// wsTransport adapts one websocket connection to the session.Transport
// interface. Writes are serialized; gorilla/websocket does not allow
// concurrent writers.
type wsTransport struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newWSTransport(ws *websocket.Conn) *wsTransport {
	return &wsTransport{ws: ws}
}

// Push implements session.Transport.
func (t *wsTransport) Push(event search.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ws.WriteJSON(event)
}
