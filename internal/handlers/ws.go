package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/models"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/room"
	"github.com/asmortongpt/meeting-minutes-app-sub001/internal/session"
)

const (
	handshakeTimeout = 10 * time.Second
	maxFrameSize     = 512 * 1024 // speech chunks dominate frame size
	writeTimeout     = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin enforcement happens at the product's edge; the core accepts
	// any origin the router let through.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTransport adapts a gorilla connection to the session Transport. The
// session's writer pump is the only JSON writer; the mutex covers the
// close-frame race on shutdown.
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (t *wsTransport) WriteJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.mu.Unlock()
	return t.conn.Close()
}

// WS handles the persistent duplex endpoint. The first frame must be a
// join carrying the auth context; after a successful handshake the
// connection's read loop feeds the copilot until disconnect.
func (h *Handler) WS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	conn.SetReadLimit(maxFrameSize)
	transport := &wsTransport{conn: conn}

	sess, ok := h.handshake(r, conn, transport)
	if !ok {
		_ = transport.Close()
		return
	}

	h.copilot.AnnounceJoin(r.Context(), sess)

	// Read loop. The janitor or slow-consumer eviction closes the
	// transport, which ends this loop through the read error.
	for {
		var msg models.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		h.copilot.Handle(r.Context(), sess, msg)
		if msg.Kind == models.ClientLeave {
			return // Handle already detached the session
		}
	}

	h.manager.Detach(sess.ID(), "disconnect")
}

// handshake reads and validates the join frame and attaches the session.
func (h *Handler) handshake(r *http.Request, conn *websocket.Conn, transport *wsTransport) (*session.Session, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var msg models.ClientMessage
	if err := conn.ReadJSON(&msg); err != nil {
		return nil, false
	}
	if msg.Kind != models.ClientJoin || msg.RoomID == "" {
		h.rejectWS(transport, "bad_handshake", "first frame must be a join with a room id")
		return nil, false
	}

	var join models.JoinPayload
	if err := json.Unmarshal(msg.Payload, &join); err != nil || join.UserID == "" {
		h.rejectWS(transport, "bad_handshake", "join payload requires a user id")
		return nil, false
	}

	sess, err := h.manager.Attach(r.Context(), session.AttachRequest{
		UserID:    join.UserID,
		RoomID:    msg.RoomID,
		Token:     join.Token,
		Passcode:  join.Passcode,
		LastSeq:   msg.LastSeq,
		Transport: transport,
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUnauthorized):
			h.rejectWS(transport, "unauthorized", "handshake rejected")
		case errors.Is(err, room.ErrRoomFull):
			h.rejectWS(transport, "room_full", "room is at capacity")
		default:
			h.rejectWS(transport, "internal", "could not attach session")
		}
		return nil, false
	}

	return sess, true
}

// rejectWS sends a terminal error frame on a connection with no session.
func (h *Handler) rejectWS(transport *wsTransport, code, message string) {
	payload, _ := json.Marshal(models.ErrorPayload{Code: code, Message: message})
	_ = transport.WriteJSON(models.ServerMessage{Kind: models.ServerError, Payload: payload})
}
