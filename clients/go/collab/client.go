// Package collab provides a client for the meeting collaboration protocol.
package collab

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a collaboration server client. HTTP endpoints work without a
// connection; the WebSocket session is established by Join.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a new collaboration client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Message is one protocol frame in either direction.
type Message struct {
	Kind    string          `json:"kind"`
	RoomID  string          `json:"room_id,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	LastSeq uint64          `json:"last_seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinOptions carries the handshake context.
type JoinOptions struct {
	RoomID   string
	UserID   string
	Token    string
	Passcode string
	LastSeq  uint64 // resume cursor after a reconnect
}

// Welcome is the server's handshake reply.
type Welcome struct {
	SessionID string `json:"session_id"`
	Seq       uint64 `json:"seq"`
	Replayed  int    `json:"replayed,omitempty"`
	Resync    bool   `json:"resync,omitempty"`
}

// Join dials the WebSocket endpoint and performs the join handshake. On
// success the returned Welcome carries the session ID and room sequence;
// call Read to consume subsequent frames.
func (c *Client) Join(opts JoinOptions) (*Welcome, error) {
	wsURL, err := url.Parse(c.BaseURL + "/ws")
	if err != nil {
		return nil, err
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]string{
		"user_id":  opts.UserID,
		"token":    opts.Token,
		"passcode": opts.Passcode,
	})
	join := Message{Kind: "join", RoomID: opts.RoomID, LastSeq: opts.LastSeq, Payload: payload}
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, err
	}

	var reply Message
	_ = conn.SetReadDeadline(time.Now().Add(15 * time.Second))
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	switch reply.Kind {
	case "welcome", "resync":
	case "error":
		conn.Close()
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		json.Unmarshal(reply.Payload, &e)
		return nil, fmt.Errorf("join rejected: %s: %s", e.Code, e.Message)
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected handshake frame: %s", reply.Kind)
	}

	var welcome Welcome
	if err := json.Unmarshal(reply.Payload, &welcome); err != nil {
		conn.Close()
		return nil, err
	}
	welcome.Resync = reply.Kind == "resync" || welcome.Resync

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	return &welcome, nil
}

// Read blocks until the next server frame arrives.
func (c *Client) Read() (*Message, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// send writes one frame to the server.
func (c *Client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

// Heartbeat sends one heartbeat frame. Call on the server's advertised
// cadence to stay attached.
func (c *Client) Heartbeat() error {
	return c.send(Message{Kind: "heartbeat"})
}

// Edit sends a note edit.
func (c *Client) Edit(noteID, op string, pos int, text string, version int64) error {
	payload, _ := json.Marshal(map[string]any{
		"note_id": noteID,
		"op":      op,
		"pos":     pos,
		"text":    text,
		"version": version,
	})
	return c.send(Message{Kind: "edit", Payload: payload})
}

// SetPresence updates this session's presence state (idle, typing, speaking).
func (c *Client) SetPresence(state string) error {
	payload, _ := json.Marshal(map[string]string{"state": state})
	return c.send(Message{Kind: "presence", Payload: payload})
}

// SendSpeechChunk submits one base64 audio segment for transcription.
func (c *Client) SendSpeechChunk(index int64, audio string, final bool) error {
	payload, _ := json.Marshal(map[string]any{
		"chunk_index": index,
		"audio":       audio,
		"final":       final,
	})
	return c.send(Message{Kind: "speech-chunk", Payload: payload})
}

// Leave sends a leave frame and closes the connection.
func (c *Client) Leave() error {
	_ = c.send(Message{Kind: "leave"})
	return c.Close()
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// doRequest performs an HTTP request against the server's plain endpoints.
func (c *Client) doRequest(path string, out any) error {
	resp, err := c.HTTPClient.Get(c.BaseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(body, &errResp)
		return fmt.Errorf("server error %d: %s", resp.StatusCode, errResp.Error)
	}

	return json.Unmarshal(body, out)
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Instance  string                 `json:"instance,omitempty"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest("/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProviderStats reports one AI provider's circuit state.
type ProviderStats struct {
	Circuit     string `json:"circuit"`
	Failures    int    `json:"consecutive_failures"`
	LastFailure string `json:"last_failure,omitempty"`
}

// StatsResponse is the response from the stats endpoint.
type StatsResponse struct {
	Rooms       int                      `json:"rooms"`
	Sessions    int                      `json:"sessions"`
	Providers   map[string]ProviderStats `json:"providers"`
	GeneratedAt string                   `json:"generated_at"`
}

// Stats fetches a live server snapshot.
func (c *Client) Stats() (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.doRequest("/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
