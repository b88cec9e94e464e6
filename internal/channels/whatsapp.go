package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dayuer/charbot-go/internal/bus"
	"github.com/dayuer/charbot-go/internal/session"
)

const (
	defaultBridgeURL  = "ws://localhost:3001"
	reconnectMin      = 5 * time.Second
	reconnectMax      = 60 * time.Second
	listGroupsTimeout = 10 * time.Second
)

// ErrNotConnected is returned when the bridge socket is down.
var ErrNotConnected = errors.New("whatsapp bridge not connected")

// bridgeFrame is the union of every JSON frame the bridge sends.
//
// Protocol:
//
//	bridge → charbot: {"type": "message", "id", "chatId", "sender", "fromMe", "content", "timestamp", "isGroup"}
//	bridge → charbot: {"type": "status", "status": "connected"|"disconnected"}
//	bridge → charbot: {"type": "qr"} / {"type": "error", "error": "..."}
//	bridge → charbot: {"type": "groups", "requestId", "groups": [{"id", "name", "size"}]}
//	charbot → bridge: {"type": "auth", "token"}
//	charbot → bridge: {"type": "send", "id", "to", "text"}
//	charbot → bridge: {"type": "list_groups", "requestId"}
type bridgeFrame struct {
	Type        string        `json:"type"`
	ID          string        `json:"id,omitempty"`
	ChatID      string        `json:"chatId,omitempty"`
	Sender      string        `json:"sender,omitempty"`
	Participant string        `json:"participant,omitempty"`
	Pn          string        `json:"pn,omitempty"`
	FromMe      bool          `json:"fromMe,omitempty"`
	Content     string        `json:"content,omitempty"`
	Timestamp   int64         `json:"timestamp,omitempty"`
	IsGroup     bool          `json:"isGroup,omitempty"`
	Status      string        `json:"status,omitempty"`
	Error       string        `json:"error,omitempty"`
	RequestID   string        `json:"requestId,omitempty"`
	Groups      []bridgeGroup `json:"groups,omitempty"`
}

type bridgeGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int    `json:"size"`
}

type outboundFrame struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	To        string `json:"to,omitempty"`
	Text      string `json:"text,omitempty"`
	Token     string `json:"token,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// wsConn wraps a websocket.Conn with a write mutex for thread safety.
// gorilla/websocket does NOT support concurrent writes.
type wsConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *wsConn) WriteJSONSafe(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteJSON(v)
}

func (c *wsConn) WriteCloseSafe(code int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}

// WhatsAppChannel talks to a WhatsApp Web bridge over a WebSocket.
type WhatsAppChannel struct {
	BaseChannel
	BridgeURL   string
	BridgeToken string

	dialer    *websocket.Dialer
	connected atomic.Bool
	cancelFn  context.CancelFunc

	mu      sync.Mutex
	conn    *wsConn
	pending map[string]chan []bus.Group
}

// NewWhatsAppChannel creates a WhatsAppChannel.
func NewWhatsAppChannel(bridgeURL, bridgeToken string, allowFrom []string, msgBus *bus.MessageBus, logger *zap.Logger) *WhatsAppChannel {
	if bridgeURL == "" {
		bridgeURL = defaultBridgeURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhatsAppChannel{
		BaseChannel: BaseChannel{
			ChannelName: "whatsapp",
			Bus:         msgBus,
			AllowFrom:   allowFrom,
			Logger:      logger.Named("whatsapp"),
		},
		BridgeURL:   bridgeURL,
		BridgeToken: bridgeToken,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pending:     make(map[string]chan []bus.Group),
	}
}

func (w *WhatsAppChannel) Name() string { return "whatsapp" }

// IsConnected reports whether the bridge said the WhatsApp session is up.
func (w *WhatsAppChannel) IsConnected() bool { return w.connected.Load() }

// Start connects to the bridge and keeps reconnecting until ctx is cancelled.
func (w *WhatsAppChannel) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancelFn = cancel
	w.mu.Unlock()
	defer cancel()

	w.setRunning(true)
	defer w.setRunning(false)

	backoff := reconnectMin
	for {
		started := time.Now()
		err := w.serve(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > reconnectMax {
			backoff = reconnectMin
		}
		w.log().Warn("bridge connection lost, reconnecting",
			zap.String("url", w.BridgeURL), zap.Duration("in", backoff), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, reconnectMax)
	}
}

// serve runs one connection until it fails or ctx ends.
func (w *WhatsAppChannel) serve(ctx context.Context) error {
	raw, _, err := w.dialer.DialContext(ctx, w.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial bridge: %w", err)
	}
	conn := &wsConn{Conn: raw}
	w.log().Info("connected to bridge", zap.String("url", w.BridgeURL))

	if w.BridgeToken != "" {
		if err := conn.WriteJSONSafe(outboundFrame{Type: "auth", Token: w.BridgeToken}); err != nil {
			raw.Close()
			return fmt.Errorf("auth: %w", err)
		}
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteCloseSafe(websocket.CloseNormalClosure, "shutdown")
			raw.Close()
		case <-done:
		}
	}()

	defer func() {
		raw.Close()
		w.connected.Store(false)
		w.mu.Lock()
		w.conn = nil
		for id, ch := range w.pending {
			close(ch)
			delete(w.pending, id)
		}
		w.mu.Unlock()
	}()

	for {
		_, message, err := raw.ReadMessage()
		if err != nil {
			return err
		}
		w.ProcessBridgeMessage(ctx, message)
	}
}

// Stop stops the WhatsApp channel.
func (w *WhatsAppChannel) Stop() error {
	w.mu.Lock()
	cancel := w.cancelFn
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (w *WhatsAppChannel) write(frame outboundFrame) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteJSONSafe(frame)
}

// Send sends a message through the WhatsApp bridge.
func (w *WhatsAppChannel) Send(msg bus.OutboundMessage) error {
	return w.write(outboundFrame{Type: "send", ID: uuid.NewString(), To: msg.ChatID, Text: msg.Content})
}

// ListGroups asks the bridge for the account's groups.
func (w *WhatsAppChannel) ListGroups(ctx context.Context) ([]bus.Group, error) {
	reqID := uuid.NewString()
	ch := make(chan []bus.Group, 1)

	w.mu.Lock()
	w.pending[reqID] = ch
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.pending, reqID)
		w.mu.Unlock()
	}()

	if err := w.write(outboundFrame{Type: "list_groups", RequestID: reqID}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, listGroupsTimeout)
	defer cancel()
	select {
	case groups, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		return groups, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("list groups: %w", ctx.Err())
	}
}

// ProcessBridgeMessage handles one frame from the bridge.
func (w *WhatsAppChannel) ProcessBridgeMessage(ctx context.Context, raw []byte) {
	var f bridgeFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		w.log().Debug("ignoring malformed frame", zap.Error(err))
		return
	}

	switch f.Type {
	case "message":
		w.HandleMessage(ctx, w.toInbound(f))

	case "status":
		w.connected.Store(f.Status == "connected")
		w.log().Info("whatsapp status", zap.String("status", f.Status))

	case "qr":
		w.log().Info("scan the QR code in the bridge terminal to connect WhatsApp")

	case "error":
		w.log().Error("bridge error", zap.String("error", f.Error))

	case "groups":
		groups := make([]bus.Group, 0, len(f.Groups))
		for _, g := range f.Groups {
			groups = append(groups, bus.Group{ID: g.ID, Name: g.Name, Members: g.Size})
		}
		w.mu.Lock()
		ch, ok := w.pending[f.RequestID]
		if ok {
			delete(w.pending, f.RequestID)
		}
		w.mu.Unlock()
		if ok {
			ch <- groups
		}
	}
}

func (w *WhatsAppChannel) toInbound(f bridgeFrame) bus.InboundMessage {
	chatID := f.ChatID
	if chatID == "" {
		chatID = f.Sender
	}
	userID := f.Participant
	if userID == "" {
		userID = f.Pn
	}
	if userID == "" {
		userID = f.Sender
	}
	id := f.ID
	if id == "" {
		id = uuid.NewString()
	}
	return bus.InboundMessage{
		ID:        id,
		SenderID:  session.StripIdentity(userID),
		ChatID:    chatID,
		FromSelf:  f.FromMe,
		IsGroup:   f.IsGroup,
		Content:   f.Content,
		Timestamp: bridgeTime(f.Timestamp),
	}
}

// bridgeTime accepts unix seconds or milliseconds.
func bridgeTime(ts int64) time.Time {
	switch {
	case ts <= 0:
		return time.Time{}
	case ts > 1e12:
		return time.UnixMilli(ts)
	default:
		return time.Unix(ts, 0)
	}
}
