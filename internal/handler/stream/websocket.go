package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	chatsvc "github.com/zhouzirui/medrag-chat/internal/service/chat"
)

const writeTimeout = 10 * time.Second

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type sendCommand struct {
	Text string `json:"text"`
}

type sessionCommand struct {
	SessionID string `json:"sessionId"`
}

type referencesCommand struct {
	MessageID string `json:"messageId"`
}

// wsConn serialises writes; gorilla allows a single concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// closeGoingAway tells the client the server is leaving, then drops the
// connection so a blocked read returns.
func (c *wsConn) closeGoingAway() {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	_ = c.conn.Close()
}

func (c *wsConn) send(msgType string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(outgoingMessage{Type: msgType, Data: data, Timestamp: time.Now().Unix()})
}

// handleWebSocket 处理WebSocket连接：推送控制器事件，并接受与 REST 相同的指令。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn}
	events, unsubscribe := h.broker.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	if err := ws.send("snapshot", h.ctrl.Snapshot()); err != nil {
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.pingLoop(ctx, conn)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		h.forwardEvents(ctx, ws, events)
	}()

	h.logger.Debug("websocket connected", zap.String("remote", r.RemoteAddr))
	h.readLoop(ctx, ws)
	cancel()
	wg.Wait()
	h.logger.Debug("websocket closed", zap.String("remote", r.RemoteAddr))
}

func (h *Handler) readLoop(ctx context.Context, ws *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var msg inboundMessage
		if err := ws.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		_ = ws.conn.SetReadDeadline(time.Now().Add(h.readTimeout))

		h.handleMessage(ws, &msg)
	}
}

func (h *Handler) forwardEvents(ctx context.Context, ws *wsConn, events <-chan chatsvc.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				ws.closeGoingAway()
				return
			}
			if err := ws.send("event", ev); err != nil {
				// Unblock ReadJSON so the read loop observes the failure.
				_ = ws.conn.Close()
				return
			}
		}
	}
}

func (h *Handler) handleMessage(ws *wsConn, msg *inboundMessage) {
	switch msg.Type {
	case "send":
		var cmd sendCommand
		if !h.decode(ws, msg, &cmd) {
			return
		}
		h.reply(ws, map[string]any{"accepted": h.ctrl.Send(cmd.Text)})
	case "new":
		h.ctrl.NewSession()
		h.reply(ws, h.ctrl.Snapshot())
	case "load":
		var cmd sessionCommand
		if !h.decode(ws, msg, &cmd) {
			return
		}
		h.reply(ws, map[string]any{"loaded": h.ctrl.LoadSession(cmd.SessionID)})
	case "delete":
		var cmd sessionCommand
		if !h.decode(ws, msg, &cmd) {
			return
		}
		h.ctrl.DeleteSession(cmd.SessionID)
		h.reply(ws, h.ctrl.Snapshot())
	case "references":
		var cmd referencesCommand
		if !h.decode(ws, msg, &cmd) {
			return
		}
		expanded, ok := h.ctrl.ToggleReferences(cmd.MessageID)
		h.reply(ws, map[string]any{"expanded": expanded, "ok": ok})
	case "snapshot":
		h.reply(ws, h.ctrl.Snapshot())
	default:
		h.sendError(ws, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) decode(ws *wsConn, msg *inboundMessage, out interface{}) bool {
	if len(msg.Data) == 0 {
		h.sendError(ws, msg.Type+": data is required")
		return false
	}
	if err := json.Unmarshal(msg.Data, out); err != nil {
		h.sendError(ws, msg.Type+": invalid data")
		return false
	}
	return true
}

func (h *Handler) reply(ws *wsConn, data interface{}) {
	if err := ws.send("result", data); err != nil {
		h.logger.Debug("write result failed", zap.Error(err))
	}
}

func (h *Handler) sendError(ws *wsConn, message string) {
	if err := ws.send("error", map[string]string{"message": message}); err != nil {
		h.logger.Debug("write error failed", zap.Error(err))
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
