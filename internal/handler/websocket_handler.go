// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"comm-debugger/internal/format"
	"comm-debugger/internal/model"
	"comm-debugger/internal/service"
	"comm-debugger/internal/utils"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsWriteWait  = 10 * time.Second
	wsSendQueue  = 256
	wsSendWait   = 10 * time.Second
)

// WebSocketHandler streams formatted events to WebSocket clients and accepts
// send commands from them.
type WebSocketHandler struct {
	upgrader       websocket.Upgrader
	connections    *ConnectionManager
	bridge         *EventBridge
	sessionService *service.SessionService
	logger         *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler and starts forwarding session events
func NewWebSocketHandler(sessionService *service.SessionService, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	connections := NewConnectionManager()
	handler := &WebSocketHandler{
		upgrader:       upgrader,
		connections:    connections,
		bridge:         NewEventBridge(sessionService, connections, logger),
		sessionService: sessionService,
		logger:         utils.NewServiceLogger(logger, "websocket-handler"),
	}

	handler.bridge.Start()

	return handler
}

// originChecker accepts requests without an Origin header, any origin when
// "*" is listed, and otherwise exact matches only.
func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed["*"] {
			return true
		}
		return allowed[strings.TrimRight(origin, "/")]
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.HandleEventConnection)
	router.GET("/stats", h.GetConnectionStats)
}

// HandleEventConnection streams formatted event lines
// @Summary Live event stream
// @Description Upgrade to a WebSocket that streams every event as a formatted line. Clients may send ping, set_options and send messages.
// @Tags WebSocket
// @Param hex query bool false "Append a hex dump line to transfers"
// @Param filter query string false "Only stream transfers containing this keyword"
// @Param encoding query string false "Payload text encoding" default(utf-8)
// @Success 101 "Switching protocols"
// @Failure 400 {object} utils.APIResponse "Invalid options"
// @Router /ws/events [get]
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	opts, ok := bindFormatOptions(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, wsSendQueue),
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}
	client.SetOptions(opts)

	if !h.connections.Register(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		conn.Close()
		return
	}

	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
		zap.Bool("hex", opts.HexMode),
		zap.String("filter", opts.FilterKeyword),
	)

	h.sendMessage(client, &WebSocketMessage{
		Type: "welcome",
		Data: map[string]interface{}{
			"client_id": client.ID,
			"options":   opts,
			"channels":  h.sessionService.Channels(),
			"stats":     h.sessionService.Stats(),
		},
		Timestamp: time.Now(),
	})

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// GetConnectionStats lists the connected WebSocket clients
// @Summary WebSocket connections
// @Description List the connected event stream clients and their display options
// @Tags WebSocket
// @Produce json
// @Success 200 {object} utils.APIResponse{data=ConnectionStats} "Connection statistics"
// @Router /ws/stats [get]
func (h *WebSocketHandler) GetConnectionStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Connection statistics", h.connections.GetStats())
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
		h.logger.Debug("Event WebSocket client disconnected", zap.String("client_id", client.ID))
	}()

	client.Connection.SetReadLimit(1 << 20)
	client.Connection.SetReadDeadline(time.Now().Add(wsPongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			break
		}

		var message clientMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "", "invalid message: "+err.Error())
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientMessage is a message received from a client. Data is decoded
// according to Type.
type clientMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *clientMessage) {
	switch message.Type {
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	case "set_options":
		h.handleSetOptions(client, message)
	case "send":
		h.handleSend(client, message)
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
		h.sendError(client, message.RequestID, "unknown message type: "+message.Type)
	}
}

// handleSetOptions replaces the display options applied to later events
func (h *WebSocketHandler) handleSetOptions(client *Client, message *clientMessage) {
	var opts format.Options
	if err := json.Unmarshal(message.Data, &opts); err != nil {
		h.sendError(client, message.RequestID, "invalid options: "+err.Error())
		return
	}
	if err := format.ValidateEncoding(opts.Encoding); err != nil {
		h.sendError(client, message.RequestID, err.Error())
		return
	}

	client.SetOptions(opts)
	h.sendMessage(client, &WebSocketMessage{
		Type:      "options_updated",
		Data:      opts,
		Timestamp: time.Now(),
		RequestID: message.RequestID,
	})
}

// wsSendCommand is the data of a "send" message
type wsSendCommand struct {
	Kind string `json:"kind"`
	SendChannelRequest
}

// handleSend sends a payload through the session
func (h *WebSocketHandler) handleSend(client *Client, message *clientMessage) {
	var cmd wsSendCommand
	if err := json.Unmarshal(message.Data, &cmd); err != nil {
		h.sendError(client, message.RequestID, "invalid send command: "+err.Error())
		return
	}

	kind, err := model.ParseTransportKind(cmd.Kind)
	if err != nil {
		h.sendError(client, message.RequestID, err.Error())
		return
	}

	data, err := decodePayload(cmd.SendChannelRequest)
	if err != nil {
		h.sendError(client, message.RequestID, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsSendWait)
	defer cancel()

	err = h.sessionService.Send(ctx, service.SendRequest{
		Kind:          kind,
		Data:          data,
		Peer:          cmd.Peer,
		RemoteAddress: cmd.RemoteAddress,
		RemotePort:    cmd.RemotePort,
	})

	result := map[string]interface{}{
		"kind":    kind,
		"bytes":   len(data),
		"success": err == nil,
	}
	if err != nil {
		result["error"] = err.Error()
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      "send_result",
		Data:      result,
		Timestamp: time.Now(),
		RequestID: message.RequestID,
	})
}

// sendMessage queues a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	if !h.connections.Deliver(client, messageBytes) {
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, requestID, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type: "error",
		Data: map[string]interface{}{
			"error": errorMsg,
		},
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// Close stops forwarding events and disconnects every client
func (h *WebSocketHandler) Close() {
	h.bridge.Stop()
	h.connections.CloseAll()
	h.logger.Info("WebSocket connections closed")
}
