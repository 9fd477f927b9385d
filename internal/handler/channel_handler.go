// internal/handler/channel_handler.go
package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"comm-debugger/internal/format"
	"comm-debugger/internal/model"
	"comm-debugger/internal/service"
	"comm-debugger/internal/utils"
)

// ChannelHandler handles channel lifecycle and send requests
type ChannelHandler struct {
	sessionService *service.SessionService
	logger         *utils.ServiceLogger
}

// NewChannelHandler creates a new channel handler
func NewChannelHandler(sessionService *service.SessionService, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{
		sessionService: sessionService,
		logger:         utils.NewServiceLogger(logger, "channel-handler"),
	}
}

// SendChannelRequest is the body of a send request. Data is text encoded
// with Encoding, or hex digits when Hex is set.
type SendChannelRequest struct {
	Data          string `json:"data" binding:"required"`
	Hex           bool   `json:"hex"`
	Encoding      string `json:"encoding"`
	Peer          string `json:"peer"`
	RemoteAddress string `json:"remote_address"`
	RemotePort    int    `json:"remote_port"`
}

// ReceiverRequest is the body of a UDP receiver start request
type ReceiverRequest struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// ListChannels lists the active channels
// @Summary List channels
// @Description Get the active channel of every transport kind
// @Tags Channels
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]service.ChannelInfo} "Channels retrieved"
// @Router /channels [get]
func (h *ChannelHandler) ListChannels(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Channels retrieved", h.sessionService.Channels())
}

// GetChannel returns the active channel of one kind
// @Summary Get channel
// @Description Get the active channel of a transport kind
// @Tags Channels
// @Produce json
// @Param kind path string true "Transport kind" Enums(serial, tcp, udp)
// @Success 200 {object} utils.APIResponse{data=service.ChannelInfo} "Channel retrieved"
// @Failure 400 {object} utils.APIResponse "Unknown transport"
// @Failure 404 {object} utils.APIResponse "Channel not open"
// @Router /channels/{kind} [get]
func (h *ChannelHandler) GetChannel(c *gin.Context) {
	kind, ok := h.parseKind(c)
	if !ok {
		return
	}

	info, exists := h.sessionService.Channel(kind)
	if !exists {
		utils.ErrorResponse(c, http.StatusNotFound, fmt.Sprintf("%s channel not open", kind.Label()), nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Channel retrieved", info)
}

// OpenChannel opens a channel, replacing any active channel of the same kind
// @Summary Open channel
// @Description Open a serial port, TCP client/server or UDP socket. Omitted serial settings use the configured defaults.
// @Tags Channels
// @Accept json
// @Produce json
// @Param kind path string true "Transport kind" Enums(serial, tcp, udp)
// @Param request body object true "Channel config, e.g. {\"port_name\":\"COM3\",\"baud_rate\":115200}"
// @Success 200 {object} utils.APIResponse{data=service.ChannelInfo} "Channel opened"
// @Failure 400 {object} utils.APIResponse "Invalid config"
// @Failure 502 {object} utils.APIResponse "Transport refused to open"
// @Router /channels/{kind}/open [post]
func (h *ChannelHandler) OpenChannel(c *gin.Context) {
	kind, ok := h.parseKind(c)
	if !ok {
		return
	}

	var params map[string]interface{}
	if err := c.ShouldBindJSON(&params); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	info, err := h.sessionService.OpenWithParams(c.Request.Context(), kind, params)
	if err != nil {
		utils.RequestLogger(c, h.logger.Logger).Warn("Failed to open channel", zap.String("transport", string(kind)), zap.Error(err))
		utils.ChannelErrorResponse(c, "Failed to open channel", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Channel opened", info)
}

// CloseChannel closes the active channel of one kind
// @Summary Close channel
// @Description Close the active channel of a transport kind. Closing an inactive kind succeeds.
// @Tags Channels
// @Produce json
// @Param kind path string true "Transport kind" Enums(serial, tcp, udp)
// @Success 200 {object} utils.APIResponse "Channel closed"
// @Failure 400 {object} utils.APIResponse "Unknown transport"
// @Router /channels/{kind}/close [post]
func (h *ChannelHandler) CloseChannel(c *gin.Context) {
	kind, ok := h.parseKind(c)
	if !ok {
		return
	}

	if err := h.sessionService.Close(kind); err != nil {
		utils.ChannelErrorResponse(c, "Failed to close channel", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Channel closed", gin.H{"kind": kind})
}

// SendData sends a payload on the active channel
// @Summary Send payload
// @Description Send text or hex bytes. TCP servers accept a peer ("all" for every peer); UDP accepts an explicit remote address.
// @Tags Channels
// @Accept json
// @Produce json
// @Param kind path string true "Transport kind" Enums(serial, tcp, udp)
// @Param request body SendChannelRequest true "Send request"
// @Success 200 {object} utils.APIResponse{data=object{bytes=int}} "Payload sent"
// @Failure 400 {object} utils.APIResponse "Invalid payload"
// @Failure 404 {object} utils.APIResponse "Unknown peer"
// @Failure 409 {object} utils.APIResponse "Channel not open"
// @Failure 502 {object} utils.APIResponse "Write failed"
// @Router /channels/{kind}/send [post]
func (h *ChannelHandler) SendData(c *gin.Context) {
	kind, ok := h.parseKind(c)
	if !ok {
		return
	}

	var req SendChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	payload, err := decodePayload(req)
	if err != nil {
		utils.ValidationErrorResponse(c, map[string]string{"data": err.Error()})
		return
	}

	err = h.sessionService.Send(c.Request.Context(), service.SendRequest{
		Kind:          kind,
		Data:          payload,
		Peer:          req.Peer,
		RemoteAddress: req.RemoteAddress,
		RemotePort:    req.RemotePort,
	})
	if err != nil {
		utils.ChannelErrorResponse(c, "Failed to send payload", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Payload sent", gin.H{"bytes": len(payload)})
}

// ListPeers lists the peers connected to the TCP server
// @Summary List TCP peers
// @Description List the peers connected to the TCP server channel
// @Tags Channels
// @Produce json
// @Param kind path string true "Transport kind" Enums(tcp)
// @Success 200 {object} utils.APIResponse{data=object{peers=[]string}} "Peers retrieved"
// @Failure 400 {object} utils.APIResponse "Transport has no peers"
// @Failure 409 {object} utils.APIResponse "Channel not open"
// @Router /channels/{kind}/peers [get]
func (h *ChannelHandler) ListPeers(c *gin.Context) {
	kind, ok := h.parseKind(c)
	if !ok {
		return
	}
	if kind != model.TransportTCP {
		utils.ErrorResponse(c, http.StatusBadRequest, "Only TCP channels have peers", nil)
		return
	}

	peers, err := h.sessionService.Peers()
	if err != nil {
		utils.ChannelErrorResponse(c, "Failed to list peers", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Peers retrieved", gin.H{"peers": peers})
}

// OpenReceiver restarts the UDP receiver on a new local endpoint
// @Summary Start UDP receiver
// @Description Bind the UDP receiver of the active UDP channel
// @Tags Channels
// @Accept json
// @Produce json
// @Param kind path string true "Transport kind" Enums(udp)
// @Param request body ReceiverRequest true "Local endpoint"
// @Success 200 {object} utils.APIResponse "Receiver started"
// @Failure 409 {object} utils.APIResponse "Channel not open"
// @Failure 502 {object} utils.APIResponse "Bind failed"
// @Router /channels/{kind}/receiver/open [post]
func (h *ChannelHandler) OpenReceiver(c *gin.Context) {
	if !h.requireUDP(c) {
		return
	}

	var req ReceiverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Port < 0 || req.Port > 65535 {
		utils.ValidationErrorResponse(c, map[string]string{"port": "must be between 0 and 65535"})
		return
	}

	if err := h.sessionService.OpenUDPReceiver(c.Request.Context(), req.Address, req.Port); err != nil {
		utils.ChannelErrorResponse(c, "Failed to start receiver", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Receiver started", req)
}

// CloseReceiver stops the UDP receiver
// @Summary Stop UDP receiver
// @Description Stop receiving on the active UDP channel; sending stays possible
// @Tags Channels
// @Produce json
// @Param kind path string true "Transport kind" Enums(udp)
// @Success 200 {object} utils.APIResponse "Receiver stopped"
// @Failure 409 {object} utils.APIResponse "Channel not open"
// @Router /channels/{kind}/receiver/close [post]
func (h *ChannelHandler) CloseReceiver(c *gin.Context) {
	if !h.requireUDP(c) {
		return
	}

	if err := h.sessionService.CloseUDPReceiver(); err != nil {
		utils.ChannelErrorResponse(c, "Failed to stop receiver", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Receiver stopped", nil)
}

func (h *ChannelHandler) parseKind(c *gin.Context) (model.TransportKind, bool) {
	kind, err := model.ParseTransportKind(c.Param("kind"))
	if err != nil {
		utils.ChannelErrorResponse(c, "Unknown transport", err)
		return "", false
	}
	return kind, true
}

func (h *ChannelHandler) requireUDP(c *gin.Context) bool {
	kind, ok := h.parseKind(c)
	if !ok {
		return false
	}
	if kind != model.TransportUDP {
		utils.ErrorResponse(c, http.StatusBadRequest, "Only UDP channels have a receiver", nil)
		return false
	}
	return true
}

func decodePayload(req SendChannelRequest) ([]byte, error) {
	if req.Hex {
		return format.ParseHex(req.Data)
	}
	return format.EncodeText(req.Data, req.Encoding)
}
