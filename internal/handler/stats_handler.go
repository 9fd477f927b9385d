// internal/handler/stats_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"comm-debugger/internal/model"
	"comm-debugger/internal/protocol"
	"comm-debugger/internal/service"
	"comm-debugger/internal/utils"
)

// StatsHandler exposes the session traffic counters
type StatsHandler struct {
	sessionService *service.SessionService
	logger         *utils.ServiceLogger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(sessionService *service.SessionService, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		sessionService: sessionService,
		logger:         utils.NewServiceLogger(logger, "stats-handler"),
	}
}

// StatsResponse combines the session totals with per-channel counters
type StatsResponse struct {
	model.TrafficTotals
	Channels map[model.TransportKind]protocol.ChannelStats `json:"channels"`
}

// GetStats returns the cumulative byte counts
// @Summary Traffic statistics
// @Description Get the bytes sent and received in this session and per active channel
// @Tags Stats
// @Produce json
// @Success 200 {object} utils.APIResponse{data=StatsResponse} "Statistics retrieved"
// @Router /stats [get]
func (h *StatsHandler) GetStats(c *gin.Context) {
	// drain queued transfers so the totals include everything sent so far
	if err := h.sessionService.Flush(); err != nil {
		h.logger.Debug("Stats read without flush", zap.Error(err))
	}

	response := StatsResponse{
		TrafficTotals: h.sessionService.Stats(),
		Channels:      make(map[model.TransportKind]protocol.ChannelStats),
	}
	for _, ch := range h.sessionService.Channels() {
		response.Channels[ch.Kind] = ch.Stats
	}

	utils.SuccessResponse(c, http.StatusOK, "Statistics retrieved", response)
}

// ResetStats zeroes the session totals
// @Summary Reset statistics
// @Description Reset the session byte counters to zero
// @Tags Stats
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.TrafficTotals} "Statistics reset"
// @Router /stats/reset [post]
func (h *StatsHandler) ResetStats(c *gin.Context) {
	if err := h.sessionService.Flush(); err != nil {
		h.logger.Debug("Stats reset without flush", zap.Error(err))
	}
	h.sessionService.ResetStats()
	utils.SuccessResponse(c, http.StatusOK, "Statistics reset", h.sessionService.Stats())
}
