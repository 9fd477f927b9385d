// internal/handler/capture_handler.go
package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"comm-debugger/internal/model"
	"comm-debugger/internal/repository"
	"comm-debugger/internal/service"
	"comm-debugger/internal/utils"
)

// CaptureHandler serves persisted traffic captures
type CaptureHandler struct {
	captureService *service.CaptureService
	logger         *utils.ServiceLogger
}

// NewCaptureHandler creates a new capture handler
func NewCaptureHandler(captureService *service.CaptureService, logger *zap.Logger) *CaptureHandler {
	return &CaptureHandler{
		captureService: captureService,
		logger:         utils.NewServiceLogger(logger, "capture-handler"),
	}
}

// ListCaptures lists persisted events, newest first
// @Summary List captures
// @Description List persisted transfer and error events, newest first
// @Tags Captures
// @Produce json
// @Param limit query int false "Maximum records (max 1000)" default(100)
// @Param kind query string false "Transport" Enums(serial, tcp, udp)
// @Param type query string false "Event type" Enums(transfer, error)
// @Param channel_id query string false "Channel instance ID"
// @Param since query string false "RFC3339 lower bound"
// @Success 200 {object} utils.APIResponse{data=object{count=int,captures=[]model.CaptureRecord}} "Captures retrieved"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Failure 500 {object} utils.APIResponse "Query failed"
// @Router /captures [get]
func (h *CaptureHandler) ListCaptures(c *gin.Context) {
	filter, errs := parseCaptureFilter(c)
	if len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs)
		return
	}

	records, err := h.captureService.Recent(c.Request.Context(), filter)
	if err != nil {
		utils.LogError(utils.RequestLogger(c, h.logger.Logger), "Failed to list captures", err)
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list captures", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Captures retrieved", gin.H{
		"count":    len(records),
		"captures": records,
	})
}

// CaptureStats reports the capture writer counters
// @Summary Capture writer statistics
// @Description Get queued, saved, dropped and failed record counts
// @Tags Captures
// @Produce json
// @Success 200 {object} utils.APIResponse{data=service.CaptureStats} "Capture statistics"
// @Router /captures/stats [get]
func (h *CaptureHandler) CaptureStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Capture statistics", h.captureService.Stats())
}

func parseCaptureFilter(c *gin.Context) (*repository.CaptureFilter, map[string]string) {
	filter := &repository.CaptureFilter{}
	errs := make(map[string]string)

	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			errs["limit"] = "must be a non-negative integer"
		}
		filter.Limit = limit
	}

	if v := c.Query("kind"); v != "" {
		kind, err := model.ParseTransportKind(v)
		if err != nil {
			errs["kind"] = err.Error()
		} else {
			filter.Kind = &kind
		}
	}

	if v := c.Query("type"); v != "" {
		eventType := model.EventType(strings.ToLower(v))
		switch eventType {
		case model.EventTransfer, model.EventError:
			filter.Type = &eventType
		default:
			errs["type"] = "must be transfer or error"
		}
	}

	if v := c.Query("channel_id"); v != "" {
		filter.ChannelID = &v
	}

	if v := c.Query("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			errs["since"] = "must be an RFC3339 timestamp"
		} else {
			filter.Since = &since
		}
	}

	return filter, errs
}
