// internal/handler/log_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"comm-debugger/internal/format"
	"comm-debugger/internal/service"
	"comm-debugger/internal/utils"
)

// LogHandler serves the formatted event history
type LogHandler struct {
	sessionService *service.SessionService
	logger         *utils.ServiceLogger
}

// NewLogHandler creates a new log handler
func NewLogHandler(sessionService *service.SessionService, logger *zap.Logger) *LogHandler {
	return &LogHandler{
		sessionService: sessionService,
		logger:         utils.NewServiceLogger(logger, "log-handler"),
	}
}

// GetLog returns the retained events as display lines
// @Summary Event log
// @Description Get the most recent events formatted as log lines. The filter applies to transfers only.
// @Tags Log
// @Produce json
// @Param hex query bool false "Append a hex dump line to transfers"
// @Param filter query string false "Only show transfers whose text contains this keyword"
// @Param encoding query string false "Payload text encoding" default(utf-8)
// @Success 200 {object} utils.APIResponse{data=object{lines=[]string,count=int}} "Log retrieved"
// @Failure 400 {object} utils.APIResponse "Invalid options"
// @Router /log [get]
func (h *LogHandler) GetLog(c *gin.Context) {
	opts, ok := bindFormatOptions(c)
	if !ok {
		return
	}

	if err := h.sessionService.Flush(); err != nil {
		h.logger.Debug("Log read without flush", zap.Error(err))
	}

	lines := h.sessionService.History(opts)
	utils.SuccessResponse(c, http.StatusOK, "Log retrieved", gin.H{
		"lines": lines,
		"count": len(lines),
	})
}

// ClearLog drops the retained events
// @Summary Clear event log
// @Description Drop the retained events; traffic counters are not affected
// @Tags Log
// @Produce json
// @Success 200 {object} utils.APIResponse "Log cleared"
// @Router /log [delete]
func (h *LogHandler) ClearLog(c *gin.Context) {
	// events queued before the request are cleared too
	if err := h.sessionService.Flush(); err != nil {
		h.logger.Debug("Log cleared without flush", zap.Error(err))
	}
	h.sessionService.ClearHistory()
	utils.SuccessResponse(c, http.StatusOK, "Log cleared", nil)
}

func bindFormatOptions(c *gin.Context) (format.Options, bool) {
	var opts format.Options
	if err := c.ShouldBindQuery(&opts); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid query parameters", err)
		return opts, false
	}
	if err := format.ValidateEncoding(opts.Encoding); err != nil {
		utils.ValidationErrorResponse(c, map[string]string{"encoding": err.Error()})
		return opts, false
	}
	return opts, true
}
