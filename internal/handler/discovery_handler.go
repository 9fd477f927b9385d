// internal/handler/discovery_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"comm-debugger/internal/service"
	"comm-debugger/internal/utils"
)

// DiscoveryHandler handles port and interface discovery requests
type DiscoveryHandler struct {
	discoveryService *service.DiscoveryService
	logger           *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(discoveryService *service.DiscoveryService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
		logger:           utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// ListPorts lists the serial ports present on the host
// @Summary List serial ports
// @Description Enumerate serial ports with USB vendor/product details where available
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{count=int,ports=[]discovery.DiscoveredEndpoint}} "Ports listed"
// @Failure 500 {object} utils.APIResponse "Enumeration failed"
// @Router /discovery/ports [get]
func (h *DiscoveryHandler) ListPorts(c *gin.Context) {
	ports, err := h.discoveryService.SerialPorts(c.Request.Context())
	if err != nil {
		utils.LogError(utils.RequestLogger(c, h.logger.Logger), "Failed to list serial ports", err)
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list serial ports", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Serial ports listed", gin.H{
		"count": len(ports),
		"ports": ports,
	})
}

// ListInterfaces lists the local addresses a server or receiver can bind
// @Summary List local interfaces
// @Description List local addresses usable as TCP listen or UDP bind endpoints
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{count=int,interfaces=[]discovery.DiscoveredEndpoint}} "Interfaces listed"
// @Failure 500 {object} utils.APIResponse "Enumeration failed"
// @Router /discovery/interfaces [get]
func (h *DiscoveryHandler) ListInterfaces(c *gin.Context) {
	interfaces, err := h.discoveryService.Interfaces(c.Request.Context())
	if err != nil {
		utils.LogError(utils.RequestLogger(c, h.logger.Logger), "Failed to list interfaces", err)
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list interfaces", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Interfaces listed", gin.H{
		"count":      len(interfaces),
		"interfaces": interfaces,
	})
}

// ScanAll runs every available scanner
// @Summary Scan all
// @Description Run every available scanner and return the combined endpoints
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{count=int,scanners=[]string,endpoints=[]discovery.DiscoveredEndpoint}} "Scan completed"
// @Failure 500 {object} utils.APIResponse "Scan failed"
// @Router /discovery/scan [get]
func (h *DiscoveryHandler) ScanAll(c *gin.Context) {
	endpoints, err := h.discoveryService.ScanAll(c.Request.Context())
	if err != nil {
		utils.LogError(utils.RequestLogger(c, h.logger.Logger), "Failed to scan", err)
		utils.ErrorResponse(c, http.StatusInternalServerError, "Scan failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Scan completed", gin.H{
		"count":     len(endpoints),
		"scanners":  h.discoveryService.AvailableScanners(),
		"endpoints": endpoints,
	})
}
