// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"comm-debugger/internal/discovery"
	"comm-debugger/internal/model"
)

// PortLister returns the detailed list of serial ports on the host
type PortLister func() ([]*enumerator.PortDetails, error)

// Scanner lists serial ports through the OS enumerator
type Scanner struct {
	logger  *zap.Logger
	lister  PortLister
	bridges *BridgeDatabase
}

// NewScanner creates a new serial scanner. A nil lister uses the OS enumerator.
func NewScanner(logger *zap.Logger, lister PortLister) *Scanner {
	if lister == nil {
		lister = enumerator.GetDetailedPortsList
	}

	return &Scanner{
		logger:  logger.With(zap.String("scanner", discovery.ScannerSerial)),
		lister:  lister,
		bridges: NewBridgeDatabase(),
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return discovery.ScannerSerial
}

// IsAvailable reports whether serial enumeration is supported on this platform
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan lists serial ports sorted by name
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredEndpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := s.lister()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	endpoints := make([]*discovery.DiscoveredEndpoint, 0, len(ports))
	for _, port := range ports {
		if port == nil || port.Name == "" {
			continue
		}
		endpoints = append(endpoints, s.convert(port))
	}

	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].Name < endpoints[j].Name
	})

	s.logger.Debug("Serial scan completed", zap.Int("ports_found", len(endpoints)))
	return endpoints, nil
}

func (s *Scanner) convert(port *enumerator.PortDetails) *discovery.DiscoveredEndpoint {
	endpoint := &discovery.DiscoveredEndpoint{
		Transport:   model.TransportSerial,
		Name:        port.Name,
		Description: describePort(port),
		IsUSB:       port.IsUSB,
	}

	if port.IsUSB {
		endpoint.VendorID = strings.ToUpper(port.VID)
		endpoint.ProductID = strings.ToUpper(port.PID)
		endpoint.SerialNumber = port.SerialNumber
		endpoint.Chipset = s.bridges.Identify(port.VID, port.PID)
	}

	return endpoint
}

// describePort renders "name, product" the way port pickers show it
func describePort(port *enumerator.PortDetails) string {
	product := strings.TrimSpace(port.Product)
	if product == "" {
		return port.Name
	}
	return port.Name + ", " + product
}
