// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"comm-debugger/internal/model"
)

// Scanner types
const (
	ScannerSerial  = "serial"
	ScannerNetwork = "network"
)

// DeviceScanner lists endpoints a channel can be opened on
type DeviceScanner interface {
	Scan(ctx context.Context) ([]*DiscoveredEndpoint, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredEndpoint is a serial port or a local address to bind to
type DiscoveredEndpoint struct {
	Transport   model.TransportKind `json:"transport,omitempty"`
	Name        string              `json:"name"`
	Description string              `json:"description"`

	// Serial
	IsUSB        bool   `json:"is_usb,omitempty"`
	VendorID     string `json:"vendor_id,omitempty"`
	ProductID    string `json:"product_id,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Chipset      string `json:"chipset,omitempty"`

	// Network
	Address    string `json:"address,omitempty"`
	Interface  string `json:"interface,omitempty"`
	IsLoopback bool   `json:"is_loopback,omitempty"`
	IsIPv6     bool   `json:"is_ipv6,omitempty"`
}

// ScannerManager manages all endpoint scanners
type ScannerManager struct {
	mutex    sync.RWMutex
	scanners map[string]DeviceScanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]DeviceScanner),
		logger:   logger.With(zap.String("component", "scanner_manager")),
	}
}

// RegisterScanner registers a scanner, replacing one of the same type
func (sm *ScannerManager) RegisterScanner(scanner DeviceScanner) {
	scannerType := scanner.GetScannerType()

	sm.mutex.Lock()
	sm.scanners[scannerType] = scanner
	sm.mutex.Unlock()

	sm.logger.Info("Scanner registered", zap.String("type", scannerType))
}

// ScanAll runs every available scanner. A failing scanner is logged and skipped.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredEndpoint, error) {
	var all []*DiscoveredEndpoint

	for _, scannerType := range sm.types() {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		scanner := sm.get(scannerType)
		if !scanner.IsAvailable() {
			sm.logger.Debug("Scanner not available, skipping", zap.String("type", scannerType))
			continue
		}

		endpoints, err := scanner.Scan(ctx)
		if err != nil {
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		all = append(all, endpoints...)
		sm.logger.Debug("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("endpoints_found", len(endpoints)),
		)
	}

	return all, nil
}

// ScanByType runs one scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*DiscoveredEndpoint, error) {
	scanner := sm.get(scannerType)
	if scanner == nil {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}

	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	return scanner.Scan(ctx)
}

// GetAvailableScanners returns the available scanner types, sorted
func (sm *ScannerManager) GetAvailableScanners() []string {
	var available []string
	for _, scannerType := range sm.types() {
		if sm.get(scannerType).IsAvailable() {
			available = append(available, scannerType)
		}
	}
	return available
}

func (sm *ScannerManager) get(scannerType string) DeviceScanner {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.scanners[scannerType]
}

func (sm *ScannerManager) types() []string {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	types := make([]string, 0, len(sm.scanners))
	for scannerType := range sm.scanners {
		types = append(types, scannerType)
	}
	sort.Strings(types)
	return types
}
