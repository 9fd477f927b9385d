// internal/service/discovery_service.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"comm-debugger/internal/discovery"
	"comm-debugger/internal/discovery/network"
	"comm-debugger/internal/discovery/serial"
	"comm-debugger/internal/utils"
)

const scanTimeout = 5 * time.Second

// DiscoveryService lists serial ports and local addresses for the open dialogs
type DiscoveryService struct {
	scannerManager *discovery.ScannerManager
	logger         *utils.ServiceLogger

	mutex    sync.Mutex
	lastScan map[string]time.Time
}

// NewDiscoveryService creates a discovery service with the default scanners
func NewDiscoveryService(logger *zap.Logger) *DiscoveryService {
	scannerManager := discovery.NewScannerManager(logger)
	scannerManager.RegisterScanner(serial.NewScanner(logger, nil))
	scannerManager.RegisterScanner(network.NewScanner(logger, nil, false))

	return NewDiscoveryServiceWithManager(scannerManager, logger)
}

// NewDiscoveryServiceWithManager creates a discovery service on an existing scanner manager
func NewDiscoveryServiceWithManager(scannerManager *discovery.ScannerManager, logger *zap.Logger) *DiscoveryService {
	ds := &DiscoveryService{
		scannerManager: scannerManager,
		logger:         utils.NewServiceLogger(logger, "discovery-service"),
		lastScan:       make(map[string]time.Time),
	}

	ds.logger.Info("Discovery scanners initialized",
		zap.Strings("available_scanners", scannerManager.GetAvailableScanners()),
	)

	return ds
}

// SerialPorts lists the serial ports present right now
func (ds *DiscoveryService) SerialPorts(ctx context.Context) ([]*discovery.DiscoveredEndpoint, error) {
	return ds.scan(ctx, discovery.ScannerSerial)
}

// Interfaces lists the local addresses a TCP server or UDP receiver can bind
func (ds *DiscoveryService) Interfaces(ctx context.Context) ([]*discovery.DiscoveredEndpoint, error) {
	return ds.scan(ctx, discovery.ScannerNetwork)
}

// ScanAll runs every scanner
func (ds *DiscoveryService) ScanAll(ctx context.Context) ([]*discovery.DiscoveredEndpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	endpoints, err := ds.scannerManager.ScanAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return nonNil(endpoints), nil
}

// AvailableScanners returns the usable scanner types
func (ds *DiscoveryService) AvailableScanners() []string {
	return ds.scannerManager.GetAvailableScanners()
}

func (ds *DiscoveryService) scan(ctx context.Context, scannerType string) ([]*discovery.DiscoveredEndpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	start := time.Now()
	endpoints, err := ds.scannerManager.ScanByType(ctx, scannerType)
	if err != nil {
		ds.logger.Warn("Scan failed", zap.String("type", scannerType), zap.Error(err))
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	ds.mutex.Lock()
	ds.lastScan[scannerType] = time.Now()
	ds.mutex.Unlock()

	ds.logger.Debug("Scan completed",
		zap.String("type", scannerType),
		zap.Int("endpoints_found", len(endpoints)),
		zap.Duration("duration", time.Since(start)),
	)

	return nonNil(endpoints), nil
}

// LastScan returns when a scanner type last completed
func (ds *DiscoveryService) LastScan(scannerType string) (time.Time, bool) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	at, ok := ds.lastScan[scannerType]
	return at, ok
}

func nonNil(endpoints []*discovery.DiscoveredEndpoint) []*discovery.DiscoveredEndpoint {
	if endpoints == nil {
		return []*discovery.DiscoveredEndpoint{}
	}
	return endpoints
}
