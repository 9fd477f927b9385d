// internal/service/discovery_service_test.go
package service

import (
	"context"
	"net"
	"testing"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap/zaptest"

	"comm-debugger/internal/discovery"
	"comm-debugger/internal/discovery/network"
	"comm-debugger/internal/discovery/serial"
)

func newTestDiscovery(t *testing.T) *DiscoveryService {
	t.Helper()
	logger := zaptest.NewLogger(t)

	manager := discovery.NewScannerManager(logger)
	manager.RegisterScanner(serial.NewScanner(logger, func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{{Name: "COM3", IsUSB: true, VID: "0403", PID: "6001", Product: "FT232R USB UART"}}, nil
	}))
	manager.RegisterScanner(network.NewScanner(logger, func() ([]network.Interface, error) {
		return []network.Interface{{
			Name:  "lo",
			Flags: net.FlagUp | net.FlagLoopback,
			Addrs: []net.Addr{&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)}},
		}}, nil
	}, false))

	return NewDiscoveryServiceWithManager(manager, logger)
}

func TestDiscoveryService(t *testing.T) {
	ds := newTestDiscovery(t)

	ports, err := ds.SerialPorts(context.Background())
	if err != nil {
		t.Fatalf("SerialPorts() error = %v", err)
	}
	if len(ports) != 1 || ports[0].Description != "COM3, FT232R USB UART" || ports[0].Chipset != "FTDI FT232R" {
		t.Errorf("SerialPorts() = %+v", ports)
	}

	ifaces, err := ds.Interfaces(context.Background())
	if err != nil {
		t.Fatalf("Interfaces() error = %v", err)
	}
	if len(ifaces) != 2 || ifaces[1].Address != "127.0.0.1" {
		t.Errorf("Interfaces() = %+v", ifaces)
	}

	if _, ok := ds.LastScan(discovery.ScannerSerial); !ok {
		t.Error("LastScan(serial) not recorded")
	}

	all, err := ds.ScanAll(context.Background())
	if err != nil || len(all) != 3 {
		t.Errorf("ScanAll() = %d, %v", len(all), err)
	}

	if got := ds.AvailableScanners(); len(got) != 2 {
		t.Errorf("AvailableScanners() = %v", got)
	}
}
