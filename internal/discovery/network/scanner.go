// internal/discovery/network/scanner.go
package network

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"

	"comm-debugger/internal/discovery"
)

// WildcardAddress binds every local interface
const WildcardAddress = "0.0.0.0"

// Interface is the subset of an OS network interface the scanner reads
type Interface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// InterfaceLister returns the host's network interfaces
type InterfaceLister func() ([]Interface, error)

// Scanner lists local addresses usable as TCP listen or UDP bind endpoints
type Scanner struct {
	logger      *zap.Logger
	lister      InterfaceLister
	includeIPv6 bool
}

// NewScanner creates a new network scanner. A nil lister reads net.Interfaces.
func NewScanner(logger *zap.Logger, lister InterfaceLister, includeIPv6 bool) *Scanner {
	if lister == nil {
		lister = systemInterfaces
	}

	return &Scanner{
		logger:      logger.With(zap.String("scanner", discovery.ScannerNetwork)),
		lister:      lister,
		includeIPv6: includeIPv6,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return discovery.ScannerNetwork
}

// IsAvailable checks if interface listing is available
func (s *Scanner) IsAvailable() bool {
	return true
}

// Scan lists the wildcard address followed by the address of every up interface
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.DiscoveredEndpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ifaces, err := s.lister()
	if err != nil {
		return nil, fmt.Errorf("failed to list network interfaces: %w", err)
	}

	endpoints := []*discovery.DiscoveredEndpoint{{
		Name:        "any",
		Description: "all interfaces",
		Address:     WildcardAddress,
	}}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}

		for _, addr := range iface.Addrs {
			ip := addrIP(addr)
			if ip == nil {
				continue
			}

			isIPv6 := ip.To4() == nil
			if isIPv6 && (!s.includeIPv6 || ip.IsLinkLocalUnicast()) {
				continue
			}

			endpoints = append(endpoints, &discovery.DiscoveredEndpoint{
				Name:        iface.Name,
				Description: iface.Name + ", " + ip.String(),
				Address:     ip.String(),
				Interface:   iface.Name,
				IsLoopback:  ip.IsLoopback(),
				IsIPv6:      isIPv6,
			})
		}
	}

	s.logger.Debug("Network scan completed", zap.Int("addresses_found", len(endpoints)))
	return endpoints, nil
}

func addrIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPNet:
		return a.IP
	case *net.IPAddr:
		return a.IP
	default:
		return nil
	}
}

func systemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	result := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		result = append(result, Interface{Name: iface.Name, Flags: iface.Flags, Addrs: addrs})
	}
	return result, nil
}
