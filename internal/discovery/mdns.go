// ABOUTME: mDNS advertisement of the process itself (not individual rooms)
// ABOUTME: Grounded on the teacher's internal/discovery.Manager, advertise-only
package discovery

import (
	"context"
	"fmt"
	"net"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
)

// ServiceType is the mDNS service type a LAN client browses for to find a
// beatsync instance without already knowing its address.
const ServiceType = "_beatsync._tcp"

// Manager advertises this process on the LAN. Rooms themselves are
// discovered over HTTP via GET /discover, not mDNS — this only helps a
// client find the server's address in the first place.
type Manager struct {
	name   string
	port   int
	logger zerolog.Logger

	cancel context.CancelFunc
	server *mdns.Server
}

// NewManager constructs a Manager for the given service instance name and
// HTTP listen port.
func NewManager(name string, port int, logger zerolog.Logger) *Manager {
	return &Manager{name: name, port: port, logger: logger}
}

// Advertise starts broadcasting the service until Stop is called. Safe to
// call at most once per Manager.
func (m *Manager) Advertise() error {
	ips, err := localIPv4s()
	if err != nil {
		return fmt.Errorf("discovery: resolve local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(m.name, ServiceType, "", "", m.port, ips, nil)
	if err != nil {
		return fmt.Errorf("discovery: build mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("discovery: start mdns server: %w", err)
	}
	m.server = server

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.logger.Info().Str("name", m.name).Int("port", m.port).Msg("advertising mdns service")

	go func() {
		<-ctx.Done()
		_ = server.Shutdown()
	}()
	return nil
}

// Stop withdraws the advertisement.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func localIPv4s() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			if v4 := ipnet.IP.To4(); v4 != nil {
				ips = append(ips, v4)
			}
		}
	}
	return ips, nil
}
