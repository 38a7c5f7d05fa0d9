// ABOUTME: mDNS discovery for Resonate voice gateways
// ABOUTME: Gateways advertise _resonate-voice._tcp; clients browse for them
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD service type of a voice gateway
const ServiceType = "_resonate-voice._tcp"

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string
	// BrowseTimeout bounds each mDNS query round
	BrowseTimeout time.Duration
}

// Manager handles mDNS operations
type Manager struct {
	config   Config
	ctx      context.Context
	cancel   context.CancelFunc
	gateways chan *GatewayInfo
}

// GatewayInfo describes a discovered gateway
type GatewayInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// Addr returns host:port for dialing
func (g *GatewayInfo) Addr() string {
	return net.JoinHostPort(g.Host, fmt.Sprint(g.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = "/resonate-voice"
	}
	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = 3 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		gateways: make(chan *GatewayInfo, 10),
	}
}

// Advertise announces this gateway until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		[]string{"path=" + m.config.Path},
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for gateways until Stop, publishing them on Gateways
func (m *Manager) Browse() {
	go m.browseLoop()
}

// browseLoop continuously browses for gateways
func (m *Manager) browseLoop() {
	for m.ctx.Err() == nil {
		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				gw := parseEntry(entry)
				if gw == nil {
					continue
				}

				log.Printf("Discovered gateway: %s at %s", gw.Name, gw.Addr())

				select {
				case m.gateways <- gw:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Entries = entries
		params.Timeout = m.config.BrowseTimeout
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			log.Printf("mDNS query failed: %v", err)
		}
		close(entries)
		<-done

		select {
		case <-m.ctx.Done():
		case <-time.After(time.Second):
		}
	}
}

// Find browses until the first gateway answers or ctx ends
func (m *Manager) Find(ctx context.Context) (*GatewayInfo, error) {
	m.Browse()
	select {
	case gw := <-m.gateways:
		return gw, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("no voice gateway found: %w", ctx.Err())
	}
}

// Gateways returns the channel of discovered gateways
func (m *Manager) Gateways() <-chan *GatewayInfo {
	return m.gateways
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// parseEntry converts an mDNS answer, skipping entries without an address
func parseEntry(entry *mdns.ServiceEntry) *GatewayInfo {
	if entry == nil || entry.Port == 0 {
		return nil
	}

	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	case entry.Host != "":
		host = strings.TrimSuffix(entry.Host, ".")
	default:
		return nil
	}

	gw := &GatewayInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host: host,
		Port: entry.Port,
		Path: "/resonate-voice",
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok && path != "" {
			gw.Path = path
		}
	}
	return gw
}

// getLocalIPs returns local IPv4 addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
