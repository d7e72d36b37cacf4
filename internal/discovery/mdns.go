// ABOUTME: mDNS service discovery for engine telemetry monitors
// ABOUTME: Handles both advertisement (engine side) and browsing (viewer side)
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/Resonate-Protocol/soundscape/internal/version"
)

// ServiceType is the DNS-SD type monitors advertise under
const ServiceType = "_soundscape-monitor._tcp"

const queryTimeout = 3 * time.Second

// Config holds discovery configuration
type Config struct {
	Instance string // advertised instance name
	Port     int    // monitor port
	Path     string // WebSocket path, published in TXT
	EngineID string // published in TXT
}

// Manager handles mDNS operations
type Manager struct {
	config   Config
	ctx      context.Context
	cancel   context.CancelFunc
	monitors chan *MonitorInfo

	mu     sync.Mutex
	server *mdns.Server
}

// MonitorInfo describes a discovered monitor
type MonitorInfo struct {
	Name     string
	Host     string
	Port     int
	Path     string
	EngineID string
	Version  string
}

// Addr returns host:port for dialing
func (i *MonitorInfo) Addr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Instance == "" {
		config.Instance = version.Product
	}
	if config.Path == "" {
		config.Path = "/monitor"
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		monitors: make(chan *MonitorInfo, 10),
	}
}

// Advertise publishes this engine's monitor via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.Instance,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		txtRecords(m.config),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.mu.Lock()
	m.server = server
	m.mu.Unlock()

	log.Infof("Advertising mDNS service: %s on port %d (type: %s)", m.config.Instance, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if err := m.server.Shutdown(); err != nil {
			log.Warnf("mdns shutdown error: %v", err)
		}
	}()

	return nil
}

// Browse searches for monitors until Stop
func (m *Manager) Browse() {
	go m.browseLoop()
}

// browseLoop repeats the query so monitors started later are found
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		forwarded := make(chan struct{})

		go func() {
			defer close(forwarded)
			for entry := range entries {
				info := parseEntry(entry)
				if info == nil {
					continue
				}
				log.Debugf("Discovered monitor: %s at %s", info.Name, info.Addr())

				select {
				case m.monitors <- info:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Timeout = queryTimeout
		params.Entries = entries

		if err := mdns.Query(params); err != nil {
			log.Warnf("mdns query error: %v", err)
			select {
			case <-time.After(queryTimeout):
			case <-m.ctx.Done():
			}
		}
		close(entries)
		<-forwarded
	}
}

// Monitors returns the channel of discovered monitors
func (m *Manager) Monitors() <-chan *MonitorInfo {
	return m.monitors
}

// Stop ends advertisement and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// txtRecords encodes the monitor's connection details
func txtRecords(cfg Config) []string {
	txt := []string{
		"path=" + cfg.Path,
		"version=" + version.Version,
	}
	if cfg.EngineID != "" {
		txt = append(txt, "engine="+cfg.EngineID)
	}
	return txt
}

// parseEntry converts a browse result, returning nil for entries without
// a usable address or of another service type
func parseEntry(entry *mdns.ServiceEntry) *MonitorInfo {
	if entry == nil || !strings.Contains(entry.Name, ServiceType) {
		return nil
	}

	info := &MonitorInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Port: entry.Port,
		Path: "/monitor",
	}
	switch {
	case entry.AddrV4 != nil:
		info.Host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		info.Host = entry.AddrV6.String()
	default:
		return nil
	}

	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			info.Path = value
		case "engine":
			info.EngineID = value
		case "version":
			info.Version = value
		}
	}
	return info
}

// getLocalIPs returns non-loopback IPv4 addresses of up interfaces
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
