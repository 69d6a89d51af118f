// ABOUTME: mDNS service discovery for Check Time authorities
// ABOUTME: Servers advertise _checktime._tcp and clients browse for them
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"

	"github.com/checktime/checktime-go/internal/version"
)

// ServiceType is the DNS-SD service advertised by time authorities
const ServiceType = "_checktime._tcp"

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string // websocket path advertised in TXT (default: /checktime)
	Zone        string // reference time zone advertised in TXT
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered time authority
type ServerInfo struct {
	Name string
	Host string
	Port int
	Path string
	Zone string
}

// Addr returns host:port
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config, log *zap.Logger) *Manager {
	if config.Path == "" {
		config.Path = "/checktime"
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// TXT returns the TXT records advertised for this service
func (m *Manager) TXT() []string {
	txt := []string{
		"path=" + m.config.Path,
		"version=" + version.Version,
	}
	if m.config.Zone != "" {
		txt = append(txt, "zone="+m.config.Zone)
	}
	return txt
}

// Advertise advertises this time authority via mDNS until Stop
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
		m.TXT(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.Info("advertising mDNS service",
		zap.String("name", m.config.ServiceName),
		zap.Int("port", m.config.Port),
		zap.String("type", ServiceType))

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse continuously searches for time authorities; results arrive on Servers()
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop queries every few seconds until Stop
func (m *Manager) browseLoop() {
	for {
		if err := m.query(3*time.Second, m.servers); err != nil {
			m.log.Warn("mDNS query failed", zap.Error(err))
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// Discover runs a single query and returns what answered within timeout
func (m *Manager) Discover(timeout time.Duration) ([]*ServerInfo, error) {
	found := make(chan *ServerInfo, 32)
	if err := m.query(timeout, found); err != nil {
		return nil, err
	}
	close(found)

	var servers []*ServerInfo
	for s := range found {
		servers = append(servers, s)
	}
	return servers, nil
}

func (m *Manager) query(timeout time.Duration, out chan<- *ServerInfo) error {
	entries := make(chan *mdns.ServiceEntry, 10)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			server := entryToServer(entry)
			if server == nil {
				continue
			}

			m.log.Info("discovered time server",
				zap.String("name", server.Name),
				zap.String("addr", server.Addr()))

			select {
			case out <- server:
			case <-m.ctx.Done():
			default:
				// Drop when nobody is reading
			}
		}
	}()

	params := &mdns.QueryParam{
		Service:     ServiceType,
		Domain:      "local",
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	}

	err := mdns.Query(params)
	close(entries)
	<-done
	return err
}

func entryToServer(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}

	server := &ServerInfo{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
		Path: "/checktime",
	}
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "path":
			server.Path = value
		case "zone":
			server.Zone = value
		}
	}
	return server
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops advertisement and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// getLocalIPs returns non-loopback IPv4 addresses of interfaces that are up
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
