package mdns

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"relay/discovery"
)

const (
	service = "_relay._tcp"
	domain  = "local."
)

var _ discovery.Registry = (*Registry)(nil)

type Registry struct {
	server  *mdns.Server
	current discovery.Relay
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Lookup runs a single query and returns the relays that answered in time.
func (r *Registry) Lookup(timeout time.Duration) ([]discovery.Relay, error) {
	entriesCh := make(chan *mdns.ServiceEntry, 4)
	relaysCh := make(chan []discovery.Relay, 1)
	go func() {
		relaysCh <- collectRelays(entriesCh, r.current.Id)
	}()

	params := mdns.DefaultParams(service)
	params.Domain = domain
	params.Entries = entriesCh
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entriesCh)
	relays := <-relaysCh
	if err != nil {
		return nil, fmt.Errorf("error lookup service. %w", err)
	}
	return relays, nil
}

// collectRelays drains entries, dropping duplicates and the relay announced
// by this process.
func collectRelays(entries <-chan *mdns.ServiceEntry, self string) []discovery.Relay {
	var relays []discovery.Relay
	seen := make(map[string]bool)
	for entry := range entries {
		relay, ok := relayFromEntry(entry)
		if !ok || seen[relay.Id] || (self != "" && relay.Id == self) {
			continue
		}
		seen[relay.Id] = true
		relays = append(relays, relay)
	}
	return relays
}

func (r *Registry) Register(relay discovery.Relay) error {
	host, portStr, err := net.SplitHostPort(relay.Addr)
	if err != nil {
		return fmt.Errorf("error parse relay address format '%s'. %w", relay.Addr, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("error parse relay address port '%s'. %w", portStr, err)
	}

	s, err := mdns.NewMDNSService(
		relay.Id,
		service,
		domain,
		"",
		port,
		[]net.IP{net.ParseIP(host)},
		infoFields(relay),
	)
	if err != nil {
		return fmt.Errorf("error create mdns instance. %w", err)
	}

	r.server, err = mdns.NewServer(&mdns.Config{Zone: s})
	if err != nil {
		return fmt.Errorf("error create mdns server. %w", err)
	}
	r.current = relay
	return nil
}

func (r *Registry) Unregister() error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown()
}

func infoFields(relay discovery.Relay) []string {
	return []string{
		"id=" + relay.Id,
		"name=" + relay.Name,
		"addr=" + relay.Addr,
	}
}

func relayFromEntry(entry *mdns.ServiceEntry) (discovery.Relay, bool) {
	if entry == nil || !strings.Contains(entry.Name, service) {
		return discovery.Relay{}, false
	}

	var relay discovery.Relay
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "id":
			relay.Id = value
		case "name":
			relay.Name = value
		case "addr":
			relay.Addr = value
		}
	}
	if relay.Addr == "" && entry.AddrV4 != nil {
		relay.Addr = net.JoinHostPort(entry.AddrV4.String(), strconv.Itoa(entry.Port))
	}
	if relay.Id == "" || relay.Addr == "" {
		return discovery.Relay{}, false
	}
	if relay.Name == "" {
		relay.Name = relay.Addr
	}
	return relay, true
}
