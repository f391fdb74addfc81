package service

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

var errEmptyHost = errors.New("empty subscriber host")

// ClientRegistry is the fixed list of telemetry subscribers, resolved once.
type ClientRegistry struct {
	clients []*net.UDPAddr
}

// ResolveClients resolves every host to a UDP address. A host without a port
// uses defaultPort. Hosts that fail to resolve are left out and reported in
// the joined error; the registry of the others is still returned.
func ResolveClients(hosts []string, defaultPort int) (*ClientRegistry, error) {
	r := &ClientRegistry{}
	var errs []error
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			errs = append(errs, errEmptyHost)
			continue
		}
		addr, err := net.ResolveUDPAddr("udp", withPort(h, defaultPort))
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve %q: %w", h, err))
			continue
		}
		r.clients = append(r.clients, addr)
	}
	return r, errors.Join(errs...)
}

func withPort(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
}

// Clients returns a copy of the resolved addresses.
func (r *ClientRegistry) Clients() []*net.UDPAddr {
	if r == nil {
		return nil
	}
	out := make([]*net.UDPAddr, len(r.clients))
	copy(out, r.clients)
	return out
}

// Len returns the number of subscribers.
func (r *ClientRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.clients)
}
