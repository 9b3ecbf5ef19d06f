package message

import (
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// Address identifies a peer by host and port. It is comparable and used as a
// map key and as a send destination.
type Address struct {
	Host string
	Port int
}

// ParseAddress parses "host:port".
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return Address{}, fmt.Errorf("invalid port in address %q", s)
	}
	return Address{Host: host, Port: port}, nil
}

// AddressFromAddrPort converts a socket address, unmapping IPv4-in-IPv6 forms
// so that the same peer always yields the same Address.
func AddressFromAddrPort(ap netip.AddrPort) Address {
	return Address{Host: ap.Addr().Unmap().String(), Port: int(ap.Port())}
}

// IsZero reports whether a is the zero Address.
func (a Address) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// String returns "host:port".
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// UDPAddr resolves a for sending.
func (a Address) UDPAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", a.String())
}

// MarshalJSON encodes the address as a [host, port] pair.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{a.Host, a.Port})
}

// UnmarshalJSON decodes a [host, port] pair.
func (a *Address) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("address must be a [host, port] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("address must be a [host, port] pair, got %d elements", len(pair))
	}
	var host string
	if err := json.Unmarshal(pair[0], &host); err != nil {
		return fmt.Errorf("address host: %w", err)
	}
	var port int
	if err := json.Unmarshal(pair[1], &port); err != nil {
		return fmt.Errorf("address port: %w", err)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("address port %d out of range", port)
	}
	a.Host, a.Port = host, port
	return nil
}
