// Package transport sends and receives protocol messages as single UDP
// datagrams. Delivery is best effort: no acks, no retries, no ordering.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"peerreserve/internal/message"
	"peerreserve/internal/telemetry"
)

// ReadBufferSize bounds a single inbound datagram.
const ReadBufferSize = 64 * 1024

// HandlerFunc is called for every decoded datagram, one at a time, on the
// receive loop.
type HandlerFunc func(from message.Address, m message.Message)

// Config configures an Endpoint.
type Config struct {
	// Component labels logs and metrics, e.g. "registry" or "node".
	Component string
	Metrics   *telemetry.Metrics
}

// Endpoint is a bound UDP socket speaking the message protocol.
type Endpoint struct {
	conn      *net.UDPConn
	log       zerolog.Logger
	cfg       Config
	malformed rate.Sometimes
	closeOnce sync.Once
	closeErr  error
}

// Listen binds addr ("host:port", port 0 for an ephemeral port).
func Listen(log zerolog.Logger, addr string, cfg Config) (*Endpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve listen address %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %q: %w", addr, err)
	}
	if cfg.Component == "" {
		cfg.Component = "endpoint"
	}
	return &Endpoint{
		conn:      conn,
		log:       log.With().Str("component", cfg.Component).Logger(),
		cfg:       cfg,
		malformed: rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}, nil
}

// Addr returns the bound local address.
func (e *Endpoint) Addr() message.Address {
	return message.AddressFromAddrPort(e.conn.LocalAddr().(*net.UDPAddr).AddrPort())
}

// Send encodes m and sends it to to.
func (e *Endpoint) Send(to message.Address, m message.Message) error {
	data, err := message.Encode(m)
	if err != nil {
		e.cfg.Metrics.SendFailed(e.cfg.Component, string(m.MessageType()))
		return err
	}
	return e.SendEncoded(to, m.MessageType(), data)
}

// SendEncoded sends an already encoded payload of type typ.
func (e *Endpoint) SendEncoded(to message.Address, typ message.Type, data []byte) error {
	dst, err := to.UDPAddr()
	if err == nil {
		_, err = e.conn.WriteToUDP(data, dst)
	}
	if err != nil {
		e.cfg.Metrics.SendFailed(e.cfg.Component, string(typ))
		return fmt.Errorf("failed to send %s to %s: %w", typ, to, err)
	}
	e.cfg.Metrics.MessageSent(e.cfg.Component, string(typ))
	return nil
}

// Broadcast sends m to every address in to. A failed send does not stop the
// rest; all failures are joined into the returned error.
func (e *Endpoint) Broadcast(to []message.Address, m message.Message) error {
	data, err := message.Encode(m)
	if err != nil {
		e.cfg.Metrics.SendFailed(e.cfg.Component, string(m.MessageType()))
		return err
	}
	var errs []error
	for _, addr := range to {
		if err := e.SendEncoded(addr, m.MessageType(), data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Serve runs the receive loop until ctx is done or the endpoint is closed.
// Datagrams that fail to decode are logged and dropped; unknown message types
// are dropped with a debug log.
func (e *Endpoint) Serve(ctx context.Context, h HandlerFunc) error {
	stop := context.AfterFunc(ctx, func() { _ = e.Close() })
	defer stop()

	buf := make([]byte, ReadBufferSize)
	for {
		n, from, err := e.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to read datagram: %w", err)
		}
		sender := message.AddressFromAddrPort(from)

		m, err := message.Decode(buf[:n])
		if err != nil {
			var unknown message.UnknownTypeError
			if errors.As(err, &unknown) {
				e.log.Debug().Str("from", sender.String()).Str("type", string(unknown.Type)).Msg("ignoring unknown message type")
				continue
			}
			e.cfg.Metrics.MalformedReceived(e.cfg.Component)
			e.malformed.Do(func() {
				e.log.Warn().Err(err).Str("from", sender.String()).Int("bytes", n).Msg("dropping malformed datagram")
			})
			continue
		}

		e.cfg.Metrics.MessageReceived(e.cfg.Component, string(m.MessageType()))
		h(sender, m)
	}
}

// Close releases the socket. It is safe to call more than once.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.conn.Close()
	})
	return e.closeErr
}
