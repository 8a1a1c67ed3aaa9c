package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/GabrielNunesIT/emitterkit/internal/emitter"
	"github.com/GabrielNunesIT/emitterkit/internal/logging"
	"github.com/GabrielNunesIT/emitterkit/internal/model"
)

// TypeSyslog is the registry key of the syslog emitter.
const TypeSyslog = "syslog"

// DefaultSyslogAddress is used when no address is configured.
const DefaultSyslogAddress = ":5140"

// UDPListenerFactory creates a UDP connection.
type UDPListenerFactory func(network, address string) (net.PacketConn, error)

// TCPListenerFactory creates a TCP listener.
type TCPListenerFactory func(network, address string) (net.Listener, error)

// SyslogOption configures the syslog emitter.
type SyslogOption func(*Syslog)

// WithUDPListenerFactory sets a custom UDP listener factory.
func WithUDPListenerFactory(f UDPListenerFactory) SyslogOption {
	return func(s *Syslog) {
		s.udpFactory = f
	}
}

// WithTCPListenerFactory sets a custom TCP listener factory.
func WithTCPListenerFactory(f TCPListenerFactory) SyslogOption {
	return func(s *Syslog) {
		s.tcpFactory = f
	}
}

// SyslogProperties configures the syslog emitter.
type SyslogProperties struct {
	Protocol string `json:"protocol"`
	Address  string `json:"address"`
	Monitoring
}

// Syslog receives syslog messages over UDP or TCP and emits one event per
// message.
type Syslog struct {
	*emitter.Accepting
	props      SyslogProperties
	udpFactory UDPListenerFactory
	tcpFactory TCPListenerFactory
	run        runner
}

// NewSyslog creates a syslog emitter.
func NewSyslog(id model.Identity, props SyslogProperties, log logging.Facade, opts ...SyslogOption) *Syslog {
	props.Protocol = strings.ToLower(props.Protocol)
	if props.Protocol == "" {
		props.Protocol = "udp"
	}
	if props.Address == "" {
		props.Address = DefaultSyslogAddress
	}

	s := &Syslog{props: props}

	// Default UDP factory
	s.udpFactory = func(network, address string) (net.PacketConn, error) {
		addr, err := net.ResolveUDPAddr(network, address)
		if err != nil {
			return nil, err
		}
		return net.ListenUDP(network, addr)
	}

	// Default TCP factory
	s.tcpFactory = net.Listen

	for _, opt := range opts {
		opt(s)
	}

	s.Accepting = emitter.NewAccepting(id.ID, id.Name, id.Description, s, props.Monitoring.options(log)...)
	return s
}

// SyslogFactory builds syslog emitters.
func SyslogFactory(log logging.Facade, opts ...SyslogOption) emitter.FactoryFunc {
	return func(ctx context.Context, desc model.Description) (emitter.Emitter, error) {
		var props SyslogProperties
		if err := decodeProperties(desc.EmitterProperties, &props); err != nil {
			return nil, err
		}
		switch strings.ToLower(props.Protocol) {
		case "", "udp", "tcp":
		default:
			return nil, fmt.Errorf("unsupported syslog protocol: %s", props.Protocol)
		}
		return NewSyslog(desc.Identity(), props, log, opts...), nil
	}
}

// Type implements emitter.Kind.
func (s *Syslog) Type() string { return TypeSyslog }

// MetaData implements emitter.Kind.
func (s *Syslog) MetaData() any {
	return map[string]string{"protocol": s.props.Protocol, "address": s.props.Address}
}

// EmitterProperties implements emitter.PropertiesProvider.
func (s *Syslog) EmitterProperties() any {
	props := s.props
	props.Monitoring = props.Monitoring.live(s.Base)
	return props
}

// Start binds the listener and begins receiving. Bind failures are returned
// and mark the emitter faulted.
func (s *Syslog) Start(ctx context.Context) error {
	if err := s.Accepting.Start(ctx); err != nil {
		return err
	}
	if s.run.running() {
		return nil
	}

	var serve func(ctx context.Context) error
	switch s.props.Protocol {
	case "udp":
		conn, err := s.udpFactory("udp", s.props.Address)
		if err != nil {
			err = fmt.Errorf("listening on UDP: %w", err)
			s.Reject(err)
			return err
		}
		serve = func(ctx context.Context) error { return s.serveUDP(ctx, conn) }
	case "tcp":
		listener, err := s.tcpFactory("tcp", s.props.Address)
		if err != nil {
			err = fmt.Errorf("listening on TCP: %w", err)
			s.Reject(err)
			return err
		}
		serve = func(ctx context.Context) error { return s.serveTCP(ctx, listener) }
	default:
		return fmt.Errorf("unsupported syslog protocol: %s", s.props.Protocol)
	}

	s.run.start(ctx, serve, s.Reject)
	return nil
}

// Stop closes the listener and waits for the receive loop to exit.
func (s *Syslog) Stop(ctx context.Context) error {
	s.run.stop()
	return s.Accepting.Stop(ctx)
}

// Dispose stops receiving and releases the emitter.
func (s *Syslog) Dispose() {
	s.run.stop()
	s.Accepting.Dispose()
}

func (s *Syslog) serveUDP(ctx context.Context, conn net.PacketConn) error {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	buf := make([]byte, 65535) // Max UDP packet size
	for {
		n, remoteAddr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.Reject(fmt.Errorf("reading UDP: %w", err))
			continue
		}

		remote := ""
		if remoteAddr != nil {
			remote = remoteAddr.String()
		}
		s.Accept(parseSyslog(string(buf[:n]), "udp", remote))
	}
}

func (s *Syslog) serveTCP(ctx context.Context, listener net.Listener) error {
	defer listener.Close()
	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.Reject(fmt.Errorf("accepting TCP: %w", err))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleTCPConnection(ctx, conn)
		}()
	}
}

// handleTCPConnection reads newline framed messages from a TCP connection.
func (s *Syslog) handleTCPConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	remoteAddr := conn.RemoteAddr().String()
	scanner := bufio.NewScanner(conn)

	// Increase buffer size for long syslog messages
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		s.Accept(parseSyslog(scanner.Text(), "tcp", remoteAddr))
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		s.Reject(fmt.Errorf("reading from %s: %w", remoteAddr, err))
	}
}

// parseSyslog builds the event payload. The priority header of RFC 3164 and
// RFC 5424 messages is decoded into facility and severity when present.
func parseSyslog(raw, protocol, remoteAddr string) map[string]any {
	msg := map[string]any{
		"raw":         raw,
		"message":     strings.TrimSpace(raw),
		"protocol":    protocol,
		"remote_addr": remoteAddr,
	}

	if len(raw) == 0 || raw[0] != '<' {
		return msg
	}
	end := strings.Index(raw, ">")
	if end < 2 || end > 4 {
		return msg
	}
	priority, err := strconv.Atoi(raw[1:end])
	if err != nil || priority < 0 {
		return msg
	}

	facility := priority / 8
	severity := priority % 8

	msg["priority"] = priority
	msg["facility"] = facilityName(facility)
	msg["severity"] = severityName(severity)
	msg["message"] = strings.TrimSpace(raw[end+1:])
	return msg
}

// facilityName returns the human-readable facility name.
func facilityName(facility int) string {
	names := []string{
		"kern", "user", "mail", "daemon", "auth", "syslog", "lpr", "news",
		"uucp", "cron", "authpriv", "ftp", "ntp", "audit", "alert", "clock",
		"local0", "local1", "local2", "local3", "local4", "local5", "local6", "local7",
	}
	if facility >= 0 && facility < len(names) {
		return names[facility]
	}
	return "unknown"
}

// severityName returns the human-readable severity name.
func severityName(severity int) string {
	names := []string{
		"emerg", "alert", "crit", "err", "warning", "notice", "info", "debug",
	}
	if severity >= 0 && severity < len(names) {
		return names[severity]
	}
	return "unknown"
}
