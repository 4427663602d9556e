// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package remote implements the persistent remote-control session of
// spec.md §4.6: the post-pairing TLS channel a controller uses to
// configure itself with the TV and inject key events.
package remote

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/atvremote/atvremote-go/internal/atverr"
	"github.com/atvremote/atvremote-go/internal/identity"
	"github.com/atvremote/atvremote-go/internal/wire"
)

const (
	handshakeTimeout = 10 * time.Second
	configureDelay   = 500 * time.Millisecond

	// rate-limit send_command as a pure abuse guard, not a throttle on
	// legitimate input: comfortably above D-pad/volume autorepeat rates
	// so every connected keypress still reaches the TV (SPEC_FULL.md
	// §4.6, spec.md §4.6 "delivered if connected").
	limiterRate  = 50
	limiterBurst = 20
)

// Session is the control-channel counterpart of pairing.Engine: one
// TLS connection, a background read-dispatch loop for ping/pong, and
// a rate-limited command path.
type Session struct {
	identity *identity.Manager
	events   *Broadcaster

	mu        sync.Mutex
	conn      *tls.Conn
	connected bool

	writeMu sync.Mutex
	limiter *rate.Limiter
}

// NewSession constructs a disconnected session backed by mgr for
// identity material, publishing connection-state changes on events.
func NewSession(mgr *identity.Manager, events *Broadcaster) *Session {
	return &Session{
		identity: mgr,
		events:   events,
		limiter:  rate.NewLimiter(rate.Limit(limiterRate), limiterBurst),
	}
}

// IsConnected reports whether the control channel is currently up.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Connect performs the connect sequence of spec.md §4.6: TLS dial,
// RemoteConfigure, a fixed delay, then RemoteSetActive.
func (s *Session) Connect(ctx context.Context, host string, port int, info DeviceInfo) error {
	cert, err := s.clientCertificate(ctx)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	dialer := tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			Certificates:       []tls.Certificate{cert},
			InsecureSkipVerify: true,
		},
	}
	rawConn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("remote: %w", atverr.NewConnectionFailed("TLS handshake failed", err))
	}
	conn := rawConn.(*tls.Conn)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := s.send(encodeRemoteConfigure(info)); err != nil {
		conn.Close()
		return err
	}

	select {
	case <-time.After(configureDelay):
	case <-ctx.Done():
		conn.Close()
		return fmt.Errorf("remote: %w", atverr.NewConnectionFailed(atverr.Cancelled, ctx.Err()))
	}

	if err := s.send(encodeRemoteSetActive()); err != nil {
		conn.Close()
		return err
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	slog.Info("remote session connected", "addr", addr)
	s.events.Publish(Event{Connected: true})

	go s.readLoop(conn)
	return nil
}

// SendCommand injects a short key press. A command issued on a dead
// session is silently ignored (spec.md §4.6, §7 NotConnected). The
// limiter only guards against runaway/abusive send rates; it is sized
// well above any realistic human or autorepeat input rate, so normal
// use never has a command dropped while connected. The two cases are
// still distinguished in the published event so an observer can tell a
// flood-drop apart from a disconnect.
func (s *Session) SendCommand(keyCode int) error {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return nil
	}
	if !s.limiter.Allow() {
		s.events.Publish(Event{Connected: true, Dropped: true})
		return nil
	}
	return s.send(encodeRemoteKeyInject(keyCode))
}

// Disconnect tears down the control channel, if any.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	wasConnected := s.connected
	s.connected = false
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if wasConnected {
		s.events.Publish(Event{Connected: false})
	}
}

func (s *Session) clientCertificate(ctx context.Context) (tls.Certificate, error) {
	certDER, ok := s.identity.GetClientCertificateDER(ctx)
	if !ok {
		return tls.Certificate{}, fmt.Errorf("remote: %w", atverr.ErrNoIdentity)
	}
	keyRaw, ok := s.identity.GetPrivateKeyRaw(ctx)
	if !ok {
		return tls.Certificate{}, fmt.Errorf("remote: %w", atverr.ErrNoIdentity)
	}
	key, err := x509.ParsePKCS1PrivateKey(keyRaw)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("remote: %w: parsing stored private key: %v", atverr.ErrNoIdentity, err)
	}
	return tls.Certificate{Certificate: [][]byte{certDER}, PrivateKey: key}, nil
}

func (s *Session) send(payload []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("remote: %w", atverr.ErrNotConnected)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := conn.Write(wire.Frame(payload)); err != nil {
		return fmt.Errorf("remote: %w", atverr.NewConnectionFailed("writing to the TV", err))
	}
	return nil
}

// readLoop is the receive-dispatch loop of spec.md §4.6: it reads
// frames until the connection fails and answers pings inline so a
// slow caller of SendCommand never blocks liveness.
func (s *Session) readLoop(conn *tls.Conn) {
	var recv wire.RecvBuffer
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			s.handleDisconnect(err)
			return
		}
		recv.Append(buf[:n])
		for {
			msg, ok := recv.Extract()
			if !ok {
				break
			}
			s.dispatch(msg)
		}
	}
}

func (s *Session) dispatch(msg []byte) {
	d := wire.NewDecoder(msg)
	for d.Len() > 0 {
		field, wt, ok := d.ReadTag()
		if !ok {
			return
		}
		if field == fieldPing && wt == wire.WireBytes {
			payload, err := d.ReadBytes()
			if err != nil {
				return
			}
			val, _ := readPingValue(payload)
			if err := s.send(encodePong(val)); err != nil {
				slog.Warn("remote: failed to reply to ping", "err", err)
			}
			continue
		}
		if !d.Skip(wt) {
			return
		}
	}
}

func (s *Session) handleDisconnect(cause error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = false
	s.conn = nil
	s.mu.Unlock()

	slog.Info("remote session disconnected", "err", cause)
	s.events.Publish(Event{
		Connected: false,
		Err:       fmt.Errorf("remote: %w", atverr.NewConnectionFailed("connection lost", cause)),
	})
}
