// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package pairing drives the PIN-bound pairing handshake of spec.md
// §4.5: a mutual-TLS connection on which the client and TV exchange a
// fixed sequence of envelopes, ending in a SHA-256 secret derived from
// both peers' RSA public keys and the PIN shown on screen.
package pairing

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

	"github.com/google/uuid"

	"github.com/atvremote/atvremote-go/internal/atverr"
	"github.com/atvremote/atvremote-go/internal/identity"
	"github.com/atvremote/atvremote-go/internal/wire"
)

const (
	handshakeTimeout = 10 * time.Second
	messageTimeout   = 10 * time.Second
	clientName       = "atvremote-go"
)

// Engine runs exactly one pairing attempt at a time. Constructing a
// new pairing session (via the controller) cancels any engine already
// in flight, per spec.md §8 invariant 9.
type Engine struct {
	identity *identity.Manager
	events   *Broadcaster

	mu                    sync.Mutex
	state                 State
	sessionID             string
	cancelled             bool
	conn                  *tls.Conn
	recv                  wire.RecvBuffer
	clientCertDER         []byte
	capturedServerCertDER []byte
}

// NewEngine constructs an idle pairing engine backed by mgr for
// identity material, publishing every state transition on events.
func NewEngine(mgr *identity.Manager, events *Broadcaster) *Engine {
	return &Engine{identity: mgr, events: events, state: Idle}
}

// State reports the engine's current position in the state graph.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// StartPairing dials the TV's pairing port and drives the handshake
// through PairingRequest and PairingOption, leaving the engine in
// WaitingForCode on success.
func (e *Engine) StartPairing(ctx context.Context, host string, port int) error {
	e.mu.Lock()
	e.cancelled = false
	e.sessionID = uuid.NewString()
	sessionID := e.sessionID
	e.mu.Unlock()

	e.setState(Connecting, nil)

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := e.dial(ctx, addr)
	if err != nil {
		return e.fail(err)
	}

	e.mu.Lock()
	e.conn = conn
	e.recv = wire.RecvBuffer{}
	e.mu.Unlock()

	slog.Info("pairing started", "session_id", sessionID, "addr", addr)

	if err := e.send(encodePairingRequest(clientName)); err != nil {
		return e.fail(err)
	}
	ack, err := e.waitForMessage(ctx)
	if err != nil {
		return e.fail(err)
	}
	if ack.status != statusOK {
		return e.fail(fmt.Errorf("pairing: %w: PairingRequest rejected with status %d", atverr.ErrPairingRejected, ack.status))
	}

	if err := e.send(encodePairingOption()); err != nil {
		return e.fail(err)
	}
	cfg, err := e.waitForMessage(ctx)
	if err != nil {
		return e.fail(err)
	}
	if cfg.status != statusOK {
		return e.fail(fmt.Errorf("pairing: %w: PairingOption rejected with status %d", atverr.ErrPairingRejected, cfg.status))
	}
	if !cfg.configPresent {
		return e.fail(fmt.Errorf("pairing: %w: no PairingConfiguration in response", atverr.ErrInvalidResponse))
	}
	if cfg.configEncodingKnown && cfg.configEncodingType != encodingHexadecimal {
		return e.fail(fmt.Errorf("pairing: %w: server selected unsupported encoding %d", atverr.ErrInvalidResponse, cfg.configEncodingType))
	}

	slog.Info("pairing awaiting code", "session_id", sessionID)
	e.setState(WaitingForCode, nil)
	return nil
}

// SubmitCode computes the pairing secret from the on-screen PIN and
// completes the handshake, per spec.md §4.5.
func (e *Engine) SubmitCode(ctx context.Context, pin string) error {
	e.mu.Lock()
	state := e.state
	clientCertDER := e.clientCertDER
	serverCertDER := e.capturedServerCertDER
	sessionID := e.sessionID
	e.mu.Unlock()

	if state != WaitingForCode {
		return fmt.Errorf("pairing: cannot submit a code from state %s", state)
	}
	e.setState(Verifying, nil)

	if len(serverCertDER) == 0 {
		return e.fail(fmt.Errorf("pairing: %w", atverr.ErrServerCertNotAvailable))
	}

	normalized, err := normalizePIN(pin)
	if err != nil {
		return e.fail(err)
	}
	codeBytes, err := pinToBytes(normalized)
	if err != nil {
		return e.fail(err)
	}

	clientMod, clientExp, err := rsaComponents(clientCertDER)
	if err != nil {
		return e.fail(err)
	}
	serverMod, serverExp, err := rsaComponents(serverCertDER)
	if err != nil {
		return e.fail(err)
	}

	secret, err := computeSecret(clientMod, clientExp, serverMod, serverExp, codeBytes)
	if err != nil {
		return e.fail(fmt.Errorf("pairing: %w", err))
	}

	if err := e.send(encodePairingSecret(secret)); err != nil {
		return e.fail(err)
	}
	ack, err := e.waitForMessage(ctx)
	if err != nil {
		return e.fail(err)
	}
	if ack.status != statusOK {
		return e.fail(fmt.Errorf("pairing: %w: PairingSecret rejected with status %d", atverr.ErrPairingRejected, ack.status))
	}

	slog.Info("pairing succeeded", "session_id", sessionID)
	e.setState(Success, nil)
	e.teardown()
	return nil
}

// Cancel tears down any in-progress pairing and returns the engine to
// Idle, failing any outstanding wait with ConnectionFailed("Cancelled")
// (spec.md §5).
func (e *Engine) Cancel() {
	e.mu.Lock()
	if e.state == Idle {
		e.mu.Unlock()
		return
	}
	e.cancelled = true
	conn := e.conn
	e.conn = nil
	e.state = Idle
	sessionID := e.sessionID
	e.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	slog.Info("pairing cancelled", "session_id", sessionID)
	e.events.Publish(Event{SessionID: sessionID, State: Idle, Err: atverr.NewConnectionFailed(atverr.Cancelled, nil)})
}

func (e *Engine) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

func (e *Engine) setState(s State, err error) {
	e.mu.Lock()
	if e.cancelled && s != Idle {
		e.mu.Unlock()
		return
	}
	e.state = s
	sessionID := e.sessionID
	e.mu.Unlock()
	e.events.Publish(Event{SessionID: sessionID, State: s, Err: err})
}

func (e *Engine) fail(err error) error {
	e.setState(Failed, err)
	e.teardown()
	return err
}

func (e *Engine) teardown() {
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// dial opens the mutual-TLS connection and arranges for the server's
// leaf certificate to be captured during the handshake, per Design
// Notes' "Captured-cert side channel".
func (e *Engine) dial(ctx context.Context, addr string) (*tls.Conn, error) {
	cert, certDER, err := e.clientCertificate(ctx)
	if err != nil {
		return nil, err
	}

	var captured []byte
	cfg := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) > 0 {
				captured = append([]byte(nil), rawCerts[0]...)
			}
			return nil
		},
	}

	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	dialer := tls.Dialer{NetDialer: &net.Dialer{}, Config: cfg}
	conn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("pairing: %w", atverr.NewConnectionFailed("TLS handshake failed", err))
	}

	e.mu.Lock()
	e.clientCertDER = certDER
	e.capturedServerCertDER = captured
	e.mu.Unlock()

	return conn.(*tls.Conn), nil
}

func (e *Engine) clientCertificate(ctx context.Context) (tls.Certificate, []byte, error) {
	certDER, ok := e.identity.GetClientCertificateDER(ctx)
	if !ok {
		return tls.Certificate{}, nil, fmt.Errorf("pairing: %w", atverr.ErrNoIdentity)
	}
	keyRaw, ok := e.identity.GetPrivateKeyRaw(ctx)
	if !ok {
		return tls.Certificate{}, nil, fmt.Errorf("pairing: %w", atverr.ErrNoIdentity)
	}
	key, err := x509.ParsePKCS1PrivateKey(keyRaw)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("pairing: %w: parsing stored private key: %v", atverr.ErrNoIdentity, err)
	}
	return tls.Certificate{Certificate: [][]byte{certDER}, PrivateKey: key}, certDER, nil
}

func (e *Engine) send(payload []byte) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("pairing: %w", atverr.ErrNotConnected)
	}
	if _, err := conn.Write(wire.Frame(payload)); err != nil {
		return e.connFailed("writing to the TV", err)
	}
	return nil
}

// waitForMessage blocks for the next complete envelope, enforcing the
// 10-second ceiling of spec.md §4.5 "Timeouts".
func (e *Engine) waitForMessage(ctx context.Context) (envelope, error) {
	waitCtx, cancel := context.WithTimeout(ctx, messageTimeout)
	defer cancel()

	for {
		if msg, ok := e.recv.Extract(); ok {
			return decodeEnvelope(msg)
		}
		if err := e.readMore(waitCtx); err != nil {
			return envelope{}, err
		}
	}
}

func (e *Engine) readMore(ctx context.Context) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("pairing: %w", atverr.ErrNotConnected)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("pairing: %w", atverr.ErrTimeout)
		}
		return e.connFailed("reading from the TV", err)
	}
	e.recv.Append(buf[:n])
	return nil
}

func (e *Engine) connFailed(reason string, cause error) error {
	if e.isCancelled() {
		return fmt.Errorf("pairing: %w", atverr.NewConnectionFailed(atverr.Cancelled, cause))
	}
	return fmt.Errorf("pairing: %w", atverr.NewConnectionFailed(reason, cause))
}
