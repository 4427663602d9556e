// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package pairing

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/atvremote/atvremote-go/internal/atverr"
	"github.com/atvremote/atvremote-go/internal/certbuilder"
	"github.com/atvremote/atvremote-go/internal/identity"
	"github.com/atvremote/atvremote-go/internal/rsakey"
	"github.com/atvremote/atvremote-go/internal/store"
	"github.com/atvremote/atvremote-go/internal/wire"
)

// memStore is a minimal in-memory identity.Store for tests.
type memStore struct {
	certDER []byte
	keyDER  []byte
	exists  bool
}

func (m *memStore) Load(ctx context.Context) ([]byte, []byte, int, error) {
	if !m.exists {
		return nil, nil, 0, store.ErrNotFound
	}
	return m.certDER, m.keyDER, identity.CurrentFormatVersion, nil
}

func (m *memStore) Save(ctx context.Context, certDER, keyDER []byte, version int) error {
	m.certDER, m.keyDER, m.exists = certDER, keyDER, true
	return nil
}

func (m *memStore) Delete(ctx context.Context) error {
	m.exists = false
	return nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	mgr, err := identity.NewManager(context.Background(), &memStore{})
	if err != nil {
		t.Fatalf("identity.NewManager: %v", err)
	}
	return NewEngine(mgr, NewBroadcaster())
}

func TestNormalizePIN(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"a1b2", "A1B2", false},
		{"A1 B2", "A1B2", false},
		{"A", "", true},
		{"A1B", "", true},
		{"GHIJ", "", true},
	}
	for _, c := range cases {
		got, err := normalizePIN(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("normalizePIN(%q): expected error", c.in)
			}
			continue
		}
		if err != nil || got != c.want {
			t.Errorf("normalizePIN(%q) = (%q, %v), want (%q, nil)", c.in, got, err, c.want)
		}
	}
}

// TestComputeSecretCheckByte exercises scenario S4.
func TestComputeSecretCheckByte(t *testing.T) {
	clientMod := []byte{0x01}
	clientExp := []byte{0x01, 0x00, 0x01}
	serverMod := []byte{0x02}
	serverExp := []byte{0x01, 0x00, 0x01}
	codeBytes, err := pinToBytes("A1B2")
	if err != nil {
		t.Fatalf("pinToBytes: %v", err)
	}

	h := sha256.New()
	h.Write(clientMod)
	h.Write(clientExp)
	h.Write(serverMod)
	h.Write(serverExp)
	h.Write(codeBytes)
	want := h.Sum(nil)

	secret, err := computeSecret(clientMod, clientExp, serverMod, serverExp, codeBytes)
	if codeBytes[0] == want[0] {
		if err != nil {
			t.Fatalf("computeSecret: expected acceptance, got %v", err)
		}
		if secret[0] != codeBytes[0] {
			t.Fatalf("secret[0] = 0x%02X, want 0x%02X", secret[0], codeBytes[0])
		}
	} else {
		if !errors.Is(err, atverr.ErrSecretMismatch) {
			t.Fatalf("computeSecret: expected ErrSecretMismatch, got %v", err)
		}
	}

	// A PIN whose first byte cannot match is always rejected locally.
	flipped := append([]byte(nil), codeBytes...)
	flipped[0] ^= 0xFF
	if _, err := computeSecret(clientMod, clientExp, serverMod, serverExp, flipped); !errors.Is(err, atverr.ErrSecretMismatch) {
		t.Fatalf("computeSecret(flipped): expected ErrSecretMismatch, got %v", err)
	}
}

func TestDecodeEnvelopeRequiresStatus(t *testing.T) {
	if _, err := decodeEnvelope(nil); !errors.Is(err, atverr.ErrInvalidResponse) {
		t.Fatalf("decodeEnvelope(nil): expected ErrInvalidResponse, got %v", err)
	}
}

func TestEncodeDecodePairingConfiguration(t *testing.T) {
	encoding := wire.NewEncoder().AddVarint(1, encodingHexadecimal).AddVarint(2, symbolLength)
	config := wire.NewEncoder().AddMessage(1, encoding).AddMessage(2, encoding)
	msg := envelopeEncoder().AddMessage(fieldPairingConfiguration, config).Bytes()

	env, err := decodeEnvelope(msg)
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if env.status != statusOK {
		t.Fatalf("status = %d, want %d", env.status, statusOK)
	}
	if !env.configPresent {
		t.Fatalf("expected configPresent = true")
	}
	if !env.configEncodingKnown || env.configEncodingType != encodingHexadecimal {
		t.Fatalf("configEncoding = (%v, %d), want (true, %d)", env.configEncodingKnown, env.configEncodingType, encodingHexadecimal)
	}
}

func TestCancelFromIdleIsNoop(t *testing.T) {
	e := newTestEngine(t)
	e.Cancel()
	if e.State() != Idle {
		t.Fatalf("state = %v, want Idle", e.State())
	}
}

func TestCancelPublishesEventAndReturnsIdle(t *testing.T) {
	e := newTestEngine(t)
	events := e.events.Subscribe()

	e.mu.Lock()
	e.state = WaitingForCode
	e.mu.Unlock()

	e.Cancel()

	if e.State() != Idle {
		t.Fatalf("state after Cancel = %v, want Idle", e.State())
	}
	select {
	case ev := <-events:
		if ev.State != Idle || !atverr.IsCancelled(ev.Err) {
			t.Fatalf("event = %+v, want Idle/Cancelled", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a cancellation event")
	}
}

func TestSubmitCodeRequiresWaitingForCode(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SubmitCode(context.Background(), "A1B2"); err == nil {
		t.Fatalf("expected an error submitting a code from Idle")
	}
}

// TestPairingHappyPath drives the full six-message handshake (S5)
// against a TLS server that plays the TV's side of the protocol.
func TestPairingHappyPath(t *testing.T) {
	serverKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	serverCertDER, err := certbuilder.BuildSelfSigned(serverKey)
	if err != nil {
		t.Fatalf("BuildSelfSigned: %v", err)
	}

	listener, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{serverCertDER}, PrivateKey: serverKey}},
		ClientAuth:   tls.RequireAnyClientCert,
	})
	if err != nil {
		t.Fatalf("tls.Listen: %v", err)
	}
	defer listener.Close()

	e := newTestEngine(t)
	events := e.events.Subscribe()

	host, portStr, _ := net.SplitHostPort(listener.Addr().String())
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing port: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// A real TV derives the PIN it displays from the same hash the
	// client's check-byte preflight demands, so the two always agree.
	// Reproduce that here instead of hard-coding a PIN: force the
	// client identity into existence up front, then find the code
	// bytes whose own first byte matches the resulting secret's first
	// byte, the way computeSecret requires.
	clientCertDER, ok := e.identity.GetClientCertificateDER(ctx)
	if !ok {
		t.Fatalf("client certificate not available")
	}
	pin, codeBytes := derivePIN(t, serverMod(t, clientCertDER), serverMod(t, serverCertDER))

	serverErr := make(chan error, 1)
	go func() { serverErr <- runFakeTVPairing(t, listener, serverCertDER, codeBytes) }()

	if err := e.StartPairing(ctx, host, port); err != nil {
		t.Fatalf("StartPairing: %v", err)
	}
	if e.State() != WaitingForCode {
		t.Fatalf("state = %v, want WaitingForCode", e.State())
	}

	if err := e.SubmitCode(ctx, pin); err != nil {
		t.Fatalf("SubmitCode: %v", err)
	}
	if e.State() != Success {
		t.Fatalf("state = %v, want Success", e.State())
	}

	if err := <-serverErr; err != nil {
		t.Fatalf("fake TV: %v", err)
	}

	var sawWaitingForCode, sawSuccess bool
drain:
	for {
		select {
		case ev := <-events:
			switch ev.State {
			case WaitingForCode:
				sawWaitingForCode = true
			case Success:
				sawSuccess = true
			}
		default:
			break drain
		}
	}
	if !sawWaitingForCode || !sawSuccess {
		t.Fatalf("missing expected events: waitingForCode=%v success=%v", sawWaitingForCode, sawSuccess)
	}
}

func serverMod(t *testing.T, certDER []byte) []byte {
	t.Helper()
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("x509.ParseCertificate: %v", err)
	}
	pub := cert.PublicKey.(*rsa.PublicKey)
	mod, _, err := rsakey.ParsePublicKey(x509.MarshalPKCS1PublicKey(pub))
	if err != nil {
		t.Fatalf("rsakey.ParsePublicKey: %v", err)
	}
	return mod
}

// derivePIN brute-forces the 2-byte code whose own first byte equals
// the first byte of the secret it produces, mirroring how a real TV's
// displayed PIN and the client's check-byte preflight stay consistent
// (the TV effectively derives the PIN from the same hash). Exhausting
// both bytes makes finding a match overwhelmingly likely.
func derivePIN(t *testing.T, clientMod, srvMod []byte) (pin string, codeBytes []byte) {
	t.Helper()
	exp := []byte{0x01, 0x00, 0x01}
	for b0 := 0; b0 < 256; b0++ {
		for b1 := 0; b1 < 256; b1++ {
			candidate := []byte{byte(b0), byte(b1)}
			h := sha256.New()
			h.Write(clientMod)
			h.Write(exp)
			h.Write(srvMod)
			h.Write(exp)
			h.Write(candidate)
			secret := h.Sum(nil)
			if secret[0] == candidate[0] {
				return fmt.Sprintf("%02X%02X", candidate[0], candidate[1]), candidate
			}
		}
	}
	t.Fatal("derivePIN: no code bytes found with a matching check byte")
	return "", nil
}

// runFakeTVPairing accepts a single connection and plays the TV's
// side of the handshake: ack PairingRequest, ack PairingOption with a
// PairingConfiguration, then verify and ack PairingSecret against
// codeBytes (the PIN derivePIN chose for this run).
func runFakeTVPairing(t *testing.T, listener net.Listener, serverCertDER, codeBytes []byte) error {
	conn, err := listener.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()

	var recv wire.RecvBuffer
	readFrame := func() ([]byte, error) {
		for {
			if msg, ok := recv.Extract(); ok {
				return msg, nil
			}
			buf := make([]byte, 4096)
			n, err := conn.Read(buf)
			if err != nil {
				return nil, err
			}
			recv.Append(buf[:n])
		}
	}
	writeFrame := func(payload []byte) error {
		_, err := conn.Write(wire.Frame(payload))
		return err
	}

	// PairingRequest -> ack.
	if _, err := readFrame(); err != nil {
		return err
	}
	if err := writeFrame(envelopeEncoder().Bytes()); err != nil {
		return err
	}

	// PairingOption -> ack + PairingConfiguration.
	if _, err := readFrame(); err != nil {
		return err
	}
	encoding := wire.NewEncoder().AddVarint(1, encodingHexadecimal).AddVarint(2, symbolLength)
	config := wire.NewEncoder().AddMessage(1, encoding).AddMessage(2, encoding)
	if err := writeFrame(envelopeEncoder().AddMessage(fieldPairingConfiguration, config).Bytes()); err != nil {
		return err
	}

	// PairingSecret -> validate against what the client should have
	// computed, then ack.
	secretMsg, err := readFrame()
	if err != nil {
		return err
	}
	d := wire.NewDecoder(secretMsg)
	var gotSecret []byte
	for d.Len() > 0 {
		field, wt, ok := d.ReadTag()
		if !ok {
			break
		}
		if field == fieldPairingSecret && wt == wire.WireBytes {
			payload, err := d.ReadBytes()
			if err != nil {
				return err
			}
			pd := wire.NewDecoder(payload)
			for pd.Len() > 0 {
				pf, pwt, ok := pd.ReadTag()
				if !ok {
					break
				}
				if pf == 1 && pwt == wire.WireBytes {
					gotSecret, _ = pd.ReadBytes()
				} else {
					pd.Skip(pwt)
				}
			}
		} else {
			d.Skip(wt)
		}
	}

	tlsConn := conn.(*tls.Conn)
	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		t.Errorf("fake TV: no client certificate presented")
	}
	clientMod := serverMod(t, state.PeerCertificates[0].Raw)
	ourMod := serverMod(t, serverCertDER)

	h := sha256.New()
	h.Write(clientMod)
	h.Write([]byte{0x01, 0x00, 0x01})
	h.Write(ourMod)
	h.Write([]byte{0x01, 0x00, 0x01})
	h.Write(codeBytes)
	want := h.Sum(nil)
	if len(gotSecret) != len(want) || string(gotSecret) != string(want) {
		t.Errorf("fake TV: secret mismatch")
	}

	return writeFrame(envelopeEncoder().Bytes())
}
