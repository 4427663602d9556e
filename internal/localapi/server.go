// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package localapi is the loopback-only HTTP surface in front of
// internal/controller, per SPEC_FULL.md §4.7: GET /v1/status (JSON or
// SSE), GET /v1/devices, POST /v1/pair, POST /v1/pair/{id}/code, POST
// /v1/devices/{id}/send, DELETE /v1/devices/{id}. It has no bearing on
// the Android TV Remote wire protocol itself.
package localapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/atvremote/atvremote-go/internal/controller"
	"github.com/atvremote/atvremote-go/internal/pairing"
)

// Server owns the HTTP listener and a live snapshot of pairing state,
// connection state, and last error, kept current by subscribing to
// both broadcasters. GET /v1/status reads those fields from this
// snapshot; its device list still comes from controller.ListDevices.
type Server struct {
	ctrl *controller.Controller
	srv  *http.Server

	mu           sync.Mutex
	pairingState pairing.State
	connected    bool
	lastErr      error

	pendingMu sync.Mutex
	pending   map[string]controller.Device
}

// NewServer builds a Server bound to addr (expected to be a loopback
// address; SPEC_FULL.md §6 does not require enforcing this in code,
// only documenting it as the deployment contract).
func NewServer(addr string, ctrl *controller.Controller) *Server {
	s := &Server{
		ctrl:    ctrl,
		pending: make(map[string]controller.Device),
	}
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	return s
}

// Start runs the HTTP server until ctx is cancelled or SIGINT/SIGTERM
// is received, then shuts down gracefully. Grounded on the teacher's
// cmd/fdo_server/server.go Start() lifecycle.
func (s *Server) Start(ctx context.Context) error {
	stopWatch, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go s.watchEvents(stopWatch)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("local control API listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-stopWatch.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	slog.Info("shutting down local control API")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// watchEvents keeps the snapshot fields current for GET /v1/status's
// JSON response, per Design Notes §9's "without polling" requirement
// applied to this server's own view of the world.
func (s *Server) watchEvents(ctx context.Context) {
	pairingCh := s.ctrl.PairingEvents.Subscribe()
	remoteCh := s.ctrl.RemoteEvents.Subscribe()
	defer s.ctrl.PairingEvents.Unsubscribe(pairingCh)
	defer s.ctrl.RemoteEvents.Unsubscribe(remoteCh)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-pairingCh:
			if !ok {
				return
			}
			s.mu.Lock()
			s.pairingState = ev.State
			if ev.Err != nil {
				s.lastErr = ev.Err
			}
			s.mu.Unlock()
		case ev, ok := <-remoteCh:
			if !ok {
				return
			}
			s.mu.Lock()
			s.connected = ev.Connected
			if ev.Err != nil {
				s.lastErr = ev.Err
			}
			s.mu.Unlock()
		}
	}
}

func (s *Server) snapshot() statusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := statusResponse{
		PairingState: s.pairingState.String(),
		Connected:    s.connected,
		Devices:      devicesToDTO(s.ctrl.ListDevices()),
	}
	if s.lastErr != nil {
		resp.LastError = s.lastErr.Error()
	}
	return resp
}

func (s *Server) rememberPending(id string, d controller.Device) {
	s.pendingMu.Lock()
	s.pending[id] = d
	s.pendingMu.Unlock()
}

func (s *Server) takePending(id string) (controller.Device, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	d, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	return d, ok
}
