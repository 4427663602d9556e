// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package localapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elnormous/contenttype"
)

// statusResponse is the JSON/SSE payload shape for GET /v1/status,
// covering Design Notes §9's isConnected/pairingState/pairedDevices/
// lastError observability requirement.
type statusResponse struct {
	PairingState string       `json:"pairingState"`
	Connected    bool         `json:"connected"`
	Devices      []deviceJSON `json:"devices"`
	LastError    string       `json:"lastError,omitempty"`
}

var statusMediaTypes = []contenttype.MediaType{
	contenttype.NewMediaType("application/json"),
	contenttype.NewMediaType("text/event-stream"),
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	accepted, _, err := contenttype.GetAcceptableMediaType(r, statusMediaTypes)
	if err == nil && accepted.String() == "text/event-stream" {
		s.streamStatus(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

// streamStatus serves GET /v1/status as Server-Sent Events: an initial
// snapshot, then one event per pairing/remote state transition.
func (s *Server) streamStatus(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeEvent := func(v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	writeEvent(s.snapshot())

	pairingCh := s.ctrl.PairingEvents.Subscribe()
	remoteCh := s.ctrl.RemoteEvents.Subscribe()
	defer s.ctrl.PairingEvents.Unsubscribe(pairingCh)
	defer s.ctrl.RemoteEvents.Unsubscribe(remoteCh)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-pairingCh:
			if !ok {
				return
			}
			writeEvent(s.snapshot())
		case _, ok := <-remoteCh:
			if !ok {
				return
			}
			writeEvent(s.snapshot())
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
