// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package localapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/atvremote/atvremote-go/internal/controller"
)

type startPairingRequest struct {
	Host        string `json:"host"`
	PairingPort int    `json:"pairingPort"`
	ControlPort int    `json:"controlPort"`
	Name        string `json:"name"`
}

type startPairingResponse struct {
	ID string `json:"id"`
}

// handleStartPairing begins a pairing handshake and remembers the
// device metadata under an ID the caller passes back to
// POST /v1/pair/{id}/code once the user has read the on-screen PIN.
func (s *Server) handleStartPairing(w http.ResponseWriter, r *http.Request) {
	var req startPairingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Host == "" || req.PairingPort == 0 {
		writeError(w, http.StatusBadRequest, errors.New("host and pairingPort are required"))
		return
	}

	id := net.JoinHostPort(req.Host, strconv.Itoa(req.PairingPort))
	d := controller.Device{
		ID:          net.JoinHostPort(req.Host, strconv.Itoa(req.ControlPort)),
		Name:        req.Name,
		Host:        req.Host,
		ControlPort: req.ControlPort,
		PairingPort: req.PairingPort,
	}
	s.rememberPending(id, d)

	if err := s.ctrl.StartPairing(r.Context(), req.Host, req.PairingPort); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusAccepted, startPairingResponse{ID: id})
}

type submitCodeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleSubmitCode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	device, ok := s.takePending(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no pairing in progress for this id"))
		return
	}

	var req submitCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.ctrl.SubmitCode(r.Context(), device, req.Code); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	paired, _ := s.ctrl.GetDevice(device.ID)
	writeJSON(w, http.StatusOK, deviceToDTO(paired))
}
