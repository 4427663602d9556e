// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package localapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atvremote/atvremote-go/internal/atverr"
	"github.com/atvremote/atvremote-go/internal/controller"
)

type deviceJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Host        string `json:"host"`
	ControlPort int    `json:"controlPort"`
	Paired      bool   `json:"paired"`
}

func deviceToDTO(d controller.Device) deviceJSON {
	return deviceJSON{ID: d.ID, Name: d.Name, Host: d.Host, ControlPort: d.ControlPort, Paired: d.Paired}
}

func devicesToDTO(devices []controller.Device) []deviceJSON {
	out := make([]deviceJSON, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceToDTO(d))
	}
	return out
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, devicesToDTO(s.ctrl.ListDevices()))
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.ctrl.RemovePaired(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendCommandRequest struct {
	KeyCode int `json:"keyCode"`
}

func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req sendCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if _, ok := s.ctrl.GetDevice(id); !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown device"))
		return
	}

	if !s.ctrl.IsConnectedTo(id) {
		if err := s.ctrl.Connect(r.Context(), id); err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
	}

	if err := s.ctrl.SendCommand(req.KeyCode); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, atverr.ErrNotConnected) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
