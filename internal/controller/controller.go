// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package controller is the façade of spec.md §4.7: it owns the
// paired-device list, the single active remote session, and the
// pairing engine, and is the one component the CLI and local control
// API talk to.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/atvremote/atvremote-go/internal/atverr"
	"github.com/atvremote/atvremote-go/internal/identity"
	"github.com/atvremote/atvremote-go/internal/pairing"
	"github.com/atvremote/atvremote-go/internal/remote"
	"github.com/atvremote/atvremote-go/internal/store"
)

// Device is a TV the controller knows about, paired or not
// (spec.md §3 TVDevice).
type Device struct {
	ID          string // host:port
	Name        string
	Host        string
	ControlPort int
	PairingPort int
	Paired      bool
	PairedAt    time.Time
}

// Controller holds the paired-device list, the active RemoteSession
// (at most one), and the Pairing engine, per spec.md §4.7.
type Controller struct {
	identity *identity.Manager
	devices  *store.DeviceStore
	info     remote.DeviceInfo

	PairingEvents *pairing.Broadcaster
	RemoteEvents  *remote.Broadcaster

	mu             sync.Mutex
	byID           map[string]Device
	pairingEngine  *pairing.Engine
	remoteSession  *remote.Session
	activeDeviceID string
	lastErr        error
}

// New constructs a Controller and loads the persisted device list.
func New(ctx context.Context, mgr *identity.Manager, devices *store.DeviceStore, info remote.DeviceInfo) (*Controller, error) {
	c := &Controller{
		identity:      mgr,
		devices:       devices,
		info:          info,
		PairingEvents: pairing.NewBroadcaster(),
		RemoteEvents:  remote.NewBroadcaster(),
		byID:          make(map[string]Device),
	}

	rows, err := devices.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("controller: loading persisted devices: %w", err)
	}
	for _, row := range rows {
		c.byID[row.ID] = deviceFromRow(row)
	}
	return c, nil
}

// ListDevices returns every known device, paired or not, sorted by ID.
func (c *Controller) ListDevices() []Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Device, 0, len(c.byID))
	for _, d := range c.byID {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetDevice looks up a single known device by ID.
func (c *Controller) GetDevice(id string) (Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.byID[id]
	return d, ok
}

// AddPaired records d as paired and persists it, per spec.md §4.7
// add_paired.
func (c *Controller) AddPaired(ctx context.Context, d Device) error {
	d.Paired = true
	if d.PairedAt.IsZero() {
		d.PairedAt = time.Now()
	}
	c.mu.Lock()
	c.byID[d.ID] = d
	c.mu.Unlock()

	if err := c.devices.Upsert(ctx, deviceToRow(d)); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	return nil
}

// RemovePaired forgets a device, disconnecting first if it is the
// active session (spec.md §4.7 remove_paired). Removing a device that
// was never persisted (ImportDevices can add unpaired ones) or already
// gone from the store is not an error: the in-memory list is the
// source of truth for this call, and it has already been updated.
func (c *Controller) RemovePaired(ctx context.Context, id string) error {
	c.mu.Lock()
	isActive := c.activeDeviceID == id
	c.mu.Unlock()
	if isActive {
		c.Disconnect()
	}

	c.mu.Lock()
	delete(c.byID, id)
	c.mu.Unlock()

	if err := c.devices.Delete(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("controller: %w", err)
	}
	return nil
}

// Connect opens a remote session to a known, paired device, closing
// any existing session first (spec.md §5: "pairing closes fully
// before a control session opens").
func (c *Controller) Connect(ctx context.Context, id string) error {
	d, ok := c.GetDevice(id)
	if !ok {
		return fmt.Errorf("controller: unknown device %q", id)
	}
	if !d.Paired {
		return fmt.Errorf("controller: device %q is not paired", id)
	}

	c.Disconnect()

	session := remote.NewSession(c.identity, c.RemoteEvents)
	if err := session.Connect(ctx, d.Host, d.ControlPort, c.info); err != nil {
		c.recordErr(err)
		return fmt.Errorf("controller: %w", err)
	}

	c.mu.Lock()
	c.remoteSession = session
	c.activeDeviceID = id
	c.mu.Unlock()
	return nil
}

// Disconnect tears down the active remote session, if any.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	session := c.remoteSession
	c.remoteSession = nil
	c.activeDeviceID = ""
	c.mu.Unlock()
	if session != nil {
		session.Disconnect()
	}
}

// IsConnectedTo reports whether the active remote session, if any, is
// a live connection to the device identified by id. The local control
// API's send endpoint uses this to decide whether it needs to (re)dial
// before injecting a key, without tearing down a session that is
// already up.
func (c *Controller) IsConnectedTo(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeDeviceID == id && c.remoteSession != nil && c.remoteSession.IsConnected()
}

// SendCommand injects a key press on the active session.
func (c *Controller) SendCommand(keyCode int) error {
	c.mu.Lock()
	session := c.remoteSession
	c.mu.Unlock()
	if session == nil || !session.IsConnected() {
		return fmt.Errorf("controller: %w", atverr.ErrNotConnected)
	}
	return session.SendCommand(keyCode)
}

// StartPairing begins pairing with a TV on its pairing port,
// cancelling any pairing already in flight (spec.md §8 invariant 9).
func (c *Controller) StartPairing(ctx context.Context, host string, port int) error {
	c.mu.Lock()
	if c.pairingEngine != nil {
		c.pairingEngine.Cancel()
	}
	engine := pairing.NewEngine(c.identity, c.PairingEvents)
	c.pairingEngine = engine
	c.mu.Unlock()

	if err := engine.StartPairing(ctx, host, port); err != nil {
		c.recordErr(err)
		return err
	}
	return nil
}

// SubmitCode completes pairing with the user-entered PIN and, on
// success, adds device to the paired list (spec.md §4.7 submit_code).
func (c *Controller) SubmitCode(ctx context.Context, device Device, code string) error {
	c.mu.Lock()
	engine := c.pairingEngine
	c.mu.Unlock()
	if engine == nil {
		return fmt.Errorf("controller: %w: no pairing in progress", atverr.ErrNotConnected)
	}

	if err := engine.SubmitCode(ctx, code); err != nil {
		c.recordErr(err)
		return err
	}
	return c.AddPaired(ctx, device)
}

// CancelPairing cancels any pairing in flight (controller-level
// equivalent of pairing.Engine.Cancel, usable without a reference to
// the engine).
func (c *Controller) CancelPairing() {
	c.mu.Lock()
	engine := c.pairingEngine
	c.mu.Unlock()
	if engine != nil {
		engine.Cancel()
	}
}

// LastError returns the most recently recorded terminal error, for
// the Design Notes' lastError observability field.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) recordErr(err error) {
	slog.Error("controller operation failed", "err", err)
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// persistedDevice is the JSON interchange shape of spec.md §6:
// {id, name, host, port, isPaired}.
type persistedDevice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	IsPaired bool   `json:"isPaired"`
}

// ExportDevices renders the known device list in the persisted-state
// JSON shape.
func (c *Controller) ExportDevices() ([]byte, error) {
	devices := c.ListDevices()
	out := make([]persistedDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, persistedDevice{ID: d.ID, Name: d.Name, Host: d.Host, Port: d.ControlPort, IsPaired: d.Paired})
	}
	return json.Marshal(out)
}

// ImportDevices loads devices from the persisted-state JSON shape,
// marking any with isPaired=true as paired.
func (c *Controller) ImportDevices(ctx context.Context, data []byte) error {
	var in []persistedDevice
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("controller: parsing persisted state: %w", err)
	}
	for _, jd := range in {
		d := Device{ID: jd.ID, Name: jd.Name, Host: jd.Host, ControlPort: jd.Port}
		if jd.IsPaired {
			if err := c.AddPaired(ctx, d); err != nil {
				return err
			}
			continue
		}
		c.mu.Lock()
		c.byID[d.ID] = d
		c.mu.Unlock()
	}
	return nil
}

func deviceFromRow(row store.PairedDevice) Device {
	d := Device{ID: row.ID, Name: row.Name, Host: row.Host, ControlPort: row.ControlPort, Paired: row.Paired}
	if row.PairedAt != nil {
		d.PairedAt = *row.PairedAt
	}
	return d
}

func deviceToRow(d Device) store.PairedDevice {
	row := store.PairedDevice{ID: d.ID, Name: d.Name, Host: d.Host, ControlPort: d.ControlPort, Paired: d.Paired}
	if !d.PairedAt.IsZero() {
		pairedAt := d.PairedAt
		row.PairedAt = &pairedAt
	}
	return row
}
