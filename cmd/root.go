// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package cmd is the atvremote CLI: cobra commands wiring
// internal/config, internal/controller, and internal/localapi
// together the way the teacher's cmd package wires its server roles.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atvremote/atvremote-go/internal/config"
	"github.com/atvremote/atvremote-go/internal/controller"
	"github.com/atvremote/atvremote-go/internal/identity"
	"github.com/atvremote/atvremote-go/internal/remote"
	"github.com/atvremote/atvremote-go/internal/store"
)

var cfgFile string

var cfg *config.Config
var ctrl *controller.Controller

var rootCmd = &cobra.Command{
	Use:   "atvremote",
	Short: "A client for the Android TV Remote Control v2 protocol",
	Long: `atvremote pairs with and sends key presses to Android TVs over
the Android TV Remote Control v2 protocol: mutual-TLS pairing bound to
an on-screen PIN, followed by a persistent control session.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command; main calls this and exits non-zero on
// error.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
}

// setup loads configuration, installs logging, and builds the
// controller façade shared by every subcommand.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	loaded.Log.Apply()
	cfg = loaded

	db, err := cfg.DB.GetDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	state, err := store.Open(db)
	if err != nil {
		return fmt.Errorf("initializing persistence: %w", err)
	}

	mgr, err := identity.NewManager(context.Background(), state.Identity)
	if err != nil {
		return fmt.Errorf("initializing identity store: %w", err)
	}

	info := remote.DeviceInfo{
		Model:     cfg.Client.DeviceModel,
		Vendor:    cfg.Client.DeviceVendor,
		PackageID: cfg.Client.PackageID,
	}
	ctrl, err = controller.New(context.Background(), mgr, state.Devices, info)
	if err != nil {
		return fmt.Errorf("initializing controller: %w", err)
	}
	return nil
}
