// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/atvremote/atvremote-go/internal/localapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the loopback local control API",
	Long: `Serve starts the local control API (SPEC_FULL.md §4.7): a
loopback-only HTTP surface for listing paired devices, driving pairing
and key injection remotely, and observing connection state over a JSON
or Server-Sent Events endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.LocalAPI.ListenAddress()
		slog.Info("starting local control API", "addr", addr)
		return localapi.NewServer(addr, ctrl).Start(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
