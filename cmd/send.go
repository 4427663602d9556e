// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atvremote/atvremote-go/internal/remote"
)

var keyCodesByName = map[string]int{
	"up":       remote.KeyUp,
	"down":     remote.KeyDown,
	"left":     remote.KeyLeft,
	"right":    remote.KeyRight,
	"center":   remote.KeyCenter,
	"back":     remote.KeyBack,
	"home":     remote.KeyHome,
	"power":    remote.KeyPower,
	"vol_up":   remote.KeyVolUp,
	"vol_down": remote.KeyVolDown,
	"mute":     remote.KeyMute,
	"ch_up":    remote.KeyChUp,
	"ch_down":  remote.KeyChDown,
}

var sendCmd = &cobra.Command{
	Use:   "send <device-id> <key>",
	Short: "Send a key press to a paired device",
	Long: fmt.Sprintf("Send injects one key press on the device's remote session,\nconnecting first if needed. Supported keys: %s.",
		strings.Join(keyNames(), ", ")),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, keyName := args[0], args[1]
		code, ok := keyCodesByName[strings.ToLower(keyName)]
		if !ok {
			return fmt.Errorf("unknown key %q (supported: %s)", keyName, strings.Join(keyNames(), ", "))
		}

		if !ctrl.IsConnectedTo(id) {
			if err := ctrl.Connect(cmd.Context(), id); err != nil {
				return fmt.Errorf("connecting to %s: %w", id, err)
			}
		}
		return ctrl.SendCommand(code)
	},
}

func keyNames() []string {
	names := make([]string, 0, len(keyCodesByName))
	for name := range keyCodesByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
