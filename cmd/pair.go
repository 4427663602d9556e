// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cmd

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/atvremote/atvremote-go/internal/controller"
	"github.com/atvremote/atvremote-go/internal/pairing"
)

var pairCmd = &cobra.Command{
	Use:   "pair <host> <pairing-port> [name]",
	Short: "Pair with a TV using the on-screen PIN",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		host := args[0]
		pairingPort, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("parsing pairing port: %w", err)
		}
		name := "TV"
		if len(args) == 3 {
			name = args[2]
		}

		device := controller.Device{
			ID:          net.JoinHostPort(host, strconv.Itoa(cfg.Client.ControlPort)),
			Name:        name,
			Host:        host,
			ControlPort: cfg.Client.ControlPort,
			PairingPort: pairingPort,
		}

		ctx := cmd.Context()
		events := ctrl.PairingEvents.Subscribe()
		defer ctrl.PairingEvents.Unsubscribe(events)

		if err := ctrl.StartPairing(ctx, host, pairingPort); err != nil {
			return fmt.Errorf("starting pairing: %w", err)
		}

		for ev := range events {
			switch ev.State {
			case pairing.WaitingForCode:
				code, err := promptForCode(cmd)
				if err != nil {
					ctrl.CancelPairing()
					return err
				}
				if err := ctrl.SubmitCode(ctx, device, code); err != nil {
					return fmt.Errorf("submitting code: %w", err)
				}
			case pairing.Success:
				fmt.Fprintf(cmd.OutOrStdout(), "paired with %s (%s)\n", device.Name, device.ID)
				return nil
			case pairing.Failed:
				return fmt.Errorf("pairing failed: %w", ev.Err)
			}
		}
		return errors.New("pairing event stream closed before reaching a terminal state")
	},
}

func promptForCode(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), "enter the pairing code shown on the TV: ")
	var code string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &code); err != nil {
		return "", fmt.Errorf("reading pairing code: %w", err)
	}
	return code, nil
}

func init() {
	rootCmd.AddCommand(pairCmd)
}
