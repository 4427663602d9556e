// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List or forget paired devices",
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known device",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, d := range ctrl.ListDevices() {
			status := "not paired"
			if d.Paired {
				status = "paired"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", d.ID, d.Name, status)
		}
		return nil
	},
}

var devicesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Forget a paired device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ctrl.RemovePaired(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.AddCommand(devicesListCmd, devicesRemoveCmd)
}
