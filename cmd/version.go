// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ffutop/vacuum-controller/internal/telemetry"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and node id",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vacuumd %s (%s %s/%s)\nnode %s\n",
			Version, runtime.Version(), runtime.GOOS, runtime.GOARCH, telemetry.NodeID())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
