// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"runtime"

	"github.com/spf13/cobra"

	"rsbuilder/common/helpers"
)

func init() {
	RootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Long:  `Display version and build information about rsbuilder.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("rsbuilder %s\n", helpers.RsbuilderVersion)
		cmd.Printf("  Built with: %s\n", runtime.Version())
	},
}
