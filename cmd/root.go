// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package cmd handles the command-line interface for rsbuilder
package cmd

import (
	"github.com/spf13/cobra"
)

var debug bool

// RootCmd is the root for all commands
var RootCmd = &cobra.Command{
	Use:   "rsbuilder",
	Short: "Route server configuration builder",
	PersistentPreRun: func(*cobra.Command, []string) {
		SetupLogging(debug)
	},
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logs")
}
