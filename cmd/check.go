// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"rsbuilder/routeserver"
)

// CheckCommunitiesOptions stores the command-line option values for the
// check-communities command.
var CheckCommunitiesOptions ConfigRelatedOptions

var checkCommunitiesCmd = &cobra.Command{
	Use:   "check-communities",
	Short: "Check BGP communities",
	Long: `Check that the BGP communities of the route server policy are valid
and that no two of them can match the same value on the wire.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := BuildConfiguration{}
		config.Reset()
		if err := CheckCommunitiesOptions.Parse(cmd.OutOrStdout(), &config); err != nil {
			return err
		}
		if err := routeserver.ValidateCommunities(config.General); err != nil {
			return err
		}
		communities, err := routeserver.ResolveCommunities(config.General)
		if err != nil {
			return err
		}
		for _, community := range communities {
			values := []string{}
			for _, format := range []routeserver.Format{routeserver.Standard, routeserver.Large, routeserver.Extended} {
				if value, ok := community.Values[format]; ok {
					values = append(values, fmt.Sprintf("%s=%s", format, value))
				}
			}
			cmd.Printf("%-30s %-9s %s\n", community.Tag, community.Class, strings.Join(values, " "))
		}
		cmd.Printf("%d communities, no overlap found\n", len(communities))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(checkCommunitiesCmd)
	checkCommunitiesCmd.Flags().StringVarP(&CheckCommunitiesOptions.Path, "config", "c", "",
		"Configuration file")
	checkCommunitiesCmd.MarkFlagRequired("config")
}
