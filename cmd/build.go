// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"rsbuilder/builder"
	"rsbuilder/common/cache"
	"rsbuilder/common/daemon"
	"rsbuilder/common/helpers"
	"rsbuilder/common/reporter"
	"rsbuilder/enricher/failover"
	"rsbuilder/enricher/irrdb"
	"rsbuilder/enricher/lastversion"
	"rsbuilder/enricher/peeringdb"
	"rsbuilder/enricher/rpki"
	"rsbuilder/enricher/rtt"
	"rsbuilder/enricher/whoisdump"
	"rsbuilder/routeserver"
)

// BuildConfiguration represents the configuration file for the build
// command.
type BuildConfiguration struct {
	Reporting   reporter.Configuration
	Cache       cache.Configuration
	IRRDB       irrdb.Configuration
	PeeringDB   peeringdb.Configuration
	RPKI        rpki.Configuration
	Whois       whoisdump.Configuration
	RTT         rtt.Configuration
	LastVersion lastversion.Configuration
	Builder     builder.Configuration
	// The policy is checked as a whole by the builder.
	General routeserver.General        `validate:"-"`
	Clients []routeserver.Client       `validate:"-"`
	ASNs    map[string]routeserver.ASN `validate:"-"`
}

// Reset resets the configuration for the build command to its default value.
func (c *BuildConfiguration) Reset() {
	*c = BuildConfiguration{
		Reporting:   reporter.DefaultConfiguration(),
		Cache:       cache.DefaultConfiguration(),
		IRRDB:       irrdb.DefaultConfiguration(),
		PeeringDB:   peeringdb.DefaultConfiguration(),
		RPKI:        rpki.DefaultConfiguration(),
		Whois:       whoisdump.DefaultConfiguration(),
		RTT:         rtt.DefaultConfiguration(),
		LastVersion: lastversion.DefaultConfiguration(),
		Builder:     builder.DefaultConfiguration(),
		General:     routeserver.DefaultGeneral(),
		Clients:     []routeserver.Client{},
		ASNs:        map[string]routeserver.ASN{},
	}
}

// Policy returns the route server policy contained in the configuration.
func (c BuildConfiguration) Policy() routeserver.Config {
	return routeserver.Config{
		General: c.General,
		Clients: c.Clients,
		ASNs:    c.ASNs,
	}
}

type buildOptions struct {
	ConfigRelatedOptions
	CheckMode   bool
	Output      string
	MetricsFile string
}

// BuildOptions stores the command-line option values for the build
// command.
var BuildOptions buildOptions

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the route server configuration",
	Long: `Validate the route server policy, retrieve data from IRR, PeeringDB, RPKI
and whois dumps, then write the resulting build context.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := BuildConfiguration{}
		config.Reset()
		if err := BuildOptions.Parse(cmd.OutOrStdout(), &config); err != nil {
			return err
		}
		if BuildOptions.Output != "" {
			config.Builder.Output = BuildOptions.Output
		}

		r, err := reporter.New(config.Reporting)
		if err != nil {
			return fmt.Errorf("unable to initialize reporter: %w", err)
		}
		if BuildOptions.CheckMode {
			return checkPolicy(r, config.Policy())
		}
		err = buildStart(r, config)
		if BuildOptions.MetricsFile != "" {
			if err := r.WriteMetrics(BuildOptions.MetricsFile); err != nil {
				r.Err(err).Str("file", BuildOptions.MetricsFile).Msg("unable to write metrics")
			}
		}
		return err
	},
}

func init() {
	RootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&BuildOptions.ConfigRelatedOptions.Path, "config", "c", "",
		"Configuration file")
	buildCmd.Flags().BoolVarP(&BuildOptions.ConfigRelatedOptions.Dump, "dump", "D", false,
		"Dump configuration before starting")
	buildCmd.Flags().BoolVarP(&BuildOptions.CheckMode, "check", "C", false,
		"Check configuration, but does not build")
	buildCmd.Flags().StringVarP(&BuildOptions.Output, "output", "o", "",
		"Override the output file")
	buildCmd.Flags().StringVar(&BuildOptions.MetricsFile, "metrics-file", "",
		"Write metrics to this file once the build is over")
	buildCmd.MarkFlagRequired("config")
}

// checkPolicy validates the policy without retrieving any data.
func checkPolicy(r *reporter.Reporter, policy routeserver.Config) error {
	policy.Normalize()
	if err := policy.Validate(); err != nil {
		return err
	}
	r.Info().Int("clients", len(policy.Clients)).Msg("configuration is valid")
	return nil
}

func buildStart(r *reporter.Reporter, config BuildConfiguration) error {
	versionMetrics(r)

	// Initialize the various components
	daemonComponent, err := daemon.New(r)
	if err != nil {
		return fmt.Errorf("unable to initialize daemon component: %w", err)
	}
	cacheComponent, err := cache.New(r, config.Cache, cache.Dependencies{})
	if err != nil {
		return fmt.Errorf("unable to initialize cache component: %w", err)
	}
	deadHosts := failover.NewDeadHosts(nil, config.IRRDB.DeadHostsReset)
	irrdbComponent, err := irrdb.New(r, config.IRRDB, irrdb.Dependencies{
		Cache:     cacheComponent,
		DeadHosts: deadHosts,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize IRR component: %w", err)
	}
	peeringdbComponent, err := peeringdb.New(r, config.PeeringDB, peeringdb.Dependencies{
		Cache: cacheComponent,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize PeeringDB component: %w", err)
	}
	rpkiComponent, err := rpki.New(r, config.RPKI, rpki.Dependencies{
		Cache:     cacheComponent,
		DeadHosts: deadHosts,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize RPKI component: %w", err)
	}
	whoisComponent, err := whoisdump.New(r, config.Whois, whoisdump.Dependencies{
		Cache: cacheComponent,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize whois component: %w", err)
	}
	rttComponent, err := rtt.New(r, config.RTT, rtt.Dependencies{})
	if err != nil {
		return fmt.Errorf("unable to initialize RTT component: %w", err)
	}
	lastVersionComponent, err := lastversion.New(r, config.LastVersion, lastversion.Dependencies{
		Cache: cacheComponent,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize last version component: %w", err)
	}
	builderComponent, err := builder.New(r, config.Builder, config.Policy(), builder.Dependencies{
		Daemon:      daemonComponent,
		IRRDB:       irrdbComponent,
		PeeringDB:   peeringdbComponent,
		RPKI:        rpkiComponent,
		WhoisDump:   whoisComponent,
		RTT:         rttComponent,
		LastVersion: lastVersionComponent,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize builder component: %w", err)
	}

	// Start all the components.
	components := []any{
		cacheComponent,
		builderComponent,
	}
	if err := StartStopComponents(r, daemonComponent, components); err != nil {
		return err
	}
	_, err = builderComponent.Result()
	return err
}

func versionMetrics(r *reporter.Reporter) {
	r.GaugeVec(reporter.GaugeOpts{
		Name: "info",
		Help: "rsbuilder build information.",
	}, []string{"version", "compiler"}).
		WithLabelValues(helpers.RsbuilderVersion, runtime.Version()).Set(1)
}
