// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"rsbuilder/common/helpers"
	"rsbuilder/common/helpers/yaml"
)

// ConfigRelatedOptions are command-line options related to handling a
// configuration file.
type ConfigRelatedOptions struct {
	Path       string
	Dump       bool
	BeforeDump func(mapstructure.Metadata)
}

// Parse parses the configuration file (if present) and the environment
// variables into the provided configuration. The configuration file may
// include other files relative to its directory with the "!include" tag.
func (c ConfigRelatedOptions) Parse(out io.Writer, config any) error {
	var rawConfig map[string]any
	if cfgFile := c.Path; cfgFile != "" {
		dirname, filename := filepath.Split(cfgFile)
		if dirname == "" {
			dirname = "."
		}
		if err := yaml.UnmarshalWithInclude(os.DirFS(dirname), filename, &rawConfig); err != nil {
			return fmt.Errorf("unable to parse configuration file: %w", err)
		}
	}

	// Parse provided configuration
	var metadata mapstructure.Metadata
	decoderConfig := helpers.GetMapStructureDecoderConfig(config)
	decoderConfig.Metadata = &metadata
	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return fmt.Errorf("unable to create configuration decoder: %w", err)
	}
	if err := decoder.Decode(rawConfig); err != nil {
		return fmt.Errorf("unable to parse configuration: %w", err)
	}

	// Override with environment variables
	for _, keyval := range os.Environ() {
		kv := strings.SplitN(keyval, "=", 2)
		if len(kv) != 2 {
			continue
		}
		kk := strings.Split(kv[0], "_")
		if len(kk) < 3 || kk[0] != "RSBUILDER" {
			continue
		}
		// From RSBUILDER_SQUID_PURPLE_QUIRK=47, we build a map "squid ->
		// purple -> quirk -> 47". From RSBUILDER_SQUID_3_PURPLE=47, we
		// build "squid[3] -> purple -> 47"
		var rawConfig any
		rawConfig = kv[1]
		for i := len(kk) - 1; i > 0; i-- {
			if index, err := strconv.Atoi(kk[i]); err == nil {
				newRawConfig := make([]any, index+1)
				newRawConfig[index] = rawConfig
				rawConfig = newRawConfig
			} else {
				rawConfig = map[string]any{
					kk[i]: rawConfig,
				}
			}
		}
		if err := decoder.Decode(rawConfig); err != nil {
			return fmt.Errorf("unable to parse override %q: %w", kv[0], err)
		}
	}

	// Dump configuration if requested
	if c.BeforeDump != nil {
		c.BeforeDump(metadata)
	}
	if c.Dump {
		output, err := yaml.Marshal(config)
		if err != nil {
			return fmt.Errorf("unable to dump configuration: %w", err)
		}
		out.Write([]byte("---\n"))
		out.Write(output)
		out.Write([]byte("\n"))
	}

	if err := helpers.Validate.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	return nil
}
