// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"rsbuilder/cmd"
	"rsbuilder/common/helpers"
)

type dummyConfiguration struct {
	Module1 dummyModule1Configuration
	Module2 dummyModule2Configuration
}
type dummyModule1Configuration struct {
	Listen  string `validate:"required"`
	Topic   string
	Workers int
}
type dummyModule2Configuration struct {
	Details     dummyModule2DetailsConfiguration
	Elements    []dummyModule2ElementsConfiguration
	MoreDetails `mapstructure:",squash" yaml:",inline"`
}
type MoreDetails struct {
	Stuff string
}
type dummyModule2ElementsConfiguration struct {
	Name  string
	Gauge int
}
type dummyModule2DetailsConfiguration struct {
	Workers       int
	IntervalValue time.Duration
}

var dummyDefaultConfiguration = dummyConfiguration{
	Module1: dummyModule1Configuration{
		Listen:  "127.0.0.1:8080",
		Topic:   "nothingness",
		Workers: 100,
	},
	Module2: dummyModule2Configuration{
		MoreDetails: MoreDetails{
			Stuff: "hello",
		},
		Details: dummyModule2DetailsConfiguration{
			Workers:       1,
			IntervalValue: time.Minute,
		},
	},
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error:\n%+v", err)
	}
	return path
}

func TestDump(t *testing.T) {
	// Configuration file
	config := `---
module1:
 topic: flows
module2:
 details:
  workers: 5
  interval-value: 20m
 stuff: bye
 elements:
  - name: first
    gauge: 67
  - name: second
`
	c := cmd.ConfigRelatedOptions{
		Path: writeFile(t, t.TempDir(), "config.yaml", config),
		Dump: true,
	}

	parsed := dummyDefaultConfiguration
	out := bytes.NewBuffer([]byte{})
	if err := c.Parse(out, &parsed); err != nil {
		t.Fatalf("Parse() error:\n%+v", err)
	}
	// Expected configuration
	expected := dummyConfiguration{
		Module1: dummyModule1Configuration{
			Listen:  "127.0.0.1:8080",
			Topic:   "flows",
			Workers: 100,
		},
		Module2: dummyModule2Configuration{
			MoreDetails: MoreDetails{
				Stuff: "bye",
			},
			Details: dummyModule2DetailsConfiguration{
				Workers:       5,
				IntervalValue: 20 * time.Minute,
			},
			Elements: []dummyModule2ElementsConfiguration{
				{"first", 67},
				{"second", 0},
			},
		},
	}
	if diff := helpers.Diff(parsed, expected); diff != "" {
		t.Errorf("Parse() (-got, +want):\n%s", diff)
	}

	var gotRaw map[string]map[string]any
	if err := yaml.Unmarshal(out.Bytes(), &gotRaw); err != nil {
		t.Fatalf("Unmarshal() error:\n%+v", err)
	}
	expectedRaw := map[string]map[string]any{
		"module1": {
			"listen":  "127.0.0.1:8080",
			"topic":   "flows",
			"workers": 100,
		},
		"module2": {
			"stuff": "bye",
			"details": map[string]any{
				"workers":       5,
				"intervalvalue": "20m0s",
			},
			"elements": []any{
				map[string]any{
					"name":  "first",
					"gauge": 67,
				},
				map[string]any{
					"name":  "second",
					"gauge": 0,
				},
			},
		},
	}
	if diff := helpers.Diff(gotRaw, expectedRaw); diff != "" {
		t.Errorf("Parse() (-got, +want):\n%s", diff)
	}
}

func TestInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "module2.yaml", `
details:
 workers: 7
stuff: included
`)
	c := cmd.ConfigRelatedOptions{
		Path: writeFile(t, dir, "config.yaml", `---
module1:
 topic: flows
module2: !include "module2.yaml"
`),
	}

	parsed := dummyDefaultConfiguration
	if err := c.Parse(bytes.NewBuffer([]byte{}), &parsed); err != nil {
		t.Fatalf("Parse() error:\n%+v", err)
	}
	expected := dummyDefaultConfiguration
	expected.Module1.Topic = "flows"
	expected.Module2.Details.Workers = 7
	expected.Module2.Stuff = "included"
	if diff := helpers.Diff(parsed, expected); diff != "" {
		t.Errorf("Parse() (-got, +want):\n%s", diff)
	}
}

func TestEnvOverride(t *testing.T) {
	// Configuration file
	config := `---
module1:
 topic: flows
module2:
 details:
  workers: 5
  interval-value: 20m
`
	// Environment
	t.Setenv("RSBUILDER_MODULE1_LISTEN", "127.0.0.1:9000")
	t.Setenv("RSBUILDER_MODULE1_TOPIC", "something")
	t.Setenv("RSBUILDER_MODULE2_DETAILS_INTERVALVALUE", "10m")
	t.Setenv("RSBUILDER_MODULE2_STUFF", "bye")
	t.Setenv("RSBUILDER_MODULE2_ELEMENTS_0_NAME", "something")
	t.Setenv("RSBUILDER_MODULE2_ELEMENTS_0_GAUGE", "18")
	t.Setenv("RSBUILDER_MODULE2_ELEMENTS_1_NAME", "something else")
	t.Setenv("RSBUILDER_MODULE2_ELEMENTS_1_GAUGE", "7")

	c := cmd.ConfigRelatedOptions{
		Path: writeFile(t, t.TempDir(), "config.yaml", config),
		Dump: true,
	}

	parsed := dummyDefaultConfiguration
	out := bytes.NewBuffer([]byte{})
	if err := c.Parse(out, &parsed); err != nil {
		t.Fatalf("Parse() error:\n%+v", err)
	}
	// Expected configuration
	expected := dummyConfiguration{
		Module1: dummyModule1Configuration{
			Listen:  "127.0.0.1:9000",
			Topic:   "something",
			Workers: 100,
		},
		Module2: dummyModule2Configuration{
			MoreDetails: MoreDetails{
				Stuff: "bye",
			},
			Details: dummyModule2DetailsConfiguration{
				Workers:       5,
				IntervalValue: 10 * time.Minute,
			},
			Elements: []dummyModule2ElementsConfiguration{
				{"something", 18},
				{"something else", 7},
			},
		},
	}
	if diff := helpers.Diff(parsed, expected); diff != "" {
		t.Errorf("Parse() (-got, +want):\n%s", diff)
	}
}

func TestEnvOverrideList(t *testing.T) {
	type filtersConfiguration struct {
		Sources      []string
		WhiteListASN []uint32
	}
	var parsed struct {
		Filters filtersConfiguration
	}
	t.Setenv("RSBUILDER_FILTERS_SOURCES", "RIPE,RADB")
	t.Setenv("RSBUILDER_FILTERS_WHITELISTASN", "64512,64513")

	c := cmd.ConfigRelatedOptions{
		Path: writeFile(t, t.TempDir(), "config.yaml", "---\nfilters:\n sources: [ARIN]\n"),
	}
	if err := c.Parse(bytes.NewBuffer([]byte{}), &parsed); err != nil {
		t.Fatalf("Parse() error:\n%+v", err)
	}
	expected := filtersConfiguration{
		Sources:      []string{"RIPE", "RADB"},
		WhiteListASN: []uint32{64512, 64513},
	}
	if diff := helpers.Diff(parsed.Filters, expected); diff != "" {
		t.Errorf("Parse() (-got, +want):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		Description string
		Config      string
		Error       string
	}{
		{
			Description: "unknown key",
			Config:      "module1:\n unknown: 1\n",
			Error:       "unable to parse configuration",
		}, {
			Description: "validation failure",
			Config:      "module1:\n listen: \"\"\n",
			Error:       "invalid configuration",
		}, {
			Description: "missing include",
			Config:      "module1: !include missing.yaml\n",
			Error:       "unable to parse configuration file",
		},
	}
	for i, tc := range cases {
		t.Run(tc.Description, func(t *testing.T) {
			c := cmd.ConfigRelatedOptions{
				Path: writeFile(t, dir, strings.Repeat("c", i+1)+".yaml", tc.Config),
			}
			parsed := dummyDefaultConfiguration
			err := c.Parse(bytes.NewBuffer([]byte{}), &parsed)
			if err == nil || !strings.Contains(err.Error(), tc.Error) {
				t.Fatalf("Parse() error = %v, expected %q", err, tc.Error)
			}
		})
	}
}
