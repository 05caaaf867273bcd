// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package builder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// encode returns the build context in the configured format.
func (c *Component) encode(result *Context) ([]byte, error) {
	switch c.config.Format {
	case "yaml":
		return yaml.Marshal(result)
	default:
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	}
}

// write stores the build context into the output file. The file is
// replaced atomically.
func (c *Component) write(result *Context) error {
	content, err := c.encode(result)
	if err != nil {
		return fmt.Errorf("unable to encode build context: %w", err)
	}
	output := c.config.Output
	tmpFile, err := os.CreateTemp(
		filepath.Dir(output),
		fmt.Sprintf("%s-*", filepath.Base(output)))
	if err != nil {
		return fmt.Errorf("unable to create output file %q: %w", output, err)
	}
	defer func() {
		tmpFile.Close()           // ignore errors
		os.Remove(tmpFile.Name()) // ignore errors
	}()
	if _, err := tmpFile.Write(content); err != nil {
		return fmt.Errorf("unable to write output file %q: %w", output, err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("unable to write output file %q: %w", output, err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		return fmt.Errorf("unable to write output file %q: %w", output, err)
	}
	if err := os.Rename(tmpFile.Name(), output); err != nil {
		return fmt.Errorf("unable to write output file %q: %w", output, err)
	}
	return nil
}
