// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package irrdb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"rsbuilder/enricher"
)

// run executes bgpq4 and classifies errors. Timeouts and non-zero exit
// codes are transient: another host may answer.
func (c *Component) run(ctx context.Context, args []string) ([]byte, error) {
	line := enricher.CommandLine(c.config.Path, args)
	stdout, stderr, err := c.d.Runner.Run(ctx, c.config.Path, args)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("bgpq4 timed out while running the following command: '%s': %w",
			line, context.DeadlineExceeded)
	}
	if err != nil {
		var exitErr enricher.ExitCoder
		if errors.As(err, &exitErr) {
			msg := fmt.Sprintf("bgpq4 exit code is %d", exitErr.ExitCode())
			if s := strings.TrimSpace(string(stderr)); s != "" {
				msg = fmt.Sprintf("%s, stderr: %s", msg, s)
			}
			return nil, fmt.Errorf("%s (command: '%s'): %w", msg, line, enricher.ErrTransient)
		}
		// The binary cannot be run at all, trying another host won't help.
		return nil, fmt.Errorf("cannot run '%s': %w", line, err)
	}
	if s := strings.TrimSpace(string(stderr)); s != "" {
		c.r.Warn().Str("command", line).Str("stderr", s).
			Msg("bgpq4 succeeded but an error was printed")
	}
	return stdout, nil
}
