// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package enricher

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// Runner runs an external command and returns its standard output and
// standard error.
type Runner interface {
	Run(ctx context.Context, path string, args []string) (stdout, stderr []byte, err error)
}

// ExitCoder is implemented by errors of commands exiting with a non-zero
// status, like *exec.ExitError.
type ExitCoder interface {
	ExitCode() int
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run runs the command until completion or until the context is done.
func (ExecRunner) Run(ctx context.Context, path string, args []string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// CommandLine formats a command for logs.
func CommandLine(path string, args []string) string {
	return strings.Join(append([]string{path}, args...), " ")
}
