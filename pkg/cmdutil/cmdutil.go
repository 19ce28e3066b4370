// Package cmdutil runs external tools with output capture and graceful
// cancellation.
package cmdutil

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Grace period between SIGTERM on context cancellation and the kill.
const waitDelay = 5 * time.Second

// Run executes a command and returns its captured stdout and stderr. A
// non-nil env is appended to the inherited environment. On context
// cancellation the process receives SIGTERM before being killed.
func Run(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
