package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

const (
	shellDefaultTimeout = 60 * time.Second
	shellMaxTimeout     = 10 * time.Minute
	shellGracePeriod    = 5 * time.Second
)

type shellResult struct {
	ExitCode   int    `json:"exit_code"`
	Signal     string `json:"signal,omitempty"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMS int64  `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out"`
}

func shellRunTool() *Tool {
	return &Tool{
		Name:        "shell_run",
		Description: "Run a shell command with the workspace root as working directory.",
		Risk:        RiskShell,
		// Dispatch applies the per-call timeout; shell manages its own from
		// timeout_ms, so the outer one only needs to exceed the max.
		Timeout: shellMaxTimeout + time.Minute,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string", "minLength": 1},
				"timeout_ms": {"type": "integer", "minimum": 1}
			},
			"required": ["command"]
		}`),
		Handler: func(ctx context.Context, tc *Context, args json.RawMessage) (*Result, error) {
			var in struct {
				Command   string `json:"command"`
				TimeoutMS *int   `json:"timeout_ms"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			timeout := shellDefaultTimeout
			if in.TimeoutMS != nil {
				timeout = time.Duration(*in.TimeoutMS) * time.Millisecond
				if timeout > shellMaxTimeout {
					timeout = shellMaxTimeout
				}
			}

			runCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", in.Command)
			cmd.Dir = tc.WorkspaceRoot
			// On cancellation the process gets SIGTERM and a grace window
			// before the kill.
			cmd.Cancel = func() error {
				return cmd.Process.Signal(syscall.SIGTERM)
			}
			cmd.WaitDelay = shellGracePeriod

			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			start := time.Now()
			runErr := cmd.Run()
			elapsed := time.Since(start)

			res := shellResult{
				Stdout:     stdout.String(),
				Stderr:     stderr.String(),
				DurationMS: elapsed.Milliseconds(),
				TimedOut:   runCtx.Err() == context.DeadlineExceeded,
			}
			if runErr != nil {
				var exitErr *exec.ExitError
				if errors.As(runErr, &exitErr) {
					res.ExitCode = exitErr.ExitCode()
					if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
						res.Signal = ws.Signal().String()
						res.ExitCode = -1
					}
				} else if !res.TimedOut {
					return nil, fmt.Errorf("shell: %w", runErr)
				}
			}

			out, err := json.Marshal(res)
			if err != nil {
				return nil, err
			}
			return &Result{ForLLM: string(out), IsError: res.TimedOut}, nil
		},
	}
}
