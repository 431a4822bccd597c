package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Subprocess wraps a local agent CLI (codex, pi, nanobot) as a Provider.
// The CLI receives the request as JSON on stdin and streams JSONL events
// on stdout; the final "result" line carries the answer.
//
// Subprocess providers run their own agent loop internally and never
// receive our tool set; turns that need the generator tools or attachment
// reading are rerouted to the native provider before the loop starts.
type Subprocess struct {
	name    string
	command []string
	caps    Capabilities
	timeout time.Duration
}

// NewCodex wraps the codex CLI. Codex is the only adapter that may run
// without a sandbox; the dangerous capability bit can only take effect on
// codex turns.
func NewCodex(command string, timeout time.Duration) *Subprocess {
	return newSubprocess("codex", command, timeout, Capabilities{
		CanRunUnsandboxed: true,
	})
}

func NewPi(command string, timeout time.Duration) *Subprocess {
	return newSubprocess("pi", command, timeout, Capabilities{})
}

func NewNanobot(command string, timeout time.Duration) *Subprocess {
	return newSubprocess("nanobot", command, timeout, Capabilities{})
}

func newSubprocess(name, command string, timeout time.Duration, caps Capabilities) *Subprocess {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Subprocess{
		name:    name,
		command: strings.Fields(command),
		caps:    caps,
		timeout: timeout,
	}
}

func (p *Subprocess) Name() string               { return p.name }
func (p *Subprocess) Capabilities() Capabilities { return p.caps }

type subprocessInput struct {
	Model    string    `json:"model,omitempty"`
	Messages []Message `json:"messages"`
}

// subprocessEvent is one JSONL line from the CLI.
type subprocessEvent struct {
	Type    string `json:"type"` // progress | result | error
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (p *Subprocess) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(p.command) == 0 {
		return nil, fmt.Errorf("%s: %w: command not configured", p.name, ErrProviderUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)

	input, err := json.Marshal(subprocessInput{Model: req.Model, Messages: req.Messages})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal input: %w", p.name, err)
	}
	cmd.Stdin = strings.NewReader(string(input))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", p.name, ErrProviderUnavailable, err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s: %w: start: %v", p.name, ErrProviderUnavailable, err)
	}

	var result string
	var cliErr string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev subprocessEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			// Tolerate noise on stdout; CLIs print banners.
			continue
		}
		switch ev.Type {
		case "result":
			result = ev.Content
		case "error":
			cliErr = ev.Error
		case "progress":
			slog.Debug("provider.subprocess_progress", "provider", p.name, "content", ev.Content)
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%s: %w", p.name, ErrProviderTimeout)
	}
	if cliErr != "" {
		return nil, fmt.Errorf("%s: %w: %s", p.name, ErrProviderUnavailable, cliErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		detail := stderr.String()
		if errors.As(waitErr, &exitErr) && detail == "" {
			detail = waitErr.Error()
		}
		return nil, fmt.Errorf("%s: %w: %s", p.name, ErrProviderUnavailable, strings.TrimSpace(detail))
	}
	if result == "" {
		return nil, fmt.Errorf("%s: %w: no result line", p.name, ErrProviderUnavailable)
	}
	return &Response{Content: result}, nil
}
