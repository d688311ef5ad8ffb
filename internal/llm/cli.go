package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"kazo/internal/log"
)

// Runner executes a command and returns its stdout and stderr. It must stop
// the process when ctx is done.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

type CLIConfig struct {
	Command string
	Model   string
	Timeout time.Duration
	// Attempts counts the first try. Defaults to 2.
	Attempts int
	Backoff  time.Duration
	Runner   Runner
	Logger   *log.Logger
	Metrics  Metrics
}

// CLIClient shells out to a model CLI that prints a JSON envelope with
// "result" and, for schema requests, "structured_output".
type CLIClient struct {
	cfg    CLIConfig
	logger *log.Logger
}

func NewCLIClient(cfg CLIConfig) *CLIClient {
	if cfg.Command == "" {
		cfg.Command = "claude"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Runner == nil {
		cfg.Runner = execRunner
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	return &CLIClient{cfg: cfg, logger: cfg.Logger.WithComponent(log.ComponentLLM)}
}

type cliEnvelope struct {
	Result           string          `json:"result"`
	StructuredOutput json.RawMessage `json:"structured_output"`
}

func (c *CLIClient) Ask(ctx context.Context, req Request) (string, error) {
	args := []string{
		"-p", req.Prompt,
		"--model", c.cfg.Model,
		"--output-format", "json",
		"--no-session-persistence",
		"--max-turns", "1",
	}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	env, err := c.run(ctx, args, c.cfg.Timeout)
	if err != nil {
		return "", err
	}
	return env.Result, nil
}

func (c *CLIClient) AskStructured(ctx context.Context, req Request) (json.RawMessage, error) {
	prompt := req.Prompt
	if req.ImagePath != "" {
		prompt = fmt.Sprintf("Read the file at %s and then: %s", req.ImagePath, prompt)
	}
	args := []string{
		"-p", prompt,
		"--model", c.cfg.Model,
		"--output-format", "json",
		"--json-schema", string(req.Schema),
		"--no-session-persistence",
	}
	timeout := c.cfg.Timeout
	if req.ImagePath != "" {
		args = append(args, "--max-turns", "3", "--allowedTools", "Read", "--dangerously-skip-permissions")
		timeout *= 2
	}
	if req.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", req.SystemPrompt)
	}

	env, err := c.run(ctx, args, timeout)
	if err != nil {
		return nil, err
	}
	out := bytes.TrimSpace(env.StructuredOutput)
	if len(out) == 0 || bytes.Equal(out, []byte("null")) {
		return nil, fmt.Errorf("%w: %.300s", ErrNoStructuredOutput, env.Result)
	}
	// Some CLI versions return the payload as a JSON string.
	if out[0] == '"' {
		var s string
		if err := json.Unmarshal(out, &s); err != nil {
			return nil, fmt.Errorf("decode structured output string: %w", err)
		}
		out = []byte(s)
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("structured output is not valid JSON: %.300s", out)
	}
	return json.RawMessage(out), nil
}

// run tries the command up to Attempts times, sleeping Backoff between
// attempts. The last error is returned.
func (c *CLIClient) run(ctx context.Context, args []string, timeout time.Duration) (cliEnvelope, error) {
	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < c.cfg.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return cliEnvelope{}, ctx.Err()
			case <-time.After(c.cfg.Backoff):
			}
		}
		env, err := c.runOnce(ctx, args, timeout)
		if err == nil {
			c.cfg.Metrics.ObserveLLMCall("cli", outcome(nil), time.Since(start))
			return env, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt+1 < c.cfg.Attempts {
			c.logger.WarnContext(ctx, "Model CLI attempt failed, retrying",
				log.FieldAttempt, attempt+1,
				log.FieldError, err)
		}
	}
	c.cfg.Metrics.ObserveLLMCall("cli", outcome(lastErr), time.Since(start))
	return cliEnvelope{}, lastErr
}

func (c *CLIClient) runOnce(ctx context.Context, args []string, timeout time.Duration) (cliEnvelope, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, err := c.cfg.Runner(callCtx, c.cfg.Command, args...)
	if len(stderr) > 0 {
		c.logger.DebugContext(ctx, "Model CLI stderr", "stderr", string(bytes.TrimSpace(stderr)))
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return cliEnvelope{}, fmt.Errorf("model CLI timed out after %s: %w", timeout, context.DeadlineExceeded)
	}
	if err != nil {
		return cliEnvelope{}, fmt.Errorf("model CLI failed: %w: %s", err, bytes.TrimSpace(stderr))
	}

	var env cliEnvelope
	if err := json.Unmarshal(stdout, &env); err != nil {
		return cliEnvelope{}, fmt.Errorf("model CLI returned non-JSON: %.500s", stdout)
	}
	return env, nil
}
