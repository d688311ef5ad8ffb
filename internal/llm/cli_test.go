package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	outputs []string
	errs    []error
	block   bool
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	i := len(f.calls)
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	out := ""
	if i < len(f.outputs) {
		out = f.outputs[i]
	}
	return []byte(out), nil, err
}

func hasArg(args []string, flag, value string) bool {
	for i, a := range args {
		if a == flag && (value == "" || (i+1 < len(args) && args[i+1] == value)) {
			return true
		}
	}
	return false
}

func TestCLIClient_Ask(t *testing.T) {
	r := &fakeRunner{outputs: []string{`{"result": "hello there"}`}}
	c := NewCLIClient(CLIConfig{Model: "sonnet", Runner: r.run})

	got, err := c.Ask(context.Background(), Request{Prompt: "hi", SystemPrompt: "be nice"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if got != "hello there" {
		t.Errorf("Ask() = %q, want %q", got, "hello there")
	}

	args := r.calls[0]
	if args[0] != "claude" {
		t.Errorf("command = %q, want claude", args[0])
	}
	for _, want := range [][2]string{
		{"-p", "hi"},
		{"--model", "sonnet"},
		{"--output-format", "json"},
		{"--max-turns", "1"},
		{"--system-prompt", "be nice"},
	} {
		if !hasArg(args, want[0], want[1]) {
			t.Errorf("args missing %s %s: %v", want[0], want[1], args)
		}
	}
	if !hasArg(args, "--no-session-persistence", "") {
		t.Errorf("args missing --no-session-persistence: %v", args)
	}
}

func TestCLIClient_AskStructured(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr error
	}{
		{
			name:   "object payload",
			output: `{"result": "", "structured_output": {"amount": 5}}`,
			want:   `{"amount": 5}`,
		},
		{
			name:   "payload encoded as string",
			output: `{"result": "", "structured_output": "{\"amount\": 5}"}`,
			want:   `{"amount": 5}`,
		},
		{
			name:    "missing payload",
			output:  `{"result": "I could not do that"}`,
			wantErr: ErrNoStructuredOutput,
		},
		{
			name:    "null payload",
			output:  `{"result": "", "structured_output": null}`,
			wantErr: ErrNoStructuredOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{outputs: []string{tt.output}}
			c := NewCLIClient(CLIConfig{Model: "m", Runner: r.run})

			got, err := c.AskStructured(context.Background(), Request{Prompt: "x", Schema: ExpenseSchema})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("AskStructured() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("AskStructured() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("AskStructured() = %s, want %s", got, tt.want)
			}
			if !hasArg(r.calls[0], "--json-schema", string(ExpenseSchema)) {
				t.Error("schema not passed to the CLI")
			}
		})
	}
}

func TestCLIClient_ImageRequest(t *testing.T) {
	r := &fakeRunner{outputs: []string{`{"structured_output": {"total": 1}}`}}
	c := NewCLIClient(CLIConfig{Model: "m", Runner: r.run})

	_, err := c.AskStructured(context.Background(), Request{
		Prompt:       "Extract all information from this receipt.",
		SystemPrompt: "sys",
		Schema:       ReceiptSchema,
		ImagePath:    "/tmp/r.jpg",
	})
	if err != nil {
		t.Fatalf("AskStructured() error = %v", err)
	}

	args := r.calls[0]
	if !hasArg(args, "-p", "Read the file at /tmp/r.jpg and then: Extract all information from this receipt.") {
		t.Errorf("prompt not prefixed with file path: %v", args)
	}
	if !hasArg(args, "--allowedTools", "Read") || !hasArg(args, "--max-turns", "3") {
		t.Errorf("image args missing: %v", args)
	}
	if !hasArg(args, "--append-system-prompt", "sys") {
		t.Errorf("system prompt should be appended for structured calls: %v", args)
	}
}

func TestCLIClient_RetriesOnce(t *testing.T) {
	r := &fakeRunner{
		errs:    []error{errors.New("exit status 1"), nil},
		outputs: []string{"", `{"result": "ok"}`},
	}
	c := NewCLIClient(CLIConfig{Model: "m", Runner: r.run, Backoff: time.Millisecond})

	got, err := c.Ask(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Ask() = %q, want ok", got)
	}
	if len(r.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(r.calls))
	}
}

func TestCLIClient_GivesUpAfterTwoAttempts(t *testing.T) {
	r := &fakeRunner{errs: []error{errors.New("a"), errors.New("b"), nil}}
	c := NewCLIClient(CLIConfig{Model: "m", Runner: r.run, Backoff: time.Millisecond})

	if _, err := c.Ask(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if len(r.calls) != 2 {
		t.Errorf("calls = %d, want 2", len(r.calls))
	}
}

func TestCLIClient_Timeout(t *testing.T) {
	r := &fakeRunner{block: true}
	c := NewCLIClient(CLIConfig{Model: "m", Runner: r.run, Timeout: 10 * time.Millisecond, Backoff: time.Millisecond})

	_, err := c.Ask(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Ask() error = %v, want deadline exceeded", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error %q should mention the timeout", err)
	}
}

func TestCLIClient_NonJSONOutput(t *testing.T) {
	r := &fakeRunner{outputs: []string{"not json", "still not json"}}
	c := NewCLIClient(CLIConfig{Model: "m", Runner: r.run, Backoff: time.Millisecond})

	if _, err := c.Ask(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("expected error for non-JSON output")
	}
}
