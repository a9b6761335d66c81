// Package runner invokes the external RAG inference process. Inference is a
// black box with file-based I/O: it reads a query file and the shared
// document corpus and materializes a prediction file for one language.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ragbench/rag-bench/internal/pkg/errors"
	"github.com/ragbench/rag-bench/internal/pkg/logger"
)

// Invocation describes one inference run.
type Invocation struct {
	QueryPath  string
	DocsPath   string
	Language   string
	OutputPath string
}

// Runner produces a prediction file for one language.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// stderrTailLimit bounds how much runner stderr is kept for diagnostics.
const stderrTailLimit = 4 * 1024

// ExecRunner runs the inference command as a subprocess. The command is a
// whitespace-separated template whose arguments may contain the
// placeholders {query}, {docs}, {language} and {output}.
type ExecRunner struct {
	command string
	timeout time.Duration
	log     *logger.Logger
}

// NewExecRunner creates a runner for the given command template. The
// timeout bounds each invocation; inference latency is outside our control,
// so zero disables the bound at the caller's own risk.
func NewExecRunner(command string, timeout time.Duration, log *logger.Logger) (*ExecRunner, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.ConfigError("inference command is empty", nil)
	}
	if log == nil {
		log = logger.Default()
	}
	return &ExecRunner{
		command: command,
		timeout: timeout,
		log:     log,
	}, nil
}

// Run executes the inference command for one language. A non-zero exit is
// an EXTERNAL_FAILURE carrying the tail of the process stderr; exceeding
// the timeout is a TIMEOUT. The output file's parent directory is created
// first so the subprocess can write into it.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) error {
	argv := r.expand(inv)
	if len(argv) == 0 {
		return errors.ConfigError("inference command is empty", nil)
	}

	if dir := filepath.Dir(inv.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.ConfigError(fmt.Sprintf("creating output directory %s", dir), err)
		}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	log := r.log.WithLanguage(inv.Language)
	log.Info("running inference",
		"command", argv[0],
		"query_path", inv.QueryPath,
		"output_path", inv.OutputPath,
	)

	var stderr tailBuffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.TimeoutError(fmt.Sprintf("inference for language %q", inv.Language)).
				WithDetail("timeout", r.timeout.String())
		}
		appErr := errors.ExternalError(
			fmt.Sprintf("inference for language %q failed", inv.Language), err)
		if tail := stderr.String(); tail != "" {
			appErr = appErr.WithDetail("stderr", tail)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			appErr = appErr.WithDetail("exit_code", fmt.Sprintf("%d", exitErr.ExitCode()))
		}
		return appErr
	}

	log.Info("inference completed", "elapsed", elapsed.Round(time.Millisecond).String())
	return nil
}

// expand splits the command template into argv and substitutes the
// placeholders in each argument.
func (r *ExecRunner) expand(inv Invocation) []string {
	replacer := strings.NewReplacer(
		"{query}", inv.QueryPath,
		"{docs}", inv.DocsPath,
		"{language}", inv.Language,
		"{output}", inv.OutputPath,
	)

	fields := strings.Fields(r.command)
	argv := make([]string, 0, len(fields))
	for _, f := range fields {
		argv = append(argv, replacer.Replace(f))
	}
	return argv
}

// tailBuffer keeps the last stderrTailLimit bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= stderrTailLimit {
		t.buf.Reset()
		p = p[n-stderrTailLimit:]
	} else if t.buf.Len()+n > stderrTailLimit {
		rest := t.buf.Bytes()[t.buf.Len()+n-stderrTailLimit:]
		trimmed := make([]byte, len(rest))
		copy(trimmed, rest)
		t.buf.Reset()
		t.buf.Write(trimmed)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(t.buf.String())
}
