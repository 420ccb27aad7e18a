// Package build runs the compiler, streams its diagnostics to the client
// and turns them into snippets once the index has been rebuilt.
package build

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"unicode/utf8"

	"srcweb/internal/errors"
	"srcweb/internal/metrics"
)

// maxLineBytes bounds a single diagnostic line. Diagnostics quoting large
// spans run to megabytes.
const maxLineBytes = 64 << 20

// Command describes the build subprocess.
type Command struct {
	Program string
	Args    []string
	Dir     string
	// SaveAnalysis asks rustc to write save-analysis artifacts.
	SaveAnalysis bool
	// Env is appended to the inherited environment.
	Env []string
}

// RustFlags is the RUSTFLAGS value the build runs with.
func (c Command) RustFlags() string {
	flags := "-Zunstable-options --error-format json"
	if c.SaveAnalysis {
		flags += " -Zsave-analysis"
	}
	return flags
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Program}, c.Args...), " ")
}

// Run starts the command and calls onLine with every stderr line, in
// order, as it arrives. A non-zero exit is reported through the exit code,
// not the error; the error is a ProcessError for spawn failures, unreadable
// or non-UTF-8 output.
func (c Command) Run(ctx context.Context, onLine func(string), logger *slog.Logger) (int, error) {
	if c.Program == "" {
		return -1, errors.Newf(errors.InvalidArgument, "no build command configured")
	}

	cmd := exec.CommandContext(ctx, c.Program, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(append(os.Environ(), c.Env...), "RUSTFLAGS="+c.RustFlags())

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, errors.New(errors.ProcessError, "failed to open build stderr", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, errors.New(errors.ProcessError, "failed to open build stdout", err)
	}
	if err := cmd.Start(); err != nil {
		return -1, errors.New(errors.ProcessError, "failed to spawn build command: "+c.String(), err)
	}
	logger.Debug("Build started", "command", c.String(), "pid", cmd.Process.Pid, "dir", c.Dir)

	stdoutDone := make(chan struct{})
	go func() {
		defer close(stdoutDone)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			if line := scanner.Text(); strings.TrimSpace(line) != "" {
				metrics.RecordSoftError("build_stdout")
				logger.Warn("Unexpected build output on stdout", "line", line)
			}
		}
	}()

	readErr := readLines(stderr, onLine)
	if readErr != nil {
		_ = cmd.Process.Kill()
		_, _ = io.Copy(io.Discard, stderr)
	}
	<-stdoutDone

	waitErr := cmd.Wait()
	if readErr != nil {
		return -1, readErr
	}
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		return 0, nil
	case stderrors.As(waitErr, &exitErr):
		return exitErr.ExitCode(), nil
	default:
		return -1, errors.New(errors.ProcessError, "build command failed", waitErr)
	}
}

func readLines(r io.Reader, onLine func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if !utf8.ValidString(line) {
			return errors.Newf(errors.ProcessError, "build produced non-UTF-8 output")
		}
		onLine(line)
	}
	if err := scanner.Err(); err != nil {
		return errors.New(errors.ProcessError, "failed to read build output", err)
	}
	return nil
}
