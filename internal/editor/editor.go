// Package editor opens source locations in the user's editor.
package editor

import (
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"srcweb/internal/errors"
)

// Launcher runs an edit command template such as "code -g $file:$line:$col".
type Launcher struct {
	Template string
	// Dir is the working directory of the editor process.
	Dir    string
	Logger *slog.Logger
}

// Enabled reports whether an edit command is configured.
func (l *Launcher) Enabled() bool {
	return strings.TrimSpace(l.Template) != ""
}

// Argv substitutes $file, $line and $col into the template and splits the
// result on whitespace. The file is substituted last, so a path containing
// "$line" is left alone.
func (l *Launcher) Argv(file string, line, col int) []string {
	fields := strings.Fields(l.Template)
	argv := make([]string, len(fields))
	for i, f := range fields {
		f = strings.ReplaceAll(f, "$line", strconv.Itoa(line))
		f = strings.ReplaceAll(f, "$col", strconv.Itoa(col))
		argv[i] = strings.ReplaceAll(f, "$file", file)
	}
	return argv
}

// Open starts the editor and returns without waiting for it to exit. The
// exit status is only logged.
func (l *Launcher) Open(file string, line, col int) error {
	if !l.Enabled() {
		return errors.New(errors.InvalidArgument, "no edit command configured", nil)
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	argv := l.Argv(file, line, col)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = l.Dir
	if err := cmd.Start(); err != nil {
		return errors.New(errors.ProcessError, "start edit command "+argv[0], err)
	}
	logger.Debug("Editor started", "command", strings.Join(argv, " "), "pid", cmd.Process.Pid)

	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Warn("Edit command failed", "command", argv[0], "file", file, "error", err)
			return
		}
		logger.Debug("Edit command finished", "file", file)
	}()
	return nil
}
