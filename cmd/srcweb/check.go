package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"srcweb/internal/build"
	"srcweb/internal/diagnostics"
	"srcweb/internal/errors"
)

var checkJSON bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the build once and print its diagnostics",
	Long: `Run the configured build command with save-analysis enabled, print the
compiler's diagnostics, and refresh the analysis data on success.

Exits non-zero when the build fails or reports errors.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the build summary and snippets as JSON")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	dir, err := projectDir()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return err
	}
	logger, logCloser, err := newLogger(dir, cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	a, err := newApp(dir, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var sink build.Sink = build.DiscardSink{}
	if !checkJSON {
		sink = newTerminalSink(cmd.OutOrStdout(), cmd.ErrOrStderr(), a.root)
	}
	outcome := a.builds.Run(sink)

	if checkJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcome); err != nil {
			return err
		}
	} else {
		printSummary(cmd.OutOrStdout(), outcome.Summary)
	}

	if !outcome.Summary.Success || outcome.Summary.Errors > 0 {
		return errors.New(errors.ProcessError, "build failed", nil)
	}
	return nil
}

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	noteColor    = color.New(color.FgCyan, color.Bold)
	locColor     = color.New(color.FgBlue)
	dimColor     = color.New(color.Faint)
)

// terminalSink prints build events as they arrive.
type terminalSink struct {
	out  io.Writer
	err  io.Writer
	root string
}

func newTerminalSink(out, errOut io.Writer, root string) *terminalSink {
	return &terminalSink{out: out, err: errOut, root: root}
}

func (s *terminalSink) SendError(v any) error {
	switch d := v.(type) {
	case *diagnostics.Diagnostic:
		s.printDiagnostic(d)
	case build.Failure:
		errorColor.Fprintf(s.out, "error")
		fmt.Fprintf(s.out, ": %s\n", d.Message)
	}
	return nil
}

func (s *terminalSink) SendMessage(line string) error {
	dimColor.Fprintln(s.err, line)
	return nil
}

func (s *terminalSink) SendClose(any) error { return nil }

func (s *terminalSink) printDiagnostic(d *diagnostics.Diagnostic) {
	levelColor(d.Level).Fprint(s.out, string(d.Level))
	if d.Code != nil && d.Code.Code != "" {
		levelColor(d.Level).Fprintf(s.out, "[%s]", d.Code.Code)
	}
	fmt.Fprintf(s.out, ": %s\n", d.RawMessage)
	for _, sp := range d.Spans {
		if !sp.IsPrimary {
			continue
		}
		locColor.Fprintf(s.out, "  --> %s\n", s.location(sp))
	}
	for _, c := range d.Children {
		fmt.Fprintf(s.out, "  = %s: %s\n", c.Level, c.RawMessage)
	}
	fmt.Fprintln(s.out)
}

func (s *terminalSink) location(sp *diagnostics.Span) string {
	file := sp.File
	if rel, err := filepath.Rel(s.root, file); err == nil && !strings.HasPrefix(rel, "..") {
		file = rel
	}
	return fmt.Sprintf("%s:%d:%d", file, sp.LineStart, sp.ColStart)
}

func levelColor(l diagnostics.Level) *color.Color {
	switch {
	case l.IsError():
		return errorColor
	case l == diagnostics.LevelWarning:
		return warningColor
	default:
		return noteColor
	}
}

func printSummary(w io.Writer, s build.Summary) {
	warnings := s.Diagnostics - s.Errors
	status := color.GreenString("ok")
	if !s.Success || s.Errors > 0 {
		status = color.RedString("failed")
	}
	fmt.Fprintf(w, "build %s: %d error(s), %d other diagnostic(s) in %dms\n",
		status, s.Errors, warnings, s.ElapsedMs)
	if s.Failure != "" {
		fmt.Fprintf(w, "  %s\n", s.Failure)
	}
}
