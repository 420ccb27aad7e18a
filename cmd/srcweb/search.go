package main

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"srcweb/internal/analysis"
	"srcweb/internal/errors"
	"srcweb/internal/query"
)

var (
	searchJSON bool
	searchID   string
)

var searchCmd = &cobra.Command{
	Use:   "search [identifier]",
	Short: "Find definitions and references by name or id",
	Long: `Search the analysis data left by the last build.

Examples:
  srcweb search parse_config      # every definition named parse_config
  srcweb search --id 16777221   # one definition by id`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print results as JSON")
	searchCmd.Flags().StringVar(&searchID, "id", "", "Search by definition id instead of name")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if (len(args) == 0) == (searchID == "") {
		return errors.New(errors.InvalidArgument, "give either an identifier or --id", nil)
	}
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
	if _, err := a.host.Reload(cmd.Context()); err != nil {
		return err
	}

	var result *query.SearchResult
	if searchID != "" {
		id, perr := analysis.ParseDefID(searchID)
		if perr != nil {
			return errors.New(errors.InvalidArgument, "bad --id: "+searchID, perr)
		}
		result, err = a.query.IDSearch(id)
	} else {
		result, err = a.query.IdentSearch(args[0])
	}
	if err != nil {
		return err
	}

	if searchJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printSearch(cmd.OutOrStdout(), result)
	return nil
}

func printSearch(w io.Writer, result *query.SearchResult) {
	if len(result.Defs) == 0 {
		fmt.Fprintln(w, "No definitions found")
		return
	}
	for _, def := range result.Defs {
		fmt.Fprintf(w, "%s:%d  %s\n", def.File, def.Line.LineStart, plainLine(def.Line.Line))
		for _, f := range def.Refs {
			for _, l := range f.Lines {
				fmt.Fprintf(w, "    %s:%d  %s\n", f.FileName, l.LineStart, plainLine(l.Line))
			}
		}
	}
}

// plainLine strips highlighting markup from a rendered line.
func plainLine(line string) string {
	var b strings.Builder
	inTag := false
	for _, r := range line {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(html.UnescapeString(b.String()))
}
