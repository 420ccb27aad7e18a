package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"srcweb/internal/config"
)

var (
	configFormat   string
	configShowDiff bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect srcweb configuration",
	Long:  "View the configuration loaded from srcweb.toml and SRCWEB_* environment variables",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective srcweb configuration.

Examples:
  srcweb config show                 # Pretty-print current config
  srcweb config show --format json   # Raw JSON output
  srcweb config show --diff          # Only show non-default values`,
	RunE: runConfigShow,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List supported environment variables",
	Run: func(cmd *cobra.Command, args []string) {
		printEnvVars(cmd.OutOrStdout())
	},
}

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "human", "Output format (json, human)")
	configShowCmd.Flags().BoolVar(&configShowDiff, "diff", false, "Only show non-default values")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEnvCmd)
	rootCmd.AddCommand(configCmd)
}

// ConfigShowResponse is the response format for config show
type ConfigShowResponse struct {
	ConfigPath   string                 `json:"configPath,omitempty"`
	UsedDefaults bool                   `json:"usedDefaults"`
	EnvOverrides []config.EnvOverride   `json:"envOverrides,omitempty"`
	Config       map[string]interface{} `json:"config"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	dir, err := projectDir()
	if err != nil {
		return err
	}
	result, err := config.LoadConfigWithDetails(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	current, err := toMap(result.Config)
	if err != nil {
		return err
	}
	defaults, err := toMap(config.DefaultConfig())
	if err != nil {
		return err
	}
	if configShowDiff {
		current = computeDiff(current, defaults)
	}

	out := cmd.OutOrStdout()
	if configFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ConfigShowResponse{
			ConfigPath:   result.ConfigPath,
			UsedDefaults: result.ConfigPath == "",
			EnvOverrides: result.EnvOverrides,
			Config:       current,
		})
	}
	printConfigHuman(out, result, current, defaults)
	return nil
}

func toMap(cfg *config.Config) (map[string]interface{}, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

func printConfigHuman(w io.Writer, result *config.LoadResult, current, defaults map[string]interface{}) {
	fmt.Fprintln(w, "srcweb Configuration")
	fmt.Fprintln(w, strings.Repeat("─", 50))
	if result.ConfigPath == "" {
		fmt.Fprintln(w, "Source: defaults (no srcweb.toml found)")
	} else {
		fmt.Fprintf(w, "Source: %s\n", result.ConfigPath)
	}

	if len(result.EnvOverrides) > 0 {
		fmt.Fprintln(w, "\nEnvironment Overrides:")
		for _, ov := range result.EnvOverrides {
			fmt.Fprintf(w, "  %s=%s → %s\n", ov.EnvVar, ov.Value, ov.Path)
		}
	}
	fmt.Fprintln(w)

	flat := map[string]interface{}{}
	flatten("", current, flat)
	flatDefaults := map[string]interface{}{}
	flatten("", defaults, flatDefaults)

	if len(flat) == 0 {
		fmt.Fprintln(w, "  (no modifications - using all defaults)")
		return
	}
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		suffix := ""
		if def, ok := flatDefaults[k]; ok && !isEqual(flat[k], def) {
			suffix = fmt.Sprintf(" (default: %v)", def)
		}
		fmt.Fprintf(w, "%s: %v%s\n", k, flat[k], suffix)
	}
}

// flatten writes nested maps into out under dotted keys.
func flatten(prefix string, m map[string]interface{}, out map[string]interface{}) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

func printEnvVars(w io.Writer) {
	fmt.Fprintln(w, "Supported srcweb Environment Variables")
	fmt.Fprintln(w, strings.Repeat("─", 50))
	for _, name := range GetEnvVarMappings() {
		fmt.Fprintf(w, "  %s\n", name)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Example usage:")
	fmt.Fprintln(w, "  SRCWEB_LOG_LEVEL=debug srcweb serve")
	fmt.Fprintln(w, "  SRCWEB_BUILD_ARGS=build,--release SRCWEB_BUILD_PROFILE=release srcweb check")
	fmt.Fprintln(w, "  SRCWEB_CONFIG_PATH=/etc/srcweb.toml srcweb serve")
}

func isEqual(a, b interface{}) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func computeDiff(current, defaults map[string]interface{}) map[string]interface{} {
	diff := make(map[string]interface{})
	for key, currentVal := range current {
		defaultVal, exists := defaults[key]
		if !exists {
			diff[key] = currentVal
			continue
		}
		currentMap, currentIsMap := currentVal.(map[string]interface{})
		defaultMap, defaultIsMap := defaultVal.(map[string]interface{})
		if currentIsMap && defaultIsMap {
			if nested := computeDiff(currentMap, defaultMap); len(nested) > 0 {
				diff[key] = nested
			}
		} else if !isEqual(currentVal, defaultVal) {
			diff[key] = currentVal
		}
	}
	return diff
}

// GetEnvVarMappings returns the supported env vars, sorted.
func GetEnvVarMappings() []string {
	vars := config.GetSupportedEnvVars()
	sort.Strings(vars)
	return vars
}
