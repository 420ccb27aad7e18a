package jobs

import (
	"encoding/json"
)

// BuildScope records what a build job ran.
type BuildScope struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	PullKey string   `json:"pullKey"`
}

// BuildResult is stored when a build job completes.
type BuildResult struct {
	Success     bool   `json:"success"`
	ExitCode    int    `json:"exitCode"`
	Diagnostics int    `json:"diagnostics"`
	Errors      int    `json:"errors"`
	Messages    int    `json:"messages"`
	SoftErrors  int    `json:"softErrors"`
	Snippets    int    `json:"snippets"`
	PullDataKey string `json:"pull_data_key"`
	Duration    string `json:"duration"`
}

// ReindexScope defines why a reindex job was requested.
type ReindexScope struct {
	Reason string `json:"reason"` // "api", "startup", "watch"
}

// ParseReindexScope parses the scope JSON from a job.
func ParseReindexScope(scopeJSON string) (*ReindexScope, error) {
	if scopeJSON == "" {
		return &ReindexScope{Reason: "api"}, nil
	}

	var scope ReindexScope
	if err := json.Unmarshal([]byte(scopeJSON), &scope); err != nil {
		return nil, err
	}

	if scope.Reason == "" {
		scope.Reason = "api"
	}

	return &scope, nil
}

// ReindexResult contains the result of a reindex job.
type ReindexResult struct {
	Crates     int    `json:"crates"`
	Defs       int    `json:"defs"`
	Refs       int    `json:"refs"`
	Files      int    `json:"files"`
	SoftErrors int    `json:"softErrors"`
	Duration   string `json:"duration"`
}
