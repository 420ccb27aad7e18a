package api

import (
	"net/http"
	"strconv"
	"strings"

	"srcweb/internal/analysis"
	"srcweb/internal/errors"
)

// GetPathParam extracts the part of the URL path after prefix.
func GetPathParam(r *http.Request, prefix string) string {
	path := r.URL.Path
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	return strings.TrimPrefix(path, prefix)
}

// QueryParamInt extracts an integer query parameter with a default value
func QueryParamInt(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

// QueryParamBool extracts a boolean query parameter with a default value
func QueryParamBool(r *http.Request, name string, defaultVal bool) bool {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1" || val == "yes"
}

// QueryParamDefID parses a required definition id parameter.
func QueryParamDefID(r *http.Request, name string) (analysis.DefID, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return analysis.NullID, errors.Newf(errors.InvalidArgument, "missing %s parameter", name)
	}
	id, err := analysis.ParseDefID(val)
	if err != nil {
		return analysis.NullID, errors.New(errors.InvalidArgument, "bad "+name+" parameter: "+val, err)
	}
	return id, nil
}
