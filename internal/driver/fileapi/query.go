// Package fileapi implements the file-based transport: a query file written
// into the build tree before invoking cmake, and a versioned JSON reply
// directory parsed afterwards into the canonical code model.
package fileapi

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// ClientName identifies this tool's query directory under the api root, so
// our query never collides with another client's.
const ClientName = "client-cmake-mcp"

// apiVersion is a {major, minor} pair attached to every reply object.
type apiVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// Object kinds requested from the file api, with the versions this code
// understands.
var expectedVersions = map[string]apiVersion{
	"codemodel":  {Major: 2},
	"cache":      {Major: 2},
	"toolchains": {Major: 1},
	"cmakeFiles": {Major: 1},
}

type queryRequest struct {
	Kind    string `json:"kind"`
	Version int    `json:"version"`
}

type queryFile struct {
	Requests []queryRequest `json:"requests"`
}

// QueryDir returns our client query directory inside a build tree.
func QueryDir(buildDir string) string {
	return filepath.Join(buildDir, ".cmake", "api", "v1", "query", ClientName)
}

// ReplyDir returns the shared reply directory inside a build tree.
func ReplyDir(buildDir string) string {
	return filepath.Join(buildDir, ".cmake", "api", "v1", "reply")
}

// WriteQuery writes the query file listing every object kind we consume.
// cmake reads it during configure and emits one reply object per request.
func WriteQuery(buildDir string) error {
	q := queryFile{
		Requests: []queryRequest{
			{Kind: "codemodel", Version: 2},
			{Kind: "cache", Version: 2},
			{Kind: "toolchains", Version: 1},
			{Kind: "cmakeFiles", Version: 1},
		},
	}
	payload, err := json.Marshal(q)
	if err != nil {
		return err
	}

	dir := QueryDir(buildDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "query.json"), payload, 0o644)
}
