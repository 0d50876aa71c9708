// Package config provides configuration management for the cmake-mcp server.
//
// Settings control:
//   - Source and build directories (with ${...} placeholder support)
//   - The cmake binary path and the communication mode (file-api or server)
//   - Extra configure/build arguments, cache definitions, and init-cache files
//   - Environment layers merged over the kit environment
//   - Logging level and format
//
// Settings can be loaded from a JSONC file or use sensible defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/cmake-mcp/cmake-mcp/internal/errors"
)

// CommunicationMode selects which transport drives CMake.
type CommunicationMode string

const (
	// ModeFileAPI drives CMake through the file-based query/reply protocol.
	ModeFileAPI CommunicationMode = "fileApi"
	// ModeServer drives CMake through the socket-based server protocol.
	ModeServer CommunicationMode = "serverApi"
)

// Settings holds the driver configuration.
type Settings struct {
	// SourceDirectory is the workspace root containing CMakeLists.txt.
	SourceDirectory string `json:"sourceDirectory"`

	// BuildDirectory is the build tree. Supports ${workspaceRoot} and the
	// rest of the expansion vocabulary.
	BuildDirectory string `json:"buildDirectory"`

	// CMakePath is the cmake executable to spawn.
	CMakePath string `json:"cmakePath"`

	// Mode selects the transport.
	Mode CommunicationMode `json:"mode"`

	// Generator pins a generator by name, skipping auto-selection.
	Generator string `json:"generator,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Toolset   string `json:"toolset,omitempty"`

	// BuildType is the CMAKE_BUILD_TYPE for single-config generators.
	BuildType string `json:"buildType"`

	// ConfigureArgs are extra arguments appended to every configure.
	ConfigureArgs []string `json:"configureArgs,omitempty"`

	// ConfigureSettings become -D cache definitions, merged over the kit's.
	ConfigureSettings map[string]string `json:"configureSettings,omitempty"`

	// CacheInit are -C init-cache files.
	CacheInit []string `json:"cacheInit,omitempty"`

	// BuildArgs are extra arguments to `cmake --build`.
	BuildArgs []string `json:"buildArgs,omitempty"`

	// BuildToolArgs are passed to the native build tool after `--`.
	BuildToolArgs []string `json:"buildToolArgs,omitempty"`

	// ParallelJobs is the --parallel value; 0 lets the tool decide.
	ParallelJobs int `json:"parallelJobs,omitempty"`

	// Environment layers. Each layer's values may reference the prior merged
	// result through ${env:NAME}; layering order is kit environment first,
	// then Environment, then ConfigureEnvironment (or BuildEnvironment for
	// builds).
	Environment          map[string]string `json:"environment,omitempty"`
	ConfigureEnvironment map[string]string `json:"configureEnvironment,omitempty"`
	BuildEnvironment     map[string]string `json:"buildEnvironment,omitempty"`

	// KitsFile is the JSONC kits list. Empty means discovery from the
	// source directory upward.
	KitsFile string `json:"kitsFile,omitempty"`

	// Kit names the kit to activate at startup.
	Kit string `json:"kit,omitempty"`

	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"`
}

// Default returns a configuration with sensible defaults.
func Default() *Settings {
	return &Settings{
		CMakePath: "cmake",
		Mode:      ModeFileAPI,
		BuildType: "Debug",
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load reads settings from a JSONC file, layered over defaults. An empty
// path returns defaults.
func Load(path string) (*Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.ConfigInvalid(path, err)
	}

	if err := json.Unmarshal(jsonc.ToJSON(data), s); err != nil {
		return nil, errors.ConfigInvalid(path, err)
	}

	return s, nil
}

// Validate checks the settings for internal consistency and normalizes the
// source directory to absolute form.
func (s *Settings) Validate() error {
	if s.SourceDirectory == "" {
		return errors.ConfigInvalid("settings", fmt.Errorf("sourceDirectory is required"))
	}

	abs, err := filepath.Abs(s.SourceDirectory)
	if err != nil {
		return errors.ConfigInvalid("settings", fmt.Errorf("sourceDirectory: %w", err))
	}
	s.SourceDirectory = abs

	if s.BuildDirectory == "" {
		s.BuildDirectory = filepath.Join(s.SourceDirectory, "build")
	}

	switch s.Mode {
	case ModeFileAPI, ModeServer:
	case "":
		s.Mode = ModeFileAPI
	default:
		return errors.ConfigInvalid("settings", fmt.Errorf("unknown mode %q", s.Mode))
	}

	if s.CMakePath == "" {
		s.CMakePath = "cmake"
	}

	if s.ParallelJobs < 0 {
		return errors.ConfigInvalid("settings", fmt.Errorf("parallelJobs must be >= 0"))
	}

	return nil
}
