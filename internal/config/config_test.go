package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefault verifies the baseline settings.
func TestDefault(t *testing.T) {
	s := Default()

	if s.CMakePath != "cmake" {
		t.Errorf("expected cmake, got %q", s.CMakePath)
	}
	if s.Mode != ModeFileAPI {
		t.Errorf("expected fileApi mode, got %q", s.Mode)
	}
	if s.BuildType != "Debug" {
		t.Errorf("expected Debug, got %q", s.BuildType)
	}
}

// TestLoad_JSONC verifies a commented settings file loads over defaults.
func TestLoad_JSONC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	content := `{
		// the project under test
		"sourceDirectory": "/src/app",
		"mode": "serverApi",
		"configureSettings": {
			"ENABLE_TESTS": "ON", // trailing comma tolerated below
		},
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if s.SourceDirectory != "/src/app" {
		t.Errorf("expected /src/app, got %q", s.SourceDirectory)
	}
	if s.Mode != ModeServer {
		t.Errorf("expected serverApi, got %q", s.Mode)
	}
	if s.ConfigureSettings["ENABLE_TESTS"] != "ON" {
		t.Errorf("expected ENABLE_TESTS=ON, got %v", s.ConfigureSettings)
	}
	// Defaults survive fields the file does not set.
	if s.CMakePath != "cmake" {
		t.Errorf("expected default cmake path, got %q", s.CMakePath)
	}
}

// TestLoad_MissingFile verifies a clear error for a bad path.
func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/settings.json"); err == nil {
		t.Error("expected error for missing settings file")
	}
}

// TestValidate verifies normalization and rejection.
func TestValidate(t *testing.T) {
	s := Default()
	if err := s.Validate(); err == nil {
		t.Error("expected error for empty sourceDirectory")
	}

	s = Default()
	s.SourceDirectory = "/src/app"
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if s.BuildDirectory != filepath.Join("/src/app", "build") {
		t.Errorf("expected derived build dir, got %q", s.BuildDirectory)
	}

	s.Mode = "carrier-pigeon"
	if err := s.Validate(); err == nil {
		t.Error("expected error for unknown mode")
	}

	s.Mode = ModeFileAPI
	s.ParallelJobs = -2
	if err := s.Validate(); err == nil {
		t.Error("expected error for negative parallelJobs")
	}
}
