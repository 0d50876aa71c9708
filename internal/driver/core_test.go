package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/cmake-mcp/cmake-mcp/internal/config"
	"github.com/cmake-mcp/cmake-mcp/internal/kit"
	"github.com/cmake-mcp/cmake-mcp/pkg/types"
)

// newTestCore builds a Core over a throwaway source tree with a probe
// runner that accepts ninja.
func newTestCore(t *testing.T, preconditions *[]types.Precondition) *Core {
	t.Helper()

	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "CMakeLists.txt"), []byte("project(x)\n"), 0o644); err != nil {
		t.Fatalf("write CMakeLists: %v", err)
	}

	s := config.Default()
	s.SourceDirectory = src

	var mu sync.Mutex
	c, err := newCoreWithProbe(t, Options{
		Settings: s,
		Log:      zap.NewNop(),
		OnPrecondition: func(p types.Precondition) {
			mu.Lock()
			defer mu.Unlock()
			if preconditions != nil {
				*preconditions = append(*preconditions, p)
			}
		},
	})
	if err != nil {
		t.Fatalf("NewCore failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Dispose() })
	return c
}

// newCoreWithProbe constructs a Core whose generator probe always finds
// ninja, without running any external tool.
func newCoreWithProbe(t *testing.T, opts Options) (*Core, error) {
	t.Helper()
	// Pin the generator so construction never shells out, then clear the pin
	// for tests that exercise selection explicitly.
	pinned := opts.Settings.Generator
	opts.Settings.Generator = "Ninja"
	c, err := NewCore(opts)
	if err != nil {
		return nil, err
	}
	opts.Settings.Generator = pinned
	c.probeRun = func(name string, args ...string) error {
		if name == "ninja" {
			return nil
		}
		return fmt.Errorf("%s not installed", name)
	}
	return c, nil
}

// TestCore_SingleFlightConfigure verifies only one configure slot exists and
// the precondition callback fires exactly once for the loser.
func TestCore_SingleFlightConfigure(t *testing.T) {
	var problems []types.Precondition
	c := newTestCore(t, &problems)

	if !c.BeginConfigure() {
		t.Fatal("first BeginConfigure should succeed")
	}
	if c.BeginConfigure() {
		t.Fatal("second BeginConfigure should be refused")
	}
	if len(problems) != 1 || problems[0] != types.PreconditionConfigureActive {
		t.Errorf("expected one configure-already-running problem, got %v", problems)
	}

	c.EndConfigure()
	if !c.BeginConfigure() {
		t.Error("configure slot should be free again")
	}
	c.EndConfigure()
}

// TestCore_BuildRefusedDuringConfigure verifies the cross-guard: build during
// configure is refused and tagged with the configure reason (and symmetric).
func TestCore_BuildRefusedDuringConfigure(t *testing.T) {
	var problems []types.Precondition
	c := newTestCore(t, &problems)

	if !c.BeginConfigure() {
		t.Fatal("BeginConfigure failed")
	}
	if c.BeginBuild() {
		t.Fatal("BeginBuild should be refused during configure")
	}
	if len(problems) != 1 || problems[0] != types.PreconditionConfigureActive {
		t.Errorf("expected configure-already-running, got %v", problems)
	}
	c.EndConfigure()

	problems = problems[:0]
	if !c.BeginBuild() {
		t.Fatal("BeginBuild failed")
	}
	if c.BeginConfigure() {
		t.Fatal("BeginConfigure should be refused during build")
	}
	if len(problems) != 1 || problems[0] != types.PreconditionBuildActive {
		t.Errorf("expected build-already-running, got %v", problems)
	}
	c.EndBuild()
}

// TestCore_SourcePreconditions verifies the non-throwing precondition
// signaling for a broken source tree.
func TestCore_SourcePreconditions(t *testing.T) {
	var problems []types.Precondition
	c := newTestCore(t, &problems)

	if !c.CheckSourcePreconditions() {
		t.Fatal("healthy tree should pass")
	}

	if err := os.Remove(filepath.Join(c.settings.SourceDirectory, "CMakeLists.txt")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if c.CheckSourcePreconditions() {
		t.Error("missing CMakeLists.txt should fail the check")
	}
	if len(problems) != 1 || problems[0] != types.PreconditionMissingCMakeLists {
		t.Errorf("expected missing-cmakelists, got %v", problems)
	}
}

// TestCore_SetKitRecomputesEnvironment verifies kit env layering under the
// configuration layers.
func TestCore_SetKitRecomputesEnvironment(t *testing.T) {
	c := newTestCore(t, nil)
	c.settings.Environment = map[string]string{"EXTRA": "${env:TOOLROOT}/bin"}

	k := types.Kit{
		Name:                 "cross",
		EnvironmentVariables: map[string]string{"TOOLROOT": "/opt/cross"},
	}
	if err := c.SetKit(context.Background(), k); err != nil {
		t.Fatalf("SetKit failed: %v", err)
	}

	env := c.ConfigureEnvironment()
	if env["TOOLROOT"] != "/opt/cross" {
		t.Errorf("kit variable missing: %v", env["TOOLROOT"])
	}
	if env["EXTRA"] != "/opt/cross/bin" {
		t.Errorf("layer did not expand against prior layer: %q", env["EXTRA"])
	}
}

// TestCore_CacheDefinitions verifies -D flag merging and ordering.
func TestCore_CacheDefinitions(t *testing.T) {
	c := newTestCore(t, nil)
	c.settings.ConfigureSettings = map[string]string{"ENABLE_TESTS": "ON"}

	k := types.Kit{
		Name:          "gcc",
		Compilers:     map[string]string{"C": "/usr/bin/gcc"},
		CMakeSettings: map[string]string{"KIT_FLAG": "1"},
		ToolchainFile: "/opt/tc.cmake",
	}
	if err := c.SetKit(context.Background(), k); err != nil {
		t.Fatalf("SetKit failed: %v", err)
	}

	flags := c.CacheDefinitions()
	want := []string{
		"-DCMAKE_BUILD_TYPE=Debug",
		"-DCMAKE_C_COMPILER=/usr/bin/gcc",
		"-DCMAKE_TOOLCHAIN_FILE=/opt/tc.cmake",
		"-DENABLE_TESTS=ON",
		"-DKIT_FLAG=1",
	}
	if len(flags) != len(want) {
		t.Fatalf("expected %d flags, got %v", len(want), flags)
	}
	for i := range want {
		if flags[i] != want[i] {
			t.Errorf("flag %d: expected %q, got %q", i, want[i], flags[i])
		}
	}
}

// TestCore_BuildDirectoryExpansion verifies placeholder resolution in the
// build directory setting.
func TestCore_BuildDirectoryExpansion(t *testing.T) {
	c := newTestCore(t, nil)
	c.settings.BuildDirectory = "${workspaceRoot}/out/${buildType}"

	want := filepath.Join(c.settings.SourceDirectory, "out", "Debug")
	if got := c.BuildDirectory(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

// TestCore_BuildDirectoryUsesKitCompilerVariables verifies both build
// directory paths resolve kit compiler placeholders identically, so the
// clean-tree check inspects the same directory configure will use.
func TestCore_BuildDirectoryUsesKitCompilerVariables(t *testing.T) {
	c := newTestCore(t, nil)
	c.settings.BuildDirectory = "${workspaceRoot}/out/${buildKitVendor}-${buildKitTargetArch}"
	c.compilerInfo = kit.Info{Family: "gcc", Target: "x86_64-linux-gnu"}

	want := filepath.Join(c.settings.SourceDirectory, "out", "gcc-x86_64")
	if got := c.BuildDirectory(); got != want {
		t.Errorf("BuildDirectory: expected %s, got %s", want, got)
	}
	if got := c.buildDirectoryLocked(); got != want {
		t.Errorf("buildDirectoryLocked: expected %s, got %s", want, got)
	}
}

// TestCore_StopWithoutProcess verifies Stop is a no-op with nothing running.
func TestCore_StopWithoutProcess(t *testing.T) {
	c := newTestCore(t, nil)
	if err := c.Stop(); err != nil {
		t.Errorf("Stop with no process should be nil, got %v", err)
	}
}
