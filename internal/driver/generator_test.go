package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"go.uber.org/zap"

	"github.com/cmake-mcp/cmake-mcp/internal/config"
	"github.com/cmake-mcp/cmake-mcp/internal/errors"
	"github.com/cmake-mcp/cmake-mcp/pkg/types"
)

func probeAccepting(tools ...string) func(string, ...string) error {
	return func(name string, args ...string) error {
		for _, t := range tools {
			if name == t {
				return nil
			}
		}
		return fmt.Errorf("%s not installed", name)
	}
}

// TestSelectGenerator_FirstProbeWins verifies candidate order: the kit's
// preferred generator, then Ninja, then Unix Makefiles.
func TestSelectGenerator_FirstProbeWins(t *testing.T) {
	c := newTestCore(t, nil)

	c.probeRun = probeAccepting("ninja", "make")
	g, err := c.selectGenerator(nil)
	if err != nil {
		t.Fatalf("selectGenerator failed: %v", err)
	}
	if g.Name != "Ninja" {
		t.Errorf("expected Ninja first, got %q", g.Name)
	}

	if runtime.GOOS != "windows" {
		c.probeRun = probeAccepting("make")
		g, err = c.selectGenerator(nil)
		if err != nil {
			t.Fatalf("selectGenerator failed: %v", err)
		}
		if g.Name != "Unix Makefiles" {
			t.Errorf("expected Unix Makefiles fallback, got %q", g.Name)
		}
	}
}

// TestSelectGenerator_PreferredFirst verifies the kit's preference leads.
func TestSelectGenerator_PreferredFirst(t *testing.T) {
	c := newTestCore(t, nil)
	c.probeRun = probeAccepting("ninja")

	g, err := c.selectGenerator(&types.Generator{Name: "Ninja Multi-Config"})
	if err != nil {
		t.Fatalf("selectGenerator failed: %v", err)
	}
	if g.Name != "Ninja Multi-Config" {
		t.Errorf("expected preferred generator, got %q", g.Name)
	}
}

// TestSelectGenerator_NoneFound verifies the fatal construction error.
func TestSelectGenerator_NoneFound(t *testing.T) {
	c := newTestCore(t, nil)
	c.probeRun = probeAccepting() // nothing installed

	_, err := c.selectGenerator(nil)
	if err == nil {
		t.Fatal("expected NoGeneratorFound")
	}
	if !errors.Is(err, errors.CodeNoGeneratorFound) {
		t.Errorf("expected NO_GENERATOR_FOUND, got %v", err)
	}
}

// TestNewCore_FailsWithoutGenerator verifies no driver core is produced when
// nothing probes successfully.
func TestNewCore_FailsWithoutGenerator(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "CMakeLists.txt"), nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := config.Default()
	s.SourceDirectory = src
	s.CMakePath = filepath.Join(src, "no-such-cmake")

	// Construction probes for real; point it at tools that cannot exist.
	orig := defaultCandidates
	defaultCandidates = []types.Generator{{Name: "Frobnicator Makefiles"}}
	defer func() { defaultCandidates = orig }()

	if _, err := NewCore(Options{Settings: s, Log: zap.NewNop()}); err == nil {
		t.Error("expected construction to fail with no usable generator")
	}
}

// TestSelectGenerator_UserPinBypassesProbe verifies a pinned generator is
// trusted without probing.
func TestSelectGenerator_UserPinBypassesProbe(t *testing.T) {
	c := newTestCore(t, nil)
	c.settings.Generator = "Xcode"
	c.settings.Platform = ""
	defer func() { c.settings.Generator = "" }()

	c.probeRun = probeAccepting() // nothing installed
	g, err := c.selectGenerator(nil)
	if err != nil {
		t.Fatalf("pinned generator should not probe: %v", err)
	}
	if g.Name != "Xcode" {
		t.Errorf("expected pinned Xcode, got %q", g.Name)
	}
}

// TestExpandVSGenerator verifies the versioned IDE family expansion is
// Windows-gated and fills in the product year.
func TestExpandVSGenerator(t *testing.T) {
	c := newTestCore(t, nil)

	g, ok := c.probeGenerator(types.Generator{Name: "Visual Studio 17"})
	if runtime.GOOS != "windows" {
		if ok {
			t.Error("Visual Studio generators must not probe on non-Windows")
		}
		return
	}
	if !ok || g.Name != "Visual Studio 17 2022" {
		t.Errorf("expected expanded VS name, got %q (ok=%v)", g.Name, ok)
	}
}
