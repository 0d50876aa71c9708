package driver

import (
	"fmt"
	"os/exec"
	"regexp"
	"runtime"

	"go.uber.org/zap"

	"github.com/cmake-mcp/cmake-mcp/internal/cache"
	"github.com/cmake-mcp/cmake-mcp/internal/errors"
	"github.com/cmake-mcp/cmake-mcp/pkg/types"
)

// defaultCandidates is the hard-coded fallback pair probed after the kit's
// preferred generator.
var defaultCandidates = []types.Generator{
	{Name: "Ninja"},
	{Name: "Unix Makefiles"},
}

// vsGeneratorPattern matches the versioned Visual Studio generator family,
// with or without the product year.
var vsGeneratorPattern = regexp.MustCompile(`^Visual Studio (\d+)(?: (\d{4}))?`)

// vsYearByVersion expands a bare "Visual Studio NN" to the full generator
// name CMake expects.
var vsYearByVersion = map[string]string{
	"14": "2015",
	"15": "2017",
	"16": "2019",
	"17": "2022",
}

// selectGenerator probes candidates in order and returns the first whose
// underlying build tool responds to a version query. A user-pinned generator
// (settings.Generator) bypasses probing entirely.
func (c *Core) selectGenerator(preferred *types.Generator) (types.Generator, error) {
	if c.settings.Generator != "" {
		return types.Generator{
			Name:     c.settings.Generator,
			Platform: c.settings.Platform,
			Toolset:  c.settings.Toolset,
		}, nil
	}

	var candidates []types.Generator
	if preferred != nil {
		candidates = append(candidates, *preferred)
	}
	candidates = append(candidates, defaultCandidates...)

	tried := make([]string, 0, len(candidates))
	for _, g := range candidates {
		if resolved, ok := c.probeGenerator(g); ok {
			return resolved, nil
		}
		tried = append(tried, g.Name)
	}
	return types.Generator{}, errors.NoGeneratorFound(tried)
}

// probeGenerator tests whether a generator's build tool is usable on this
// platform. Versioned IDE generators are expanded to their full name.
func (c *Core) probeGenerator(g types.Generator) (types.Generator, bool) {
	switch {
	case g.Name == "Ninja" || g.Name == "Ninja Multi-Config":
		return g, c.probeRun("ninja", "--version") == nil

	case g.Name == "Unix Makefiles":
		if runtime.GOOS == "windows" {
			return g, false
		}
		return g, c.probeRun("make", "-v") == nil

	case g.Name == "MinGW Makefiles":
		if runtime.GOOS != "windows" {
			return g, false
		}
		return g, c.probeRun("mingw32-make", "-v") == nil

	case g.Name == "MSYS Makefiles":
		if runtime.GOOS != "windows" {
			return g, false
		}
		return g, c.probeRun("make", "-v") == nil

	default:
		if m := vsGeneratorPattern.FindStringSubmatch(g.Name); m != nil {
			return c.expandVSGenerator(g, m)
		}
		c.log.Debug("no probe for generator", zap.String("generator", g.Name))
		return g, false
	}
}

// expandVSGenerator fills in the product year for a bare "Visual Studio NN"
// name. Visual Studio generators only exist on Windows.
func (c *Core) expandVSGenerator(g types.Generator, m []string) (types.Generator, bool) {
	if runtime.GOOS != "windows" {
		return g, false
	}
	if m[2] != "" {
		return g, true // already fully qualified
	}
	year, ok := vsYearByVersion[m[1]]
	if !ok {
		return g, false
	}
	g.Name = fmt.Sprintf("Visual Studio %s %s", m[1], year)
	return g, true
}

// runProbe is the default probe runner: run the tool, discard output.
func runProbe(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// loadBuildCache reads the persisted cache of a build tree, if present.
func loadBuildCache(buildDir string) (*cache.Snapshot, error) {
	return cache.Load(cache.CachePath(buildDir))
}

// cacheCompilersMatch reports whether the kit's compilers agree with the
// ones recorded in the cache. A language the cache never saw is not a
// mismatch; configure will simply add it.
func cacheCompilersMatch(snap *cache.Snapshot, k *types.Kit) bool {
	for lang, path := range k.Compilers {
		if e, ok := snap.Get("CMAKE_" + lang + "_COMPILER"); ok && e.Value != path {
			return false
		}
	}
	return true
}
