package kit

import (
	"context"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
)

// Info describes a probed compiler. It is informational, not
// build-correctness-critical: consumers display it and feed it to the
// expansion context.
type Info struct {
	// Family is the recognized compiler family (gcc, clang, ...), or
	// "unknown" when the executable name matches no known family.
	Family string `json:"family"`

	// Version is the version extracted from the compiler's own version
	// output, empty when unrecognized.
	Version string `json:"version,omitempty"`

	// Target is the target triple, when the compiler reports one.
	Target string `json:"target,omitempty"`

	// Label is the display form, e.g. "GCC 12.2.0 x86_64-linux-gnu".
	// Unrecognized compilers are masked to "unknown" rather than leaking an
	// arbitrary path.
	Label string `json:"label"`
}

// family couples a recognizable executable name with the pattern matching
// its self-reported version output.
type family struct {
	name    string
	display string
	version *regexp.Regexp
	target  *regexp.Regexp
}

var clangVersion = regexp.MustCompile(`clang version (\d+(?:\.\d+)+)`)
var clangTarget = regexp.MustCompile(`Target:\s+(\S+)`)

// gcc --version prints "gcc (vendor string) 12.2.0" on its first line.
var gccVersion = regexp.MustCompile(`\(.*\)\s+(\d+(?:\.\d+)+)`)

var knownFamilies = []family{
	{name: "clang-cl", display: "Clang-cl", version: clangVersion, target: clangTarget},
	{name: "armclang", display: "ARM Clang", version: clangVersion, target: clangTarget},
	{name: "clang++", display: "Clang", version: clangVersion, target: clangTarget},
	{name: "clang", display: "Clang", version: clangVersion, target: clangTarget},
	{name: "g++", display: "GCC", version: gccVersion},
	{name: "gcc", display: "GCC", version: gccVersion},
	{name: "icx", display: "Intel oneAPI", version: regexp.MustCompile(`Compiler (\d+(?:\.\d+)+)`)},
	{name: "icc", display: "Intel ICC", version: regexp.MustCompile(`\(ICC\) (\d+(?:\.\d+)+)`)},
	{name: "cl", display: "MSVC", version: regexp.MustCompile(`Version (\d+(?:\.\d+)+)`)},
	{name: "c++", display: "GCC", version: gccVersion},
	{name: "cc", display: "GCC", version: gccVersion},
}

func init() {
	// Longest name first, so "clang++" never matches as "clang" or "c++",
	// and "clang-cl" never matches as "cl".
	sort.SliceStable(knownFamilies, func(i, j int) bool {
		return len(knownFamilies[i].name) > len(knownFamilies[j].name)
	})
}

const probeTTL = 5 * time.Minute

// Prober identifies compiler executables, caching results per path since
// probing runs the binary.
type Prober struct {
	log   *zap.Logger
	cache *ttlcache.Cache[string, Info]

	// run executes the compiler with the given args and returns its combined
	// output. Swapped out in tests.
	run func(ctx context.Context, path string, args ...string) (string, error)
}

// NewProber creates a compiler identity prober.
func NewProber(log *zap.Logger) *Prober {
	c := ttlcache.New[string, Info](
		ttlcache.WithTTL[string, Info](probeTTL),
		ttlcache.WithDisableTouchOnHit[string, Info](),
	)
	go c.Start()
	return &Prober{
		log:   log,
		cache: c,
		run:   runOutput,
	}
}

// Close stops the cache expiration loop.
func (p *Prober) Close() {
	p.cache.Stop()
}

func runOutput(ctx context.Context, path string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	return string(out), err
}

// Identify probes the compiler at path. Errors degrade to the masked
// "unknown" label; identification never fails hard.
func (p *Prober) Identify(ctx context.Context, path string) Info {
	if item := p.cache.Get(path); item != nil {
		return item.Value()
	}

	info := p.identify(ctx, path)
	p.cache.Set(path, info, ttlcache.DefaultTTL)
	return info
}

func (p *Prober) identify(ctx context.Context, path string) Info {
	fam, ok := matchFamily(path)
	if !ok {
		p.log.Debug("compiler not recognized, masking", zap.String("path", path))
		return Info{Family: "unknown", Label: "unknown"}
	}

	// MSVC cl prints its banner with no arguments; everything else
	// understands --version.
	args := []string{"--version"}
	if fam.name == "cl" {
		args = nil
	}
	out, err := p.run(ctx, path, args...)
	if err != nil && out == "" {
		p.log.Debug("compiler version probe failed",
			zap.String("path", path), zap.Error(err))
		return Info{Family: fam.name, Label: fam.display}
	}

	info := identifyFromOutput(fam, out)
	p.log.Debug("compiler identified",
		zap.String("path", path),
		zap.String("label", info.Label))
	return info
}

// matchFamily matches the executable base name against the family allow-list,
// longest name first.
func matchFamily(path string) (family, bool) {
	base := strings.ToLower(filepath.Base(path))
	base = strings.TrimSuffix(base, ".exe")
	for _, fam := range knownFamilies {
		if strings.Contains(base, fam.name) {
			return fam, true
		}
	}
	return family{}, false
}

// identifyFromOutput extracts version and target from version output using
// the family's patterns. Pure, for testability.
func identifyFromOutput(fam family, out string) Info {
	info := Info{Family: fam.name, Label: fam.display}

	if m := fam.version.FindStringSubmatch(out); m != nil {
		info.Version = m[1]
		info.Label = fam.display + " " + info.Version
	}
	if fam.target != nil {
		if m := fam.target.FindStringSubmatch(out); m != nil {
			info.Target = m[1]
			info.Label += " " + info.Target
		}
	}

	return info
}

// Vendor returns just the display family name for the expansion context.
func (i Info) Vendor() string {
	if i.Family == "unknown" {
		return "unknown"
	}
	return i.Family
}

// TargetArch returns the leading architecture component of the target
// triple, empty when unknown.
func (i Info) TargetArch() string {
	if i.Target == "" {
		return ""
	}
	if dash := strings.IndexByte(i.Target, '-'); dash > 0 {
		return i.Target[:dash]
	}
	return i.Target
}
