// Package kit loads kit definitions and identifies compilers.
//
// A kit names a bundle of compilers, an optional toolchain file, a preferred
// generator, environment variables, and extra cache settings. Kits load from
// a JSONC file (a plain array of kit objects) and are immutable once applied
// to a driver; SetKit replaces a driver's kit wholesale.
package kit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/cmake-mcp/cmake-mcp/internal/errors"
	"github.com/cmake-mcp/cmake-mcp/pkg/types"
)

const (
	// KitsFileName is the standard name for the kits definition file.
	KitsFileName = "cmake-kits.json"
	// ConfigDirName is the editor configuration directory searched for kits.
	ConfigDirName = ".vscode"
)

// LoadFromPath loads a kits file from an explicit path.
func LoadFromPath(path string) ([]types.Kit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read kits file: %w", err)
	}

	var kits []types.Kit
	if err := json.Unmarshal(jsonc.ToJSON(data), &kits); err != nil {
		return nil, errors.KitsInvalid(path, err)
	}

	for i := range kits {
		if kits[i].Name == "" {
			return nil, errors.KitsInvalid(path, fmt.Errorf("kit %d has no name", i))
		}
	}

	return kits, nil
}

// Discover searches for a .vscode/cmake-kits.json starting from the given
// path and walking up the directory tree until found or reaching the root.
func Discover(startPath string) (string, error) {
	if startPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		startPath = cwd
	}

	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		absPath = filepath.Dir(absPath)
	}

	current := absPath
	for {
		kitsPath := filepath.Join(current, ConfigDirName, KitsFileName)
		if _, err := os.Stat(kitsPath); err == nil {
			return kitsPath, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("no %s/%s found in %s or parent directories", ConfigDirName, KitsFileName, startPath)
}

// Registry holds the loaded kits by name.
type Registry struct {
	kits map[string]types.Kit
}

// NewRegistry builds a registry from a kit list. Later duplicates win, so a
// workspace file can override entries of the same name.
func NewRegistry(kits []types.Kit) *Registry {
	r := &Registry{kits: make(map[string]types.Kit, len(kits))}
	for _, k := range kits {
		r.kits[k.Name] = k
	}
	return r
}

// LoadRegistry loads kits from an explicit path, or discovers a kits file
// from startPath when path is empty. No kits file at all yields an empty
// registry, not an error: kits are optional.
func LoadRegistry(path, startPath string) (*Registry, error) {
	if path == "" {
		discovered, err := Discover(startPath)
		if err != nil {
			return NewRegistry(nil), nil
		}
		path = discovered
	}

	kits, err := LoadFromPath(path)
	if err != nil {
		return nil, err
	}
	return NewRegistry(kits), nil
}

// Get returns the kit with the given name.
func (r *Registry) Get(name string) (types.Kit, error) {
	k, ok := r.kits[name]
	if !ok {
		return types.Kit{}, errors.KitNotFound(name, r.Names())
	}
	return k, nil
}

// Names returns the registered kit names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.kits))
	for name := range r.kits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered kit, ordered by name.
func (r *Registry) All() []types.Kit {
	out := make([]types.Kit, 0, len(r.kits))
	for _, name := range r.Names() {
		out = append(out, r.kits[name])
	}
	return out
}
