// Package cache reads CMake's persisted cache file (CMakeCache.txt) into a
// read-only snapshot. The snapshot is replaced wholesale on reload, never
// mutated.
//
// The file is line oriented: "// ..." lines are entry docstrings, "# ..."
// lines are file comments, and every other non-empty line is NAME:TYPE=VALUE.
// Entries whose name ends in -ADVANCED are cache metadata, not variables, and
// are suppressed from the snapshot.
package cache

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/cmake-mcp/cmake-mcp/pkg/types"
)

// Snapshot is the parsed cache content.
type Snapshot struct {
	entries []types.CacheEntry
	byName  map[string]int
}

// FileName is the cache file name inside a build tree.
const FileName = "CMakeCache.txt"

// CachePath returns the cache file path for a build tree.
func CachePath(buildDir string) string {
	return filepath.Join(buildDir, FileName)
}

// Load parses the cache file at path. A missing file is an error; the caller
// decides whether that is fatal.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	snap := &Snapshot{byName: make(map[string]int)}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}

		entry, ok := parseLine(line)
		if !ok {
			continue
		}
		if strings.HasSuffix(entry.Name, "-ADVANCED") || strings.HasSuffix(entry.Name, "-STRINGS") {
			continue
		}

		snap.byName[entry.Name] = len(snap.entries)
		snap.entries = append(snap.entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}

// parseLine splits NAME:TYPE=VALUE. The value may itself contain '=' and
// ':'. Names containing special characters are written quoted.
func parseLine(line string) (types.CacheEntry, bool) {
	var name string
	rest := line
	if strings.HasPrefix(line, `"`) {
		end := strings.Index(line[1:], `"`)
		if end < 0 {
			return types.CacheEntry{}, false
		}
		name = line[1 : end+1]
		rest = line[end+2:]
	} else {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return types.CacheEntry{}, false
		}
		name = line[:colon]
		rest = line[colon:]
	}

	if !strings.HasPrefix(rest, ":") {
		return types.CacheEntry{}, false
	}
	eq := strings.IndexByte(rest, '=')
	if eq < 0 {
		return types.CacheEntry{}, false
	}

	return types.CacheEntry{
		Name:  name,
		Type:  rest[1:eq],
		Value: rest[eq+1:],
	}, true
}

// Entries returns the snapshot's entries in file order.
func (s *Snapshot) Entries() []types.CacheEntry {
	return s.entries
}

// Get returns the entry with the given name.
func (s *Snapshot) Get(name string) (types.CacheEntry, bool) {
	i, ok := s.byName[name]
	if !ok {
		return types.CacheEntry{}, false
	}
	return s.entries[i], true
}

// SourceDirectory returns the CMAKE_HOME_DIRECTORY string exactly as the
// cache records it. The server-mode handshake must reuse this verbatim, not
// a recomputed equivalent path.
func (s *Snapshot) SourceDirectory() (string, bool) {
	e, ok := s.Get("CMAKE_HOME_DIRECTORY")
	if !ok {
		return "", false
	}
	return e.Value, true
}

// Generator returns the CMAKE_GENERATOR recorded in the cache.
func (s *Snapshot) Generator() (string, bool) {
	e, ok := s.Get("CMAKE_GENERATOR")
	if !ok {
		return "", false
	}
	return e.Value, true
}

// ToolchainFile returns the CMAKE_TOOLCHAIN_FILE recorded in the cache.
func (s *Snapshot) ToolchainFile() (string, bool) {
	e, ok := s.Get("CMAKE_TOOLCHAIN_FILE")
	if !ok {
		return "", false
	}
	return e.Value, true
}
