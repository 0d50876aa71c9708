package fileapi

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cmake-mcp/cmake-mcp/internal/errors"
)

const indexPrefix = "index-"

// indexObject is one {kind, version, file} entry of the reply index.
type indexObject struct {
	Kind     string     `json:"kind"`
	Version  apiVersion `json:"version"`
	JSONFile string     `json:"jsonFile"`
}

type indexFile struct {
	Objects []indexObject `json:"objects"`
}

// replyIndex is the loaded manifest of one configure's reply objects.
type replyIndex struct {
	dir     string
	objects []indexObject
}

// currentIndexPath finds the current index file: the lexicographically
// greatest index-*.json in the reply directory. cmake names index files by
// timestamp, so greatest means newest. No index at all is a hard failure;
// there is nothing to parse.
func currentIndexPath(replyDir string) (string, error) {
	entries, err := os.ReadDir(replyDir)
	if err != nil {
		return "", errors.NoIndexFile(replyDir).WithCause(err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, indexPrefix) && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", errors.NoIndexFile(replyDir)
	}
	sort.Strings(names)
	return filepath.Join(replyDir, names[len(names)-1]), nil
}

// loadIndex reads the current reply index. A missing index is a hard error;
// an index that exists but cannot be read or decoded degrades to "no model
// available" with a warning.
func loadIndex(log *zap.Logger, replyDir string) (*replyIndex, error) {
	path, err := currentIndexPath(replyDir)
	if err != nil {
		return nil, err
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		log.Warn("reply index unreadable", zap.String("path", path), zap.Error(err))
		return nil, nil
	}
	var idx indexFile
	if err := json.Unmarshal(payload, &idx); err != nil {
		log.Warn("reply index undecodable", zap.String("path", path), zap.Error(err))
		return nil, nil
	}

	return &replyIndex{dir: replyDir, objects: idx.Objects}, nil
}

// object returns the reply object entry for kind.
func (ri *replyIndex) object(kind string) (indexObject, bool) {
	for _, obj := range ri.objects {
		if obj.Kind == kind {
			return obj, true
		}
	}
	return indexObject{}, false
}

// readObject loads and decodes one reply object file into v, reporting its
// version tag. Missing or unreadable object files degrade to (false, nil).
func (ri *replyIndex) readObject(log *zap.Logger, kind string, v interface{}) (apiVersion, bool) {
	obj, ok := ri.object(kind)
	if !ok {
		log.Warn("reply object missing from index", zap.String("kind", kind))
		return apiVersion{}, false
	}

	payload, err := os.ReadFile(filepath.Join(ri.dir, obj.JSONFile))
	if err != nil {
		log.Warn("reply object unreadable",
			zap.String("kind", kind),
			zap.String("file", obj.JSONFile),
			zap.Error(err))
		return apiVersion{}, false
	}
	if err := json.Unmarshal(payload, v); err != nil {
		log.Warn("reply object undecodable",
			zap.String("kind", kind),
			zap.String("file", obj.JSONFile),
			zap.Error(err))
		return apiVersion{}, false
	}
	return obj.Version, true
}

// readJSON loads and decodes an arbitrary file from the reply directory,
// such as a per-target object referenced by the codemodel. Failures degrade
// to false with a warning.
func (ri *replyIndex) readJSON(log *zap.Logger, name string, v interface{}) bool {
	payload, err := os.ReadFile(filepath.Join(ri.dir, name))
	if err != nil {
		log.Warn("reply file unreadable", zap.String("file", name), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(payload, v); err != nil {
		log.Warn("reply file undecodable", zap.String("file", name), zap.Error(err))
		return false
	}
	return true
}

// versionCompatible reports whether got satisfies the expected version for
// kind: same major, and no minor regression. Incompatibility is only ever a
// warning; the caller decides per kind whether to keep the parsed data.
func versionCompatible(log *zap.Logger, kind string, got apiVersion) bool {
	want := expectedVersions[kind]
	if got.Major == want.Major && got.Minor >= want.Minor {
		return true
	}
	log.Warn("reply object version mismatch",
		zap.String("kind", kind),
		zap.Int("gotMajor", got.Major),
		zap.Int("gotMinor", got.Minor),
		zap.Int("wantMajor", want.Major),
		zap.Int("wantMinor", want.Minor))
	return false
}
