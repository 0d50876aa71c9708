package fileapi

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/cmake-mcp/cmake-mcp/internal/errors"
)

func writeReplyFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCurrentIndexPicksLexicographicallyGreatest(t *testing.T) {
	dir := t.TempDir()
	writeReplyFile(t, dir, "index-2023-01-01T00-00-00.json", `{"objects":[]}`)
	writeReplyFile(t, dir, "index-2023-06-01T00-00-00.json", `{"objects":[]}`)
	writeReplyFile(t, dir, "codemodel-v2-aaaa.json", `{}`)

	path, err := currentIndexPath(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(path) != "index-2023-06-01T00-00-00.json" {
		t.Errorf("picked %s, want the newer index", filepath.Base(path))
	}
}

func TestMissingIndexIsHardFailure(t *testing.T) {
	dir := t.TempDir()
	writeReplyFile(t, dir, "codemodel-v2-aaaa.json", `{}`)

	if _, err := currentIndexPath(dir); !errors.Is(err, errors.CodeNoIndexFile) {
		t.Errorf("populated-but-indexless dir: err = %v, want no-index error", err)
	}

	missing := filepath.Join(dir, "does-not-exist")
	if _, err := currentIndexPath(missing); !errors.Is(err, errors.CodeNoIndexFile) {
		t.Errorf("missing reply dir: err = %v, want no-index error", err)
	}
}

func TestUndecodableIndexDegradesToNoModel(t *testing.T) {
	dir := t.TempDir()
	writeReplyFile(t, dir, "index-2023-01-01T00-00-00.json", `{not json`)

	idx, err := loadIndex(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("undecodable index must not be a hard failure: %v", err)
	}
	if idx != nil {
		t.Error("undecodable index yielded a usable index")
	}
}

func TestReadObjectMissingKindDegrades(t *testing.T) {
	dir := t.TempDir()
	writeReplyFile(t, dir, "index-2023-01-01T00-00-00.json", `{"objects":[]}`)

	idx, err := loadIndex(zap.NewNop(), dir)
	if err != nil || idx == nil {
		t.Fatalf("loadIndex: idx=%v err=%v", idx, err)
	}
	var v struct{}
	if _, ok := idx.readObject(zap.NewNop(), "cache", &v); ok {
		t.Error("absent object kind reported as readable")
	}
}
