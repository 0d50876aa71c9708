package driver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/cmake-mcp/cmake-mcp/internal/driver/fileapi"
	"github.com/cmake-mcp/cmake-mcp/internal/driver/server"
	"github.com/cmake-mcp/cmake-mcp/pkg/types"
)

// Both transports must normalize the same underlying build tree to the same
// canonical model: target names, types, absolute artifact paths, and source
// membership. Compile-flag representation is allowed to differ (the server
// protocol reports one flattened string, the file api itemized fragments).

func fileAPIModel(t *testing.T, src, build string) *types.CodeModel {
	t.Helper()

	buildDir := t.TempDir()
	replyDir := fileapi.ReplyDir(buildDir)
	if err := os.MkdirAll(replyDir, 0o755); err != nil {
		t.Fatal(err)
	}

	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(replyDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("index-2024-01-01T00-00-00.json",
		`{"objects":[{"kind":"codemodel","version":{"major":2,"minor":0},"jsonFile":"codemodel.json"}]}`)
	write("codemodel.json", fmt.Sprintf(`{
		"paths": {"source": %q, "build": %q},
		"configurations": [{
			"name": "Debug",
			"directories": [{"source": ".", "build": "."}],
			"projects": [{"name": "demo", "directoryIndexes": [0], "targetIndexes": [0]}],
			"targets": [{"name": "app", "jsonFile": "target-app.json"}]
		}]
	}`, src, build))
	write("target-app.json", `{
		"name": "app",
		"type": "EXECUTABLE",
		"nameOnDisk": "app",
		"paths": {"source": ".", "build": "."},
		"artifacts": [{"path": "app"}],
		"compileGroups": [{
			"language": "CXX",
			"compileCommandFragments": [{"fragment": "-O2"}, {"fragment": "-g"}],
			"includes": [{"path": "include"}],
			"defines": [{"define": "FOO=1"}]
		}],
		"sources": [
			{"path": "src/main.cpp", "compileGroupIndex": 0},
			{"path": "src/util.h"}
		]
	}`)

	reply, err := fileapi.OpenReply(zap.NewNop(), buildDir)
	if err != nil {
		t.Fatal(err)
	}
	model, err := reply.CodeModel(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if model == nil {
		t.Fatal("file api produced no model")
	}
	return model
}

func serverModel(t *testing.T, src, build string) *types.CodeModel {
	t.Helper()

	payload := fmt.Sprintf(`{
		"type": "reply",
		"inReplyTo": "codemodel",
		"configurations": [{
			"name": "Debug",
			"projects": [{
				"name": "demo",
				"sourceDirectory": %q,
				"buildDirectory": %q,
				"targets": [{
					"name": "app",
					"type": "EXECUTABLE",
					"fullName": "app",
					"sourceDirectory": %q,
					"buildDirectory": %q,
					"artifacts": [%q],
					"fileGroups": [
						{
							"language": "CXX",
							"compileFlags": "-O2 -g",
							"includePath": [{"path": %q}],
							"defines": ["FOO=1"],
							"sources": ["src/main.cpp"]
						},
						{"sources": ["src/util.h"]}
					]
				}]
			}]
		}]
	}`, src, build, src, build,
		filepath.Join(build, "app"),
		filepath.Join(src, "include"))

	model, err := server.ConvertCodeModel(json.RawMessage(payload), src)
	if err != nil {
		t.Fatal(err)
	}
	return model
}

func soleTarget(t *testing.T, m *types.CodeModel) types.Target {
	t.Helper()
	if len(m.Configurations) != 1 || len(m.Configurations[0].Projects) != 1 ||
		len(m.Configurations[0].Projects[0].Targets) != 1 {
		t.Fatalf("unexpected model shape: %+v", m)
	}
	return m.Configurations[0].Projects[0].Targets[0]
}

func TestTransportsAgreeOnNormalizedModel(t *testing.T) {
	src, build := t.TempDir(), t.TempDir()

	fa := soleTarget(t, fileAPIModel(t, src, build))
	sv := soleTarget(t, serverModel(t, src, build))

	if fa.Name != sv.Name || fa.Type != sv.Type || fa.FullName != sv.FullName {
		t.Errorf("target identity differs: fileapi %+v vs server %+v", fa, sv)
	}
	if fa.SourceDirectory != sv.SourceDirectory {
		t.Errorf("source directory differs: %q vs %q", fa.SourceDirectory, sv.SourceDirectory)
	}

	if len(fa.Artifacts) != 1 || len(sv.Artifacts) != 1 || fa.Artifacts[0] != sv.Artifacts[0] {
		t.Errorf("artifacts differ: %v vs %v", fa.Artifacts, sv.Artifacts)
	}

	faSources := allSources(fa)
	svSources := allSources(sv)
	if len(faSources) != len(svSources) {
		t.Fatalf("source sets differ: %v vs %v", faSources, svSources)
	}
	for s := range faSources {
		if !svSources[s] {
			t.Errorf("source %q present only in file api model", s)
		}
	}

	if fa.FileGroups[0].Includes[0] != sv.FileGroups[0].Includes[0] {
		t.Errorf("includes differ: %v vs %v", fa.FileGroups[0].Includes, sv.FileGroups[0].Includes)
	}
	if fa.FileGroups[0].Defines[0] != sv.FileGroups[0].Defines[0] {
		t.Errorf("defines differ: %v vs %v", fa.FileGroups[0].Defines, sv.FileGroups[0].Defines)
	}
}

func allSources(target types.Target) map[string]bool {
	sources := make(map[string]bool)
	for _, fg := range target.FileGroups {
		for _, s := range fg.Sources {
			sources[s] = true
		}
	}
	return sources
}
