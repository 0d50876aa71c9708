package server

import (
	"encoding/json"

	"github.com/cmake-mcp/cmake-mcp/internal/driver"
	"github.com/cmake-mcp/cmake-mcp/pkg/types"
)

// ConvertCodeModel maps a codemodel reply to the canonical model. The server
// protocol reports most paths absolute already; sources are normalized to be
// relative to the target's source directory with forward slashes.
func ConvertCodeModel(payload json.RawMessage, sourceDir string) (*types.CodeModel, error) {
	var raw serverCodeModel
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}

	model := &types.CodeModel{
		Configurations: make([]types.Configuration, 0, len(raw.Configurations)),
	}
	for _, rc := range raw.Configurations {
		cfg := types.Configuration{
			Name:     rc.Name,
			Projects: make([]types.Project, 0, len(rc.Projects)),
		}
		for _, rp := range rc.Projects {
			proj := types.Project{
				Name:            rp.Name,
				SourceDirectory: driver.AbsoluteFrom(sourceDir, rp.SourceDirectory),
				Targets:         make([]types.Target, 0, len(rp.Targets)),
			}
			for _, rt := range rp.Targets {
				proj.Targets = append(proj.Targets, convertTarget(rt, sourceDir))
			}
			cfg.Projects = append(cfg.Projects, proj)
		}
		model.Configurations = append(model.Configurations, cfg)
	}
	return model, nil
}

func convertTarget(rt serverTarget, sourceDir string) types.Target {
	targetSourceDir := driver.AbsoluteFrom(sourceDir, rt.SourceDirectory)

	t := types.Target{
		Name:            rt.Name,
		Type:            types.TargetType(rt.Type),
		SourceDirectory: targetSourceDir,
		FullName:        rt.FullName,
		Sysroot:         rt.Sysroot,
	}
	for _, a := range rt.Artifacts {
		t.Artifacts = append(t.Artifacts, driver.AbsoluteFrom(rt.BuildDirectory, a))
	}

	for _, fg := range rt.FileGroups {
		group := types.FileGroup{
			Language:    fg.Language,
			Defines:     fg.Defines,
			IsGenerated: fg.IsGenerated,
		}
		if fg.CompileFlags != "" {
			group.CompileFragments = []string{fg.CompileFlags}
		}
		for _, inc := range fg.IncludePath {
			group.Includes = append(group.Includes, inc.Path)
		}
		for _, src := range fg.Sources {
			abs := driver.AbsoluteFrom(targetSourceDir, src)
			group.Sources = append(group.Sources, driver.SourceRelative(targetSourceDir, abs))
		}
		if t.Sysroot == "" && fg.Sysroot != "" {
			t.Sysroot = fg.Sysroot
		}
		t.FileGroups = append(t.FileGroups, group)
	}
	return t
}

// convertCache maps a cache reply to canonical entries.
func convertCache(payload json.RawMessage) ([]types.CacheEntry, error) {
	var raw serverCacheReply
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	entries := make([]types.CacheEntry, 0, len(raw.Cache))
	for _, e := range raw.Cache {
		entries = append(entries, types.CacheEntry{
			Name:  e.Key,
			Type:  e.Type,
			Value: e.Value,
		})
	}
	return entries, nil
}
