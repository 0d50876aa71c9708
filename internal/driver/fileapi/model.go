package fileapi

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cmake-mcp/cmake-mcp/internal/driver"
	"github.com/cmake-mcp/cmake-mcp/pkg/types"
)

// --- Raw reply object shapes ---

type rawCodeModel struct {
	Paths struct {
		Source string `json:"source"`
		Build  string `json:"build"`
	} `json:"paths"`
	Configurations []rawConfiguration `json:"configurations"`
}

type rawConfiguration struct {
	Name        string         `json:"name"`
	Directories []rawDirectory `json:"directories"`
	Projects    []rawProject   `json:"projects"`
	Targets     []rawTargetRef `json:"targets"`
}

type rawDirectory struct {
	Source         string `json:"source"`
	Build          string `json:"build"`
	HasInstallRule bool   `json:"hasInstallRule"`
}

type rawProject struct {
	Name             string `json:"name"`
	DirectoryIndexes []int  `json:"directoryIndexes"`
	TargetIndexes    []int  `json:"targetIndexes"`
}

type rawTargetRef struct {
	Name     string `json:"name"`
	JSONFile string `json:"jsonFile"`
}

type rawTarget struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NameOnDisk string `json:"nameOnDisk"`
	Paths      struct {
		Source string `json:"source"`
		Build  string `json:"build"`
	} `json:"paths"`
	Artifacts []struct {
		Path string `json:"path"`
	} `json:"artifacts"`
	CompileGroups []rawCompileGroup `json:"compileGroups"`
	Sources       []rawSource       `json:"sources"`
}

type rawCompileGroup struct {
	Language                string `json:"language"`
	CompileCommandFragments []struct {
		Fragment string `json:"fragment"`
	} `json:"compileCommandFragments"`
	Includes []struct {
		Path     string `json:"path"`
		IsSystem bool   `json:"isSystem"`
	} `json:"includes"`
	Frameworks []struct {
		Path string `json:"path"`
	} `json:"frameworks"`
	Defines []struct {
		Define string `json:"define"`
	} `json:"defines"`
	Sysroot struct {
		Path string `json:"path"`
	} `json:"sysroot"`
}

type rawSource struct {
	Path              string `json:"path"`
	CompileGroupIndex *int   `json:"compileGroupIndex"`
	IsGenerated       bool   `json:"isGenerated"`
}

type rawCache struct {
	Entries []struct {
		Name  string `json:"name"`
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"entries"`
}

type rawToolchains struct {
	Toolchains []struct {
		Language string `json:"language"`
		Compiler struct {
			Path    string `json:"path"`
			ID      string `json:"id"`
			Version string `json:"version"`
			Target  string `json:"target"`
		} `json:"compiler"`
	} `json:"toolchains"`
}

type rawCMakeFiles struct {
	Inputs []struct {
		Path        string `json:"path"`
		IsGenerated bool   `json:"isGenerated"`
		IsExternal  bool   `json:"isExternal"`
	} `json:"inputs"`
}

// Toolchain describes one language's compiler as cmake resolved it.
type Toolchain struct {
	Language string `json:"language"`
	Path     string `json:"path"`
	ID       string `json:"id"`
	Version  string `json:"version"`
	Target   string `json:"target,omitempty"`
}

// Reply reads one configure's reply directory.
type Reply struct {
	log *zap.Logger
	idx *replyIndex
}

// OpenReply locates and loads the current reply index. A missing index is a
// hard error; an unreadable one yields a Reply that degrades every load to
// empty results.
func OpenReply(log *zap.Logger, buildDir string) (*Reply, error) {
	idx, err := loadIndex(log, ReplyDir(buildDir))
	if err != nil {
		return nil, err
	}
	return &Reply{log: log, idx: idx}, nil
}

// CodeModel reconstructs the canonical model from the codemodel object and
// its per-target files. A version mismatch is logged but the parsed data is
// still returned; the codemodel shape has proven stable enough across minor
// drift that discarding it hurts more than it protects.
func (r *Reply) CodeModel(ctx context.Context) (*types.CodeModel, error) {
	if r.idx == nil {
		return nil, nil
	}
	var raw rawCodeModel
	version, ok := r.idx.readObject(r.log, "codemodel", &raw)
	if !ok {
		return nil, nil
	}
	versionCompatible(r.log, "codemodel", version)

	model := &types.CodeModel{
		Configurations: make([]types.Configuration, 0, len(raw.Configurations)),
	}
	for _, rc := range raw.Configurations {
		cfg, err := r.loadConfiguration(ctx, raw, rc)
		if err != nil {
			return nil, err
		}
		model.Configurations = append(model.Configurations, cfg)
	}
	return model, nil
}

// loadConfiguration assembles one configuration. Target object files are
// independent reads, so they load concurrently; the configuration is not
// ready until every target across every project has resolved.
func (r *Reply) loadConfiguration(ctx context.Context, raw rawCodeModel, rc rawConfiguration) (types.Configuration, error) {
	sourceRoot := raw.Paths.Source
	buildRoot := raw.Paths.Build

	// Flat target list first, indexed as the reply references them.
	targets := make([]types.Target, len(rc.Targets))
	g, ctx := errgroup.WithContext(ctx)
	for i, ref := range rc.Targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rt rawTarget
			if !r.idx.readJSON(r.log, ref.JSONFile, &rt) {
				// Degrade to a name-only target rather than failing the
				// whole configuration.
				targets[i] = types.Target{Name: ref.Name}
				return nil
			}
			targets[i] = convertTarget(rt, sourceRoot, buildRoot)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.Configuration{}, err
	}

	cfg := types.Configuration{
		Name:     rc.Name,
		Projects: make([]types.Project, 0, len(rc.Projects)),
	}
	for _, rp := range rc.Projects {
		proj := types.Project{
			Name:            rp.Name,
			SourceDirectory: sourceRoot,
		}
		if len(rp.DirectoryIndexes) > 0 {
			di := rp.DirectoryIndexes[0]
			if di >= 0 && di < len(rc.Directories) {
				proj.SourceDirectory = driver.AbsoluteFrom(sourceRoot, rc.Directories[di].Source)
			}
		}
		for _, ti := range rp.TargetIndexes {
			if ti >= 0 && ti < len(targets) {
				proj.Targets = append(proj.Targets, targets[ti])
			}
		}
		cfg.Projects = append(cfg.Projects, proj)
	}

	// Any directory with an install rule means the generated build system
	// carries an "install" pseudo-target. It has no object file of its own,
	// so it is synthesized onto the root project.
	for _, dir := range rc.Directories {
		if dir.HasInstallRule && len(cfg.Projects) > 0 {
			cfg.Projects[0].Targets = append(cfg.Projects[0].Targets, types.Target{
				Name: "install",
				Type: types.TargetUtility,
			})
			break
		}
	}
	return cfg, nil
}

// convertTarget maps one raw target object to the canonical form. Source
// paths are resolved absolute against the reply's source root, then
// re-expressed relative to the target's own source directory.
func convertTarget(rt rawTarget, sourceRoot, buildRoot string) types.Target {
	targetSourceDir := driver.AbsoluteFrom(sourceRoot, rt.Paths.Source)

	t := types.Target{
		Name:            rt.Name,
		Type:            types.TargetType(rt.Type),
		SourceDirectory: targetSourceDir,
		FullName:        rt.NameOnDisk,
	}

	// Only artifacts whose on-disk name matches the target's own are its
	// build products; the rest are import libraries and similar side files.
	for _, a := range rt.Artifacts {
		if rt.NameOnDisk == "" || filepath.Base(a.Path) == rt.NameOnDisk {
			t.Artifacts = append(t.Artifacts, driver.AbsoluteFrom(buildRoot, a.Path))
		}
	}

	groups := make([]types.FileGroup, len(rt.CompileGroups))
	for i, cg := range rt.CompileGroups {
		fg := types.FileGroup{Language: cg.Language}
		for _, inc := range cg.Includes {
			fg.Includes = append(fg.Includes, driver.AbsoluteFrom(sourceRoot, inc.Path))
		}
		for _, fw := range cg.Frameworks {
			fg.Includes = append(fg.Includes, driver.AbsoluteFrom(sourceRoot, fw.Path))
		}
		for _, d := range cg.Defines {
			fg.Defines = append(fg.Defines, d.Define)
		}
		for _, f := range cg.CompileCommandFragments {
			fg.CompileFragments = append(fg.CompileFragments, f.Fragment)
		}
		if t.Sysroot == "" && cg.Sysroot.Path != "" {
			t.Sysroot = cg.Sysroot.Path
		}
		groups[i] = fg
	}

	// Each source lands in its compile group; the leftovers (headers and
	// other non-compiled files) share one synthetic catch-all group whose
	// isGenerated is true when any member is generated.
	var catchAll *types.FileGroup
	for _, src := range rt.Sources {
		abs := driver.AbsoluteFrom(sourceRoot, src.Path)
		rel := driver.SourceRelative(targetSourceDir, abs)

		if src.CompileGroupIndex != nil && *src.CompileGroupIndex >= 0 && *src.CompileGroupIndex < len(groups) {
			fg := &groups[*src.CompileGroupIndex]
			fg.Sources = append(fg.Sources, rel)
			if src.IsGenerated {
				fg.IsGenerated = true
			}
			continue
		}
		if catchAll == nil {
			catchAll = &types.FileGroup{}
		}
		catchAll.Sources = append(catchAll.Sources, rel)
		if src.IsGenerated {
			catchAll.IsGenerated = true
		}
	}

	t.FileGroups = groups
	if catchAll != nil {
		t.FileGroups = append(t.FileGroups, *catchAll)
	}
	return t
}

// CacheEntries loads the cache object. On a version mismatch the parsed
// entries are discarded: stale cache data misleads kit-change detection.
func (r *Reply) CacheEntries() []types.CacheEntry {
	if r.idx == nil {
		return nil
	}
	var raw rawCache
	version, ok := r.idx.readObject(r.log, "cache", &raw)
	if !ok {
		return nil
	}
	if !versionCompatible(r.log, "cache", version) {
		return nil
	}

	entries := make([]types.CacheEntry, 0, len(raw.Entries))
	for _, e := range raw.Entries {
		entries = append(entries, types.CacheEntry{Name: e.Name, Type: e.Type, Value: e.Value})
	}
	return entries
}

// Toolchains loads the toolchains object. Like the cache, a version
// mismatch yields an empty result.
func (r *Reply) Toolchains() []Toolchain {
	if r.idx == nil {
		return nil
	}
	var raw rawToolchains
	version, ok := r.idx.readObject(r.log, "toolchains", &raw)
	if !ok {
		return nil
	}
	if !versionCompatible(r.log, "toolchains", version) {
		return nil
	}

	chains := make([]Toolchain, 0, len(raw.Toolchains))
	for _, tc := range raw.Toolchains {
		chains = append(chains, Toolchain{
			Language: tc.Language,
			Path:     tc.Compiler.Path,
			ID:       tc.Compiler.ID,
			Version:  tc.Compiler.Version,
			Target:   tc.Compiler.Target,
		})
	}
	return chains
}

// CMakeFiles loads the list of listfiles the configure consumed, absolute
// paths, generated files excluded. Useful for change watching.
func (r *Reply) CMakeFiles(sourceDir string) []string {
	if r.idx == nil {
		return nil
	}
	var raw rawCMakeFiles
	version, ok := r.idx.readObject(r.log, "cmakeFiles", &raw)
	if !ok {
		return nil
	}
	if !versionCompatible(r.log, "cmakeFiles", version) {
		return nil
	}

	var inputs []string
	for _, in := range raw.Inputs {
		if in.IsGenerated {
			continue
		}
		inputs = append(inputs, driver.AbsoluteFrom(sourceDir, in.Path))
	}
	return inputs
}
