package fileapi

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/cmake-mcp/cmake-mcp/internal/driver"
	"github.com/cmake-mcp/cmake-mcp/internal/expand"
	"github.com/cmake-mcp/cmake-mcp/pkg/types"
)

// Driver configures by invoking cmake once per configure and reading the
// reply directory it leaves behind. No long-lived tool process exists; all
// state between configures lives in the build tree.
type Driver struct {
	core *driver.Core

	mu         sync.Mutex
	model      *types.CodeModel
	entries    []types.CacheEntry
	toolchains []Toolchain
	inputs     []string
}

// New builds a file-api driver on the shared core.
func New(core *driver.Core) *Driver {
	return &Driver{core: core}
}

// Configure writes the query, invokes cmake, and reloads the model from the
// reply directory. Returns 0 on success, types.ResultRejected on a refused
// precondition, otherwise cmake's exit code.
func (d *Driver) Configure(ctx context.Context) int {
	if !d.core.BeginConfigure() {
		return types.ResultRejected
	}
	defer d.core.EndConfigure()

	if !d.core.CheckSourcePreconditions() {
		return types.ResultRejected
	}

	if d.core.ConsumeCleanRequired() {
		d.core.Log().Info("kit change invalidates build tree, cleaning")
		if err := d.core.CleanBuildTree(); err != nil {
			d.core.Log().Error("clean failed", zap.Error(err))
			return 1
		}
	}

	return d.configure(ctx)
}

// CleanConfigure deletes CMake's cached state and reconfigures from scratch.
func (d *Driver) CleanConfigure(ctx context.Context) int {
	if !d.core.BeginConfigure() {
		return types.ResultRejected
	}
	defer d.core.EndConfigure()

	if !d.core.CheckSourcePreconditions() {
		return types.ResultRejected
	}

	if err := d.core.CleanBuildTree(); err != nil {
		d.core.Log().Error("clean failed", zap.Error(err))
		return 1
	}

	return d.configure(ctx)
}

func (d *Driver) configure(ctx context.Context) int {
	buildDir := d.core.BuildDirectory()
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		d.core.Log().Error("cannot create build directory", zap.Error(err))
		return 1
	}
	if err := WriteQuery(buildDir); err != nil {
		d.core.Log().Error("cannot write file-api query", zap.Error(err))
		return 1
	}

	ectx := d.core.ExpansionContext()
	gen := d.core.Generator()

	args := []string{"-S", d.core.Settings().SourceDirectory, "-B", buildDir, "-G", gen.Name}
	if gen.Platform != "" {
		args = append(args, "-A", gen.Platform)
	}
	if gen.Toolset != "" {
		args = append(args, "-T", gen.Toolset)
	}
	args = append(args, d.core.CacheDefinitions()...)
	args = append(args, d.core.CacheInitArgs()...)
	args = append(args, expand.ExpandAll(d.core.Settings().ConfigureArgs, ectx)...)

	code := d.core.RunTool(ctx, d.core.ConfigureEnvironment(), args...)
	if code != 0 {
		d.core.Log().Error("configure failed", zap.Int("code", code))
		return code
	}

	if err := d.reload(ctx, buildDir); err != nil {
		d.core.Log().Error("reply directory unusable", zap.Error(err))
		return 1
	}
	return types.ResultOK
}

// reload reparses the reply directory and publishes the fresh model.
func (d *Driver) reload(ctx context.Context, buildDir string) error {
	reply, err := OpenReply(d.core.Log(), buildDir)
	if err != nil {
		return err
	}

	model, err := reply.CodeModel(ctx)
	if err != nil {
		return err
	}
	entries := reply.CacheEntries()
	toolchains := reply.Toolchains()
	inputs := reply.CMakeFiles(d.core.Settings().SourceDirectory)

	d.mu.Lock()
	d.model = model
	d.entries = entries
	d.toolchains = toolchains
	d.inputs = inputs
	d.mu.Unlock()

	if model != nil {
		d.core.NotifyCodeModel(model)
		d.core.Log().Info("configure finished",
			zap.Int("configurations", len(model.Configurations)))
	} else {
		d.core.Log().Warn("configure finished without a usable code model")
	}
	return nil
}

// Build delegates to the shared build strategy.
func (d *Driver) Build(ctx context.Context, targets []string) int {
	return d.core.Build(ctx, targets)
}

// Stop kills any in-flight tool process.
func (d *Driver) Stop() error {
	return d.core.Stop()
}

// SetKit applies a kit through the core.
func (d *Driver) SetKit(ctx context.Context, k types.Kit) error {
	return d.core.SetKit(ctx, k)
}

// CodeModel returns the model from the last successful configure, nil before
// the first.
func (d *Driver) CodeModel() *types.CodeModel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.model
}

// CacheEntries returns the cache snapshot from the last successful configure.
func (d *Driver) CacheEntries() []types.CacheEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries
}

// Toolchains returns the compiler set cmake resolved during the last
// configure.
func (d *Driver) Toolchains() []Toolchain {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.toolchains
}

// CMakeFiles returns the listfiles the last configure consumed.
func (d *Driver) CMakeFiles() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inputs
}

// GeneratorName reports the selected generator.
func (d *Driver) GeneratorName() string { return d.core.GeneratorName() }

// Status reports the driver's point-in-time state.
func (d *Driver) Status() types.DriverStatus {
	st := d.core.Status()
	d.mu.Lock()
	st.HasCodeModel = d.model != nil
	d.mu.Unlock()
	return st
}

// Dispose releases core resources.
func (d *Driver) Dispose() error {
	return d.core.Dispose()
}
