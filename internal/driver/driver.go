// Package driver implements the transport-independent CMake driver core.
//
// This package provides:
//   - Driver: the capability interface both transports implement
//   - Core: the shared lifecycle (single-flight configure/build guard,
//     kit application, environment layering, generator selection,
//     precondition signaling, tool process control)
//
// The two concrete transports (internal/driver/fileapi and
// internal/driver/server) embed a *Core and plug their own configure and
// model-loading strategies into it. At most one configure-or-build may be
// active per driver instance at any time; this guard is the only concurrency
// control over the shared on-disk build tree.
package driver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/cmake-mcp/cmake-mcp/internal/config"
	"github.com/cmake-mcp/cmake-mcp/internal/expand"
	"github.com/cmake-mcp/cmake-mcp/internal/kit"
	"github.com/cmake-mcp/cmake-mcp/pkg/types"
)

// Driver is the transport-facing capability surface. Configure and Build
// return a process-exit-style integer: 0 success, types.ResultRejected for a
// refused precondition, otherwise the tool's exit code. No error crosses
// this surface once a driver exists.
type Driver interface {
	Configure(ctx context.Context) int
	CleanConfigure(ctx context.Context) int
	Build(ctx context.Context, targets []string) int
	Stop() error
	SetKit(ctx context.Context, k types.Kit) error
	CodeModel() *types.CodeModel
	CacheEntries() []types.CacheEntry
	GeneratorName() string
	Status() types.DriverStatus
	Dispose() error
}

// Options configures a Core.
type Options struct {
	Settings *config.Settings
	Log      *zap.Logger

	// OnPrecondition receives refused-operation reasons. Optional.
	OnPrecondition types.PreconditionHandler

	// OnOutput receives raw tool output lines. Optional.
	OnOutput func(line string)

	// OnCodeModel receives the fresh model after every successful configure.
	OnCodeModel types.CodeModelHandler

	// Prober identifies kit compilers. Optional; created when nil.
	Prober *kit.Prober
}

// Core carries the driver state shared by both transports.
type Core struct {
	log      *zap.Logger
	settings *config.Settings
	prober   *kit.Prober
	ownProbe bool

	onPrecondition types.PreconditionHandler
	onOutput       func(line string)
	onCodeModel    types.CodeModelHandler

	mu            sync.Mutex
	kit           *types.Kit
	generator     types.Generator
	env           map[string]string // kit + Environment layers over the process env
	compilerInfo  kit.Info
	cleanRequired bool

	opMu        sync.Mutex
	configuring bool
	building    bool

	procMu  sync.Mutex
	proc    *exec.Cmd
	procPID int

	// probeRun executes a build tool's version query. Swapped out in tests.
	probeRun func(name string, args ...string) error
}

// NewCore builds the shared driver core and selects a generator. Selection
// failure is fatal: no driver instance is produced.
func NewCore(opts Options) (*Core, error) {
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}

	c := &Core{
		log:            opts.Log,
		settings:       opts.Settings,
		prober:         opts.Prober,
		onPrecondition: opts.OnPrecondition,
		onOutput:       opts.OnOutput,
		onCodeModel:    opts.OnCodeModel,
		probeRun:       runProbe,
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.prober == nil {
		c.prober = kit.NewProber(c.log)
		c.ownProbe = true
	}
	c.env = expand.MergeEnvironment(expand.EnvironToMap(os.Environ()), opts.Settings.Environment)

	gen, err := c.selectGenerator(nil)
	if err != nil {
		return nil, err
	}
	c.generator = gen
	c.log.Info("generator selected", zap.String("generator", gen.Name))

	return c, nil
}

// Log returns the core's logger.
func (c *Core) Log() *zap.Logger { return c.log }

// Settings returns the driver settings.
func (c *Core) Settings() *config.Settings { return c.settings }

// SetKit replaces the active kit wholesale: the effective environment is
// recomputed by layering the kit's variables under the configuration layers,
// the generator is re-selected unless the user pinned one, and the build
// tree is marked for deletion when the new kit implies an incompatible
// generator or toolchain switch for the unchanged binary directory.
func (c *Core) SetKit(ctx context.Context, k types.Kit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	kitEnv := k.EnvironmentVariables
	c.env = expand.MergeEnvironment(expand.EnvironToMap(os.Environ()), kitEnv, c.settings.Environment)

	if c.settings.Generator == "" {
		preferred := k.PreferredGenerator
		gen, err := c.selectGenerator(preferred)
		if err != nil {
			return err
		}
		c.generator = gen
	}

	c.compilerInfo = c.probeKitCompiler(ctx, &k)
	c.cleanRequired = c.kitChangeNeedsClean(&k)
	c.kit = &k

	c.log.Info("kit applied",
		zap.String("kit", k.Name),
		zap.String("generator", c.generator.Name),
		zap.Bool("cleanRequired", c.cleanRequired))
	return nil
}

// probeKitCompiler identifies the kit's C++ (or C) compiler for the
// expansion context. Informational only.
func (c *Core) probeKitCompiler(ctx context.Context, k *types.Kit) kit.Info {
	for _, lang := range []string{"CXX", "C"} {
		if path, ok := k.Compilers[lang]; ok {
			return c.prober.Identify(ctx, path)
		}
	}
	return kit.Info{Family: "unknown", Label: "unknown"}
}

// kitChangeNeedsClean reports whether applying k over the existing build
// tree requires deleting it first. Callers hold c.mu.
func (c *Core) kitChangeNeedsClean(k *types.Kit) bool {
	snap, err := loadBuildCache(c.buildDirectoryLocked())
	if err != nil {
		return false // no cache, nothing to invalidate
	}

	if gen, ok := snap.Generator(); ok && gen != c.generator.Name {
		return true
	}
	if tc, ok := snap.ToolchainFile(); ok && k.ToolchainFile != "" && tc != k.ToolchainFile {
		return true
	}
	if !cacheCompilersMatch(snap, k) {
		return true
	}
	return false
}

// ConsumeCleanRequired returns and clears the pending clean-tree flag.
func (c *Core) ConsumeCleanRequired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	required := c.cleanRequired
	c.cleanRequired = false
	return required
}

// Kit returns the active kit, nil when none is applied.
func (c *Core) Kit() *types.Kit {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kit
}

// Generator returns the selected generator.
func (c *Core) Generator() types.Generator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generator
}

// GeneratorName returns the selected generator's name.
func (c *Core) GeneratorName() string { return c.Generator().Name }

// ExpansionContext builds the substitution dictionary for path and argument
// inputs.
func (c *Core) ExpansionContext() *expand.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expansionContextLocked()
}

func (c *Core) expansionContextLocked() *expand.Context {
	ctx := expand.NewContext(c.settings.SourceDirectory)
	ctx.BuildType = c.settings.BuildType
	ctx.Generator = c.generator.Name
	if c.kit != nil {
		ctx.BuildKit = c.kit.Name
	}
	ctx.BuildKitVendor = c.compilerInfo.Vendor()
	ctx.BuildKitTargetArch = c.compilerInfo.TargetArch()
	ctx.Env = c.env
	return ctx
}

// BuildDirectory returns the expanded, absolute build tree path.
func (c *Core) BuildDirectory() string {
	dir := expand.Expand(c.settings.BuildDirectory, c.ExpansionContext())
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.settings.SourceDirectory, dir)
	}
	return filepath.Clean(dir)
}

func (c *Core) buildDirectoryLocked() string {
	// Same as BuildDirectory but callable under c.mu.
	dir := expand.Expand(c.settings.BuildDirectory, c.expansionContextLocked())
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(c.settings.SourceDirectory, dir)
	}
	return filepath.Clean(dir)
}

// ConfigureEnvironment returns the effective environment for configure runs.
func (c *Core) ConfigureEnvironment() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return expand.MergeEnvironment(c.env, c.settings.ConfigureEnvironment)
}

// BuildEnvironment returns the effective environment for build runs.
func (c *Core) BuildEnvironment() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return expand.MergeEnvironment(c.env, c.settings.BuildEnvironment)
}

// CacheDefinitions merges kit, buildType, and user cache settings into -D
// flags, expanded against the expansion context, in stable order.
func (c *Core) CacheDefinitions() []string {
	ectx := c.ExpansionContext()

	merged := make(map[string]string)
	c.mu.Lock()
	if c.kit != nil {
		for k, v := range c.kit.CMakeSettings {
			merged[k] = v
		}
		for lang, path := range c.kit.Compilers {
			merged["CMAKE_"+lang+"_COMPILER"] = path
		}
		if c.kit.ToolchainFile != "" {
			merged["CMAKE_TOOLCHAIN_FILE"] = c.kit.ToolchainFile
		}
	}
	for k, v := range c.settings.ConfigureSettings {
		merged[k] = v
	}
	if c.settings.BuildType != "" {
		merged["CMAKE_BUILD_TYPE"] = c.settings.BuildType
	}
	c.mu.Unlock()

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	flags := make([]string, 0, len(names))
	for _, name := range names {
		flags = append(flags, "-D"+name+"="+expand.Expand(merged[name], ectx))
	}
	return flags
}

// CacheInitArgs returns the -C init-cache flags.
func (c *Core) CacheInitArgs() []string {
	ectx := c.ExpansionContext()
	args := make([]string, 0, len(c.settings.CacheInit))
	for _, f := range c.settings.CacheInit {
		args = append(args, "-C"+expand.Expand(f, ectx))
	}
	return args
}

// --- Single-flight guard ---

func (c *Core) firePrecondition(p types.Precondition) {
	c.log.Warn("operation refused", zap.String("precondition", string(p)))
	if c.onPrecondition != nil {
		c.onPrecondition(p)
	}
}

// BeginConfigure claims the configure slot. On refusal it fires the
// precondition handler and returns false; the caller must return
// types.ResultRejected without touching the build tree.
func (c *Core) BeginConfigure() bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.configuring {
		c.firePrecondition(types.PreconditionConfigureActive)
		return false
	}
	if c.building {
		c.firePrecondition(types.PreconditionBuildActive)
		return false
	}
	c.configuring = true
	return true
}

// EndConfigure releases the configure slot.
func (c *Core) EndConfigure() {
	c.opMu.Lock()
	c.configuring = false
	c.opMu.Unlock()
}

// BeginBuild claims the build slot, symmetrically to BeginConfigure.
func (c *Core) BeginBuild() bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.configuring {
		c.firePrecondition(types.PreconditionConfigureActive)
		return false
	}
	if c.building {
		c.firePrecondition(types.PreconditionBuildActive)
		return false
	}
	c.building = true
	return true
}

// EndBuild releases the build slot.
func (c *Core) EndBuild() {
	c.opMu.Lock()
	c.building = false
	c.opMu.Unlock()
}

// OperationState reports the guard flags.
func (c *Core) OperationState() (configuring, building bool) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.configuring, c.building
}

// CheckSourcePreconditions verifies the source tree exists and carries a
// root CMakeLists.txt. Failures are signaled through the precondition
// handler, never returned as errors.
func (c *Core) CheckSourcePreconditions() bool {
	src := c.settings.SourceDirectory
	if info, err := os.Stat(src); err != nil || !info.IsDir() {
		c.firePrecondition(types.PreconditionNoSourceDirectory)
		return false
	}
	if _, err := os.Stat(filepath.Join(src, "CMakeLists.txt")); err != nil {
		c.firePrecondition(types.PreconditionMissingCMakeLists)
		return false
	}
	return true
}

// NotifyCodeModel delivers a fresh model to the embedder.
func (c *Core) NotifyCodeModel(m *types.CodeModel) {
	if c.onCodeModel != nil {
		c.onCodeModel(m)
	}
}

// --- Tool invocation ---

// RunTool spawns cmake with args and the given environment, streaming output
// lines to the embedder's callback, and returns the exit code. A process
// killed by Stop yields -1.
func (c *Core) RunTool(ctx context.Context, env map[string]string, args ...string) int {
	cmd := exec.CommandContext(ctx, c.settings.CMakePath, args...)
	cmd.Env = expand.EnvironFrom(env)
	setProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.log.Error("failed to open stdout pipe", zap.Error(err))
		return 1
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.log.Error("failed to open stderr pipe", zap.Error(err))
		return 1
	}

	c.log.Debug("spawning cmake",
		zap.String("path", c.settings.CMakePath),
		zap.Strings("args", args))

	if err := cmd.Start(); err != nil {
		c.log.Error("failed to start cmake", zap.Error(err))
		return 1
	}

	c.procMu.Lock()
	c.proc = cmd
	c.procPID = cmd.Process.Pid
	c.procMu.Unlock()

	var wg sync.WaitGroup
	for _, r := range []io.Reader{stdout, stderr} {
		wg.Add(1)
		go func(r io.Reader) {
			defer wg.Done()
			scanner := bufio.NewScanner(r)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				if c.onOutput != nil {
					c.onOutput(scanner.Text())
				}
			}
		}(r)
	}
	wg.Wait()

	err = cmd.Wait()

	c.procMu.Lock()
	c.proc = nil
	c.procPID = 0
	c.procMu.Unlock()

	if err != nil {
		if exit, ok := err.(*exec.ExitError); ok {
			return exit.ExitCode()
		}
		c.log.Error("cmake did not run", zap.Error(err))
		return 1
	}
	return cmd.ProcessState.ExitCode()
}

// Build runs `cmake --build` against the build tree. The build strategy is
// shared by both transports; only configure differs.
func (c *Core) Build(ctx context.Context, targets []string) int {
	if !c.BeginBuild() {
		return types.ResultRejected
	}
	defer c.EndBuild()

	if !c.CheckSourcePreconditions() {
		return types.ResultRejected
	}

	ectx := c.ExpansionContext()
	args := []string{"--build", c.BuildDirectory()}
	if c.settings.BuildType != "" {
		args = append(args, "--config", c.settings.BuildType)
	}
	for _, t := range targets {
		args = append(args, "--target", expand.Expand(t, ectx))
	}
	if c.settings.ParallelJobs > 0 {
		args = append(args, "--parallel", strconv.Itoa(c.settings.ParallelJobs))
	}
	args = append(args, expand.ExpandAll(c.settings.BuildArgs, ectx)...)
	if len(c.settings.BuildToolArgs) > 0 {
		args = append(args, "--")
		args = append(args, expand.ExpandAll(c.settings.BuildToolArgs, ectx)...)
	}

	code := c.RunTool(ctx, c.BuildEnvironment(), args...)
	c.log.Info("build finished", zap.Int("code", code))
	return code
}

// Stop kills the in-flight tool process group. Cooperative and best-effort:
// the in-flight operation resolves with a non-zero code and no rollback of
// partially written build files happens.
func (c *Core) Stop() error {
	c.procMu.Lock()
	proc := c.proc
	pid := c.procPID
	c.procMu.Unlock()

	if proc == nil {
		return nil
	}
	return killProcessGroup(pid, proc)
}

// CleanBuildTree removes CMake's cache and generated state from the build
// directory, keeping build artifacts that do not affect reconfiguration.
func (c *Core) CleanBuildTree() error {
	dir := c.BuildDirectory()
	if err := os.Remove(filepath.Join(dir, "CMakeCache.txt")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cache: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(dir, "CMakeFiles")); err != nil {
		return fmt.Errorf("remove CMakeFiles: %w", err)
	}
	return nil
}

// Status reports the driver's point-in-time state.
func (c *Core) Status() types.DriverStatus {
	configuring, building := c.OperationState()
	st := types.DriverStatus{
		Generator:       c.GeneratorName(),
		SourceDirectory: c.settings.SourceDirectory,
		BuildDirectory:  c.BuildDirectory(),
		Configuring:     configuring,
		Building:        building,
	}
	if k := c.Kit(); k != nil {
		st.Kit = k.Name
	}
	return st
}

// Dispose releases core-owned resources.
func (c *Core) Dispose() error {
	if c.ownProbe {
		c.prober.Close()
	}
	return c.Stop()
}
