package server

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/cmake-mcp/cmake-mcp/internal/cache"
	"github.com/cmake-mcp/cmake-mcp/internal/driver"
	"github.com/cmake-mcp/cmake-mcp/internal/expand"
	"github.com/cmake-mcp/cmake-mcp/pkg/types"
)

// Driver configures through a long-lived cmake-server process. The project
// model arrives over the protocol itself rather than from reply files, so a
// fresh model is available immediately after compute finishes.
type Driver struct {
	core *driver.Core

	mu      sync.Mutex
	client  *Client
	model   *types.CodeModel
	entries []types.CacheEntry
}

// New builds a cmake-server driver on the shared core. The server process is
// not started until the first configure.
func New(core *driver.Core) *Driver {
	return &Driver{core: core}
}

// Configure runs the configure, compute, codemodel, cache sequence against
// the server and publishes the fresh model. Returns 0 on success,
// types.ResultRejected on a refused precondition, 1 on a server failure.
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
		d.dropClient()
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

	d.dropClient()
	if err := d.core.CleanBuildTree(); err != nil {
		d.core.Log().Error("clean failed", zap.Error(err))
		return 1
	}

	return d.configure(ctx)
}

func (d *Driver) configure(ctx context.Context) int {
	client, err := d.ensureClient(ctx)
	if err != nil {
		d.core.Log().Error("cmake-server unavailable", zap.Error(err))
		return 1
	}

	ectx := d.core.ExpansionContext()
	cacheArgs := d.core.CacheDefinitions()
	cacheArgs = append(cacheArgs, d.core.CacheInitArgs()...)
	cacheArgs = append(cacheArgs, expand.ExpandAll(d.core.Settings().ConfigureArgs, ectx)...)

	if _, err := client.Request(ctx, reqConfigure, map[string]interface{}{
		"cacheArguments": cacheArgs,
	}); err != nil {
		d.core.Log().Error("configure failed", zap.Error(err))
		return 1
	}

	if _, err := client.Request(ctx, reqCompute, nil); err != nil {
		d.core.Log().Error("compute failed", zap.Error(err))
		return 1
	}

	modelReply, err := client.Request(ctx, reqCodeModel, nil)
	if err != nil {
		d.core.Log().Error("codemodel request failed", zap.Error(err))
		return 1
	}
	model, err := ConvertCodeModel(modelReply, d.core.Settings().SourceDirectory)
	if err != nil {
		d.core.Log().Error("codemodel reply undecodable", zap.Error(err))
		return 1
	}

	cacheReply, err := client.Request(ctx, reqCache, nil)
	if err != nil {
		d.core.Log().Error("cache request failed", zap.Error(err))
		return 1
	}
	entries, err := convertCache(cacheReply)
	if err != nil {
		d.core.Log().Error("cache reply undecodable", zap.Error(err))
		return 1
	}

	d.mu.Lock()
	d.model = model
	d.entries = entries
	d.mu.Unlock()

	d.core.NotifyCodeModel(model)
	d.core.Log().Info("configure finished",
		zap.Int("configurations", len(model.Configurations)))
	return types.ResultOK
}

// ensureClient starts the server process on first use and reuses it across
// configures until a kit change or clean tears it down.
func (d *Driver) ensureClient(ctx context.Context) (*Client, error) {
	d.mu.Lock()
	if d.client != nil && d.client.State() == StateReady {
		c := d.client
		d.mu.Unlock()
		return c, nil
	}
	stale := d.client
	d.client = nil
	d.mu.Unlock()
	if stale != nil {
		stale.Shutdown()
	}

	buildDir := d.core.BuildDirectory()
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return nil, err
	}

	gen := d.core.Generator()
	client := NewClient(ClientOptions{
		CMakePath:       d.core.Settings().CMakePath,
		SourceDirectory: d.core.Settings().SourceDirectory,
		BuildDirectory:  buildDir,
		Generator:       gen.Name,
		Platform:        gen.Platform,
		Toolset:         gen.Toolset,
		Environment:     expand.EnvironFrom(d.core.ConfigureEnvironment()),
		Log:             d.core.Log(),
		OnMessage:       d.forwardMessage,
		OnProgress:      d.forwardProgress,
	})
	if err := client.Start(ctx); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.client = client
	d.mu.Unlock()
	return client, nil
}

func (d *Driver) forwardMessage(text string) {
	d.core.Log().Info("cmake", zap.String("message", text))
}

func (d *Driver) forwardProgress(message string, fraction float64) {
	d.core.Log().Debug("progress",
		zap.String("message", message),
		zap.Float64("fraction", fraction))
}

func (d *Driver) dropClient() {
	d.mu.Lock()
	client := d.client
	d.client = nil
	d.mu.Unlock()
	if client != nil {
		client.Shutdown()
	}
}

// Build delegates to the shared build strategy.
func (d *Driver) Build(ctx context.Context, targets []string) int {
	return d.core.Build(ctx, targets)
}

// Stop kills any in-flight tool process.
func (d *Driver) Stop() error {
	return d.core.Stop()
}

// SetKit applies a kit and tears down the server so the next configure
// handshakes with the new generator and environment.
func (d *Driver) SetKit(ctx context.Context, k types.Kit) error {
	if err := d.core.SetKit(ctx, k); err != nil {
		return err
	}
	d.dropClient()
	return nil
}

// CodeModel returns the model from the last successful configure, nil before
// the first.
func (d *Driver) CodeModel() *types.CodeModel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.model
}

// CacheEntries returns the cache snapshot from the last successful configure.
// Before the first configure it falls back to the persisted cache file, so an
// already-configured build tree is inspectable without a fresh server round.
func (d *Driver) CacheEntries() []types.CacheEntry {
	d.mu.Lock()
	entries := d.entries
	d.mu.Unlock()
	if entries != nil {
		return entries
	}

	snap, err := cache.Load(cache.CachePath(d.core.BuildDirectory()))
	if err != nil {
		return nil
	}
	return snap.Entries()
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

// Dispose shuts the server down and releases core resources.
func (d *Driver) Dispose() error {
	d.dropClient()
	return d.core.Dispose()
}
