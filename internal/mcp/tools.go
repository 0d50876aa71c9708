package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the 9-tool CMake API
func (s *Server) registerTools() {
	// Configure/build
	s.registerConfigure()
	s.registerCleanConfigure()
	s.registerBuild()
	s.registerStop()

	// Project model
	s.registerCodeModel()
	s.registerCache()

	// Kits
	s.registerListKits()
	s.registerSelectKit()

	// Status
	s.registerStatus()
}

func (s *Server) registerConfigure() {
	tool := mcp.NewTool("cmake_configure",
		mcp.WithDescription("Configure the build tree: run CMake against the source directory with the active kit, generator, and cache settings. Returns the exit code and output tail; on success the code model is refreshed. Returns code -1 if another configure or build is already running."),
	)
	s.mcpServer.AddTool(tool, s.handleConfigure)
}

func (s *Server) registerCleanConfigure() {
	tool := mcp.NewTool("cmake_clean_configure",
		mcp.WithDescription("Delete CMake's cached state (CMakeCache.txt and CMakeFiles) from the build tree, then configure from scratch. Use after changing kits or toolchains when a normal configure fails with stale-cache errors."),
	)
	s.mcpServer.AddTool(tool, s.handleCleanConfigure)
}

func (s *Server) registerBuild() {
	tool := mcp.NewTool("cmake_build",
		mcp.WithDescription("Build the configured tree with `cmake --build`. Builds the default target when no targets are given. Returns the underlying tool's exit code and output tail. Returns code -1 if another configure or build is already running."),
		mcp.WithString("targets",
			mcp.Description("Comma-separated target names to build (e.g. 'app,tests'). Omit for the default target."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleBuild)
}

func (s *Server) registerStop() {
	tool := mcp.NewTool("cmake_stop",
		mcp.WithDescription("Kill the in-flight configure or build process. Best-effort: the running operation resolves with a non-zero code and partially written build files are not rolled back."),
	)
	s.mcpServer.AddTool(tool, s.handleStop)
}

func (s *Server) registerCodeModel() {
	tool := mcp.NewTool("cmake_code_model",
		mcp.WithDescription("Get the normalized project model from the last successful configure: configurations, projects, targets, source file groups with includes/defines/compile fragments, and artifact paths. Run cmake_configure first."),
		mcp.WithString("target",
			mcp.Description("Return only the named target, searched across all configurations."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleCodeModel)
}

func (s *Server) registerCache() {
	tool := mcp.NewTool("cmake_cache",
		mcp.WithDescription("Get CMake's persisted cache variables from the last configure as {name, type, value} entries."),
		mcp.WithString("name",
			mcp.Description("Return only the entry with this exact name."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleCache)
}

func (s *Server) registerListKits() {
	tool := mcp.NewTool("cmake_list_kits",
		mcp.WithDescription("List the kits (named compiler/toolchain/generator bundles) available to this workspace, loaded from cmake-kits.json."),
	)
	s.mcpServer.AddTool(tool, s.handleListKits)
}

func (s *Server) registerSelectKit() {
	tool := mcp.NewTool("cmake_select_kit",
		mcp.WithDescription("Apply a kit by name. Recomputes the environment, re-selects the generator unless one is pinned in settings, and marks the build tree for cleaning when the switch is incompatible with the existing cache."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The kit name as reported by cmake_list_kits."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleSelectKit)
}

func (s *Server) registerStatus() {
	tool := mcp.NewTool("cmake_status",
		mcp.WithDescription("Get the driver's current state: active kit, generator, source/build directories, whether a configure or build is running, and whether a code model is available."),
	)
	s.mcpServer.AddTool(tool, s.handleStatus)
}
