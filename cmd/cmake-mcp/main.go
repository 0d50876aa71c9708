package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/cmake-mcp/cmake-mcp/internal/config"
	"github.com/cmake-mcp/cmake-mcp/internal/logging"
	"github.com/cmake-mcp/cmake-mcp/internal/mcp"
	"github.com/cmake-mcp/cmake-mcp/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (JSON with comments)")
	sourceDir := flag.String("source", "", "Source directory containing the root CMakeLists.txt")
	buildDir := flag.String("build", "", "Build directory (default: <source>/build)")
	cmakePath := flag.String("cmake", "", "Path to the cmake executable (default: cmake on PATH)")
	mode := flag.String("mode", "", "Transport mode: 'fileApi' or 'serverApi' (default: fileApi)")
	kitName := flag.String("kit", "", "Kit to apply at startup")
	showVersion := flag.Bool("version", false, "Show version and exit")
	help := flag.Bool("help", false, "Show help and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("cmake-mcp version %s\n", version.Version)
		os.Exit(0)
	}

	if *help {
		printHelp()
		os.Exit(0)
	}

	settings, err := loadSettings(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Command line overrides the configuration file.
	if *sourceDir != "" {
		settings.SourceDirectory = *sourceDir
	}
	if *buildDir != "" {
		settings.BuildDirectory = *buildDir
	}
	if *cmakePath != "" {
		settings.CMakePath = *cmakePath
	}
	if *mode != "" {
		settings.Mode = config.CommunicationMode(*mode)
	}
	if *kitName != "" {
		settings.Kit = *kitName
	}

	log, err := logging.New(settings.LogLevel, settings.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	server, err := mcp.NewServer(settings, log)
	if err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}

	checker := version.NewChecker()
	checker.CheckForUpdatesAsync()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		server.Close()
		os.Exit(0)
	}()

	log.Info("cmake-mcp server starting",
		zap.String("source", settings.SourceDirectory),
		zap.String("mode", string(settings.Mode)))
	if err := server.ServeStdio(); err != nil {
		server.Close()
		log.Fatal("server error", zap.Error(err))
	}
	server.Close()

	if info := checker.GetUpdateInfo(); info != nil {
		if msg := info.UpdateMessage(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
	}
}

func loadSettings(path string) (*config.Settings, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func printHelp() {
	fmt.Println(`CMake-MCP: CMake Driver MCP Server

A Model Context Protocol (MCP) server that drives CMake against a source
tree: configure, build, kit selection, and a normalized project model
(targets, compile settings, artifacts) for editor tooling and AI agents.

USAGE:
    cmake-mcp [OPTIONS]

OPTIONS:
    -config <path>     Path to configuration file (JSON with comments)
    -source <dir>      Source directory containing the root CMakeLists.txt
    -build <dir>       Build directory (default: <source>/build)
    -cmake <path>      Path to the cmake executable
    -mode <mode>       Transport mode: 'fileApi' or 'serverApi' (default: fileApi)
    -kit <name>        Kit to apply at startup
    -version           Show version and exit
    -help              Show this help message

CONFIGURATION:
    Create a JSON configuration file (comments allowed) to customize behavior:

    {
        "sourceDirectory": "/path/to/project",
        "buildDirectory": "${workspaceRoot}/build-${buildType}",
        "mode": "fileApi",
        "buildType": "Debug",
        "generator": "Ninja",
        "parallelJobs": 8,
        "configureSettings": {
            "BUILD_TESTING": "ON"
        },
        "configureArgs": ["--warn-uninitialized"],
        "environment": {
            "PATH": "/opt/toolchain/bin:${env:PATH}"
        },
        "kit": "gcc-13"
    }

KITS:
    Kits live in <workspace>/.vscode/cmake-kits.json (or a file given via
    "kitsFile"). Each kit names compilers, an optional toolchain file, a
    preferred generator, and extra environment/cache settings.

MCP INTEGRATION:
    Add to your MCP client configuration:

    {
        "mcpServers": {
            "cmake-mcp": {
                "command": "cmake-mcp",
                "args": ["-source", "/path/to/project"]
            }
        }
    }

TOOLS:
    Configure/build:
        cmake_configure        Configure the build tree
        cmake_clean_configure  Delete cached state, configure from scratch
        cmake_build            Build targets
        cmake_stop             Kill the in-flight operation

    Project model:
        cmake_code_model       Normalized targets/sources/compile settings
        cmake_cache            Persisted cache variables

    Kits:
        cmake_list_kits        List available kits
        cmake_select_kit       Apply a kit by name

    Status:
        cmake_status           Driver state summary

For more information, visit: https://github.com/cmake-mcp/cmake-mcp`)
}
