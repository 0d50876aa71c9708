// Package mcp exposes the CMake driver over the Model Context Protocol.
//
// The server provides a 9-tool API:
//
// Configure/build:
//   - cmake_configure: configure the build tree
//   - cmake_clean_configure: delete cached state and configure from scratch
//   - cmake_build: build targets
//   - cmake_stop: kill the in-flight configure or build
//
// Project model:
//   - cmake_code_model: the normalized project model from the last configure
//   - cmake_cache: the persisted cache variables
//
// Kits:
//   - cmake_list_kits: names of the kits available to this workspace
//   - cmake_select_kit: apply a kit by name
//
// Status:
//   - cmake_status: driver state summary
package mcp

import (
	"context"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/cmake-mcp/cmake-mcp/internal/config"
	"github.com/cmake-mcp/cmake-mcp/internal/driver"
	"github.com/cmake-mcp/cmake-mcp/internal/driver/fileapi"
	srvdriver "github.com/cmake-mcp/cmake-mcp/internal/driver/server"
	"github.com/cmake-mcp/cmake-mcp/internal/kit"
	"github.com/cmake-mcp/cmake-mcp/internal/version"
	"github.com/cmake-mcp/cmake-mcp/pkg/types"
)

// outputTailLines bounds how much raw tool output a configure or build
// result carries back to the client.
const outputTailLines = 80

// Server wraps the MCP server around one driver instance.
type Server struct {
	mcpServer *server.MCPServer
	settings  *config.Settings
	log       *zap.Logger
	kits      *kit.Registry
	driver    driver.Driver

	mu               sync.Mutex
	lastPrecondition types.Precondition
	outputTail       []string
}

// NewServer builds the MCP server and its driver. Generator selection
// happens here; a failure to find any usable generator is fatal.
func NewServer(settings *config.Settings, log *zap.Logger) (*Server, error) {
	s := &Server{
		settings: settings,
		log:      log,
	}

	kits, err := kit.LoadRegistry(settings.KitsFile, settings.SourceDirectory)
	if err != nil {
		return nil, err
	}
	s.kits = kits

	core, err := driver.NewCore(driver.Options{
		Settings:       settings,
		Log:            log,
		OnPrecondition: s.recordPrecondition,
		OnOutput:       s.recordOutput,
		OnCodeModel: func(m *types.CodeModel) {
			log.Info("code model updated", zap.Int("configurations", len(m.Configurations)))
		},
	})
	if err != nil {
		return nil, err
	}

	if settings.Mode == config.ModeServer {
		s.driver = srvdriver.New(core)
	} else {
		s.driver = fileapi.New(core)
	}

	if settings.Kit != "" {
		k, err := kits.Get(settings.Kit)
		if err != nil {
			return nil, err
		}
		if err := s.driver.SetKit(context.Background(), k); err != nil {
			return nil, err
		}
	}

	s.mcpServer = server.NewMCPServer(
		"cmake-mcp",
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.registerTools()

	return s, nil
}

func (s *Server) recordPrecondition(p types.Precondition) {
	s.mu.Lock()
	s.lastPrecondition = p
	s.mu.Unlock()
}

func (s *Server) recordOutput(line string) {
	s.mu.Lock()
	s.outputTail = append(s.outputTail, line)
	if len(s.outputTail) > outputTailLines {
		s.outputTail = s.outputTail[len(s.outputTail)-outputTailLines:]
	}
	s.mu.Unlock()
}

// takePrecondition returns and clears the last refusal reason.
func (s *Server) takePrecondition() types.Precondition {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.lastPrecondition
	s.lastPrecondition = ""
	return p
}

// resetOutput clears the output tail before a new tool run.
func (s *Server) resetOutput() {
	s.mu.Lock()
	s.outputTail = nil
	s.mu.Unlock()
}

func (s *Server) output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.outputTail, "\n")
}

// ServeStdio starts the server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close disposes the driver.
func (s *Server) Close() {
	if err := s.driver.Dispose(); err != nil {
		s.log.Warn("driver dispose failed", zap.Error(err))
	}
}
