package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/cmake-mcp/cmake-mcp/internal/errors"
	"github.com/cmake-mcp/cmake-mcp/pkg/types"
)

// Configure/Build Handlers

func (s *Server) handleConfigure(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.resetOutput()
	code := s.driver.Configure(ctx)
	return s.operationResult("configure", code)
}

func (s *Server) handleCleanConfigure(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.resetOutput()
	code := s.driver.CleanConfigure(ctx)
	return s.operationResult("cleanConfigure", code)
}

func (s *Server) handleBuild(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var targets []string
	if raw := request.GetString("targets", ""); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				targets = append(targets, t)
			}
		}
	}

	s.resetOutput()
	code := s.driver.Build(ctx, targets)
	return s.operationResult("build", code)
}

// operationResult shapes a configure/build outcome. A rejected precondition
// is still a successful tool call; the refusal reason travels in the result.
func (s *Server) operationResult(operation string, code int) (*mcp.CallToolResult, error) {
	result := map[string]interface{}{
		"operation": operation,
		"code":      code,
	}
	switch {
	case code == types.ResultOK:
		result["status"] = "ok"
	case code == types.ResultRejected:
		result["status"] = "rejected"
		result["precondition"] = string(s.takePrecondition())
	default:
		result["status"] = "failed"
	}
	if out := s.output(); out != "" {
		result["output"] = out
	}
	return jsonResult(result)
}

func (s *Server) handleStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.driver.Stop(); err != nil {
		return mcp.NewToolResultError(errors.StopFailed(err).Error()), nil
	}
	return jsonResult(map[string]interface{}{"status": "stopped"})
}

// Project Model Handlers

func (s *Server) handleCodeModel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	model := s.driver.CodeModel()
	if model == nil {
		return mcp.NewToolResultError(errors.NoCodeModel().Error()), nil
	}

	name := request.GetString("target", "")
	if name == "" {
		return jsonResult(model)
	}

	var matches []map[string]interface{}
	for _, cfg := range model.Configurations {
		for _, proj := range cfg.Projects {
			for _, target := range proj.Targets {
				if target.Name == name {
					matches = append(matches, map[string]interface{}{
						"configuration": cfg.Name,
						"project":       proj.Name,
						"target":        target,
					})
				}
			}
		}
	}
	if len(matches) == 0 {
		return mcp.NewToolResultError(errors.InvalidParameter("target", name,
			"No target with this name exists in the code model. Use cmake_code_model without a target to list all targets.").Error()), nil
	}
	return jsonResult(matches)
}

func (s *Server) handleCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries := s.driver.CacheEntries()

	if name := request.GetString("name", ""); name != "" {
		for _, e := range entries {
			if e.Name == name {
				return jsonResult(e)
			}
		}
		return mcp.NewToolResultError(errors.InvalidParameter("name", name,
			"No cache entry with this name. Run cmake_configure first, or use cmake_cache without a name to list all entries.").Error()), nil
	}

	return jsonResult(map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

// Kit Handlers

func (s *Server) handleListKits(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kits := s.kits.All()
	summaries := make([]map[string]interface{}, 0, len(kits))
	for _, k := range kits {
		summary := map[string]interface{}{"name": k.Name}
		if len(k.Compilers) > 0 {
			summary["compilers"] = k.Compilers
		}
		if k.ToolchainFile != "" {
			summary["toolchainFile"] = k.ToolchainFile
		}
		if k.PreferredGenerator != nil {
			summary["preferredGenerator"] = k.PreferredGenerator.Name
		}
		summaries = append(summaries, summary)
	}
	return jsonResult(map[string]interface{}{
		"count": len(summaries),
		"kits":  summaries,
	})
}

func (s *Server) handleSelectKit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("name",
			"Specify the kit name. Use cmake_list_kits to see what is available.").Error()), nil
	}

	k, err := s.kits.Get(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.driver.SetKit(ctx, k); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]interface{}{
		"status":    "applied",
		"kit":       k.Name,
		"generator": s.driver.GeneratorName(),
	})
}

// Status Handler

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.driver.Status())
}

// Helpers

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
