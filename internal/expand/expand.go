// Package expand resolves ${...} placeholder variables appearing in path and
// argument configuration inputs before they are passed to CMake.
//
// The substitution vocabulary is fixed: workspace root/name/hash, the active
// kit name and its detected compiler vendor/target, build type, generator
// name, the user home directory, and ${env:NAME} environment references.
// Unknown variables are left untouched so a typo is visible downstream
// instead of silently vanishing.
package expand

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Variable pattern matches ${...} expressions
var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Context carries the fixed substitution variables.
type Context struct {
	WorkspaceRoot      string
	BuildKit           string
	BuildType          string
	Generator          string
	BuildKitVendor     string
	BuildKitTargetArch string
	UserHome           string

	// Env backs ${env:NAME} references. Nil means the process environment.
	Env map[string]string
}

// NewContext builds a Context with the derivable fields filled in.
func NewContext(workspaceRoot string) *Context {
	home, _ := os.UserHomeDir()
	return &Context{
		WorkspaceRoot: workspaceRoot,
		UserHome:      home,
	}
}

// Expand replaces all ${...} variables in text. Unknown variables are kept
// verbatim.
func Expand(text string, ctx *Context) string {
	if ctx == nil {
		ctx = &Context{}
	}
	return variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		expr := match[2 : len(match)-1]
		if resolved, ok := resolve(expr, ctx); ok {
			return resolved
		}
		return match
	})
}

// ExpandAll expands every string in args, returning a new slice.
func ExpandAll(args []string, ctx *Context) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = Expand(a, ctx)
	}
	return out
}

// ExpandMap expands every value in m, returning a new map.
func ExpandMap(m map[string]string, ctx *Context) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = Expand(v, ctx)
	}
	return out
}

func resolve(expr string, ctx *Context) (string, bool) {
	switch {
	case expr == "workspaceRoot" || expr == "workspaceFolder":
		return ctx.WorkspaceRoot, true

	case expr == "workspaceRootFolderName":
		return filepath.Base(ctx.WorkspaceRoot), true

	case expr == "workspaceHash":
		return WorkspaceHash(ctx.WorkspaceRoot), true

	case expr == "buildKit":
		return ctx.BuildKit, true

	case expr == "buildType":
		return ctx.BuildType, true

	case expr == "generator":
		return ctx.Generator, true

	case expr == "buildKitVendor":
		return ctx.BuildKitVendor, true

	case expr == "buildKitTargetArch":
		return ctx.BuildKitTargetArch, true

	case expr == "userHome":
		return ctx.UserHome, true

	case strings.HasPrefix(expr, "env:") || strings.HasPrefix(expr, "env."):
		name := expr[4:]
		if ctx.Env != nil {
			v, ok := ctx.Env[name]
			return v, ok
		}
		return os.Getenv(name), true
	}

	return "", false
}

// WorkspaceHash is a short stable identifier for a workspace path, used to
// keep per-workspace state apart (e.g. in build directory names).
func WorkspaceHash(workspaceRoot string) string {
	sum := sha256.Sum256([]byte(filepath.ToSlash(workspaceRoot)))
	return hex.EncodeToString(sum[:])[:10]
}

// MergeEnvironment layers environment maps over base. Only ${env:NAME}
// references are expanded in a layer's values, against the prior layer's
// already-merged result, so a value like "PATH": "/opt/bin:${env:PATH}"
// composes correctly across layers. All other ${...} variables pass through
// verbatim; they belong to the path/argument expansion context and are
// resolved there.
func MergeEnvironment(base map[string]string, layers ...map[string]string) map[string]string {
	merged := make(map[string]string, len(base))
	for k, v := range base {
		merged[k] = v
	}
	for _, layer := range layers {
		prior := merged
		next := make(map[string]string, len(prior)+len(layer))
		for k, v := range prior {
			next[k] = v
		}
		for k, v := range layer {
			next[k] = expandEnvRefs(v, prior)
		}
		merged = next
	}
	return merged
}

// expandEnvRefs substitutes ${env:NAME} (and ${env.NAME}) references from env,
// keeping every other ${...} expression untouched.
func expandEnvRefs(text string, env map[string]string) string {
	return variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		expr := match[2 : len(match)-1]
		if !strings.HasPrefix(expr, "env:") && !strings.HasPrefix(expr, "env.") {
			return match
		}
		if v, ok := env[expr[4:]]; ok {
			return v
		}
		return match
	})
}

// EnvironFrom converts an environment map to the KEY=VALUE slice form
// expected by os/exec.
func EnvironFrom(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// EnvironToMap converts a KEY=VALUE slice (os.Environ form) to a map.
func EnvironToMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i > 0 {
			out[kv[:i]] = kv[i+1:]
		}
	}
	return out
}
