// Package types defines shared data types used across the cmake-mcp server.
//
// This package provides type definitions for:
//   - CodeModel: the canonical project model (configurations, projects,
//     targets, file groups) produced by both driver transports
//   - Kit: a named bundle of compilers, toolchain file, preferred generator,
//     environment variables, and extra cache settings
//   - Generator: the underlying build-file format CMake emits
//   - CacheEntry: a read-only snapshot of one CMake cache variable
//   - Precondition: reasons a configure or build request was refused
//
// These types are used throughout the codebase to maintain type safety
// and provide clear contracts between components.
package types

// TargetType classifies a CMake target.
type TargetType string

const (
	TargetExecutable       TargetType = "EXECUTABLE"
	TargetStaticLibrary    TargetType = "STATIC_LIBRARY"
	TargetSharedLibrary    TargetType = "SHARED_LIBRARY"
	TargetModuleLibrary    TargetType = "MODULE_LIBRARY"
	TargetObjectLibrary    TargetType = "OBJECT_LIBRARY"
	TargetInterfaceLibrary TargetType = "INTERFACE_LIBRARY"
	TargetUtility          TargetType = "UTILITY"
)

// Result codes returned by Configure and Build. Any other value is the
// underlying tool's exit code.
const (
	// ResultOK means the operation completed successfully.
	ResultOK = 0
	// ResultRejected means a precondition refused the operation before the
	// tool was ever invoked. The reason is reported through the driver's
	// precondition handler, never as an error.
	ResultRejected = -1
)

// Precondition identifies why a configure or build request was refused.
type Precondition string

const (
	PreconditionConfigureActive   Precondition = "configure-already-running"
	PreconditionBuildActive       Precondition = "build-already-running"
	PreconditionNoSourceDirectory Precondition = "no-source-directory"
	PreconditionMissingCMakeLists Precondition = "missing-cmakelists"
)

// PreconditionHandler receives refused-operation notifications. The driver
// never surfaces these as errors; the embedder decides how to present them.
type PreconditionHandler func(p Precondition)

// Generator identifies the build-file format CMake emits, plus the optional
// platform and toolset qualifiers some generator families accept.
type Generator struct {
	Name     string `json:"name"`
	Platform string `json:"platform,omitempty"`
	Toolset  string `json:"toolset,omitempty"`
}

// Kit is a named bundle describing which compilers, toolchain, generator,
// and environment to use. A kit is immutable once applied; SetKit replaces
// it wholesale.
type Kit struct {
	Name string `json:"name"`

	// Compilers maps a language name (C, CXX, ...) to a compiler path.
	Compilers map[string]string `json:"compilers,omitempty"`

	// ToolchainFile, when set, is passed as CMAKE_TOOLCHAIN_FILE.
	ToolchainFile string `json:"toolchainFile,omitempty"`

	// PreferredGenerator is probed first during generator selection.
	PreferredGenerator *Generator `json:"preferredGenerator,omitempty"`

	// EnvironmentVariables is the lowest environment layer applied when the
	// kit is active.
	EnvironmentVariables map[string]string `json:"environmentVariables,omitempty"`

	// CMakeSettings are extra cache definitions (-D flags) the kit carries.
	CMakeSettings map[string]string `json:"cmakeSettings,omitempty"`
}

// FileGroup is a set of sources within one target that share compile
// settings. Within one target every source path appears in exactly one
// file group.
type FileGroup struct {
	// Language is empty for the synthetic catch-all group holding sources
	// (typically headers) that belong to no compile group.
	Language string `json:"language,omitempty"`

	Includes         []string `json:"includes,omitempty"`
	Defines          []string `json:"defines,omitempty"`
	CompileFragments []string `json:"compileFragments,omitempty"`

	// Sources are relative to the target's source directory, with forward
	// slashes regardless of platform.
	Sources []string `json:"sources"`

	// IsGenerated is true when any member source is generated.
	IsGenerated bool `json:"isGenerated"`
}

// Target is one buildable unit of a project.
//
// Sysroot is modeled as a single optional value per target even though the
// underlying data allows one per compile group; the first non-empty one
// encountered wins.
type Target struct {
	Name            string     `json:"name"`
	Type            TargetType `json:"type"`
	SourceDirectory string     `json:"sourceDirectory,omitempty"`
	FullName        string     `json:"fullName,omitempty"`

	// Artifacts are absolute paths to the target's build products.
	Artifacts []string `json:"artifacts,omitempty"`

	Sysroot    string      `json:"sysroot,omitempty"`
	FileGroups []FileGroup `json:"fileGroups,omitempty"`
}

// Project groups the targets declared under one project() call.
type Project struct {
	Name            string   `json:"name"`
	SourceDirectory string   `json:"sourceDirectory"`
	Targets         []Target `json:"targets"`
}

// Configuration is one build configuration (Debug, Release, ...) of the
// code model.
type Configuration struct {
	Name     string    `json:"name"`
	Projects []Project `json:"projects"`
}

// CodeModel is the canonical structured description of the build tree.
// It is produced fresh on every successful configure and replaced wholesale,
// never mutated in place, so consumers always see a consistent snapshot.
type CodeModel struct {
	Configurations []Configuration `json:"configurations"`
}

// CodeModelHandler is invoked after every successful configure with the
// fresh model.
type CodeModelHandler func(model *CodeModel)

// CacheEntry is one variable from CMake's persisted cache. Entries are a
// read-only snapshot, replaced wholesale on reload.
type CacheEntry struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// DriverStatus is a point-in-time summary of a driver instance, exposed to
// embedders for display.
type DriverStatus struct {
	Kit             string `json:"kit,omitempty"`
	Generator       string `json:"generator,omitempty"`
	SourceDirectory string `json:"sourceDirectory"`
	BuildDirectory  string `json:"buildDirectory"`
	Configuring     bool   `json:"configuring"`
	Building        bool   `json:"building"`
	HasCodeModel    bool   `json:"hasCodeModel"`
}
