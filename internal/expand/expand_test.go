package expand

import (
	"testing"
)

// TestExpand_KnownVariables verifies the fixed substitution vocabulary.
func TestExpand_KnownVariables(t *testing.T) {
	ctx := &Context{
		WorkspaceRoot: "/home/dev/proj",
		BuildKit:      "GCC 12",
		BuildType:     "Debug",
		Generator:     "Ninja",
		UserHome:      "/home/dev",
	}

	got := Expand("${workspaceRoot}/build/${buildType}", ctx)
	if got != "/home/dev/proj/build/Debug" {
		t.Errorf("expected expanded path, got %q", got)
	}

	if got := Expand("${workspaceRootFolderName}", ctx); got != "proj" {
		t.Errorf("expected proj, got %q", got)
	}

	if got := Expand("kit=${buildKit} gen=${generator}", ctx); got != "kit=GCC 12 gen=Ninja" {
		t.Errorf("unexpected expansion: %q", got)
	}
}

// TestExpand_UnknownVariableKept verifies a typo stays visible.
func TestExpand_UnknownVariableKept(t *testing.T) {
	got := Expand("${noSuchVariable}/x", &Context{})
	if got != "${noSuchVariable}/x" {
		t.Errorf("unknown variable should be kept verbatim, got %q", got)
	}
}

// TestExpand_EnvReference verifies ${env:NAME} against an explicit map.
func TestExpand_EnvReference(t *testing.T) {
	ctx := &Context{Env: map[string]string{"CC": "/usr/bin/gcc"}}

	if got := Expand("${env:CC}", ctx); got != "/usr/bin/gcc" {
		t.Errorf("expected /usr/bin/gcc, got %q", got)
	}

	// Missing names in an explicit map are kept verbatim.
	if got := Expand("${env:NOPE}", ctx); got != "${env:NOPE}" {
		t.Errorf("expected unresolved reference kept, got %q", got)
	}
}

// TestExpand_WorkspaceHashStable verifies the hash is stable and short.
func TestExpand_WorkspaceHashStable(t *testing.T) {
	a := WorkspaceHash("/home/dev/proj")
	b := WorkspaceHash("/home/dev/proj")
	if a != b {
		t.Errorf("hash not stable: %q vs %q", a, b)
	}
	if len(a) != 10 {
		t.Errorf("expected 10-char hash, got %q", a)
	}
	if WorkspaceHash("/other") == a {
		t.Error("different paths produced the same hash")
	}
}

// TestMergeEnvironment_LayeredExpansion verifies each layer expands against
// the prior layer's already-merged result.
func TestMergeEnvironment_LayeredExpansion(t *testing.T) {
	base := map[string]string{"PATH": "/usr/bin"}
	kit := map[string]string{"PATH": "/opt/toolchain/bin:${env:PATH}"}
	cfg := map[string]string{"PATH": "${env:PATH}:/extra", "FLAGS": "-O2"}

	merged := MergeEnvironment(base, kit, cfg)

	want := "/opt/toolchain/bin:/usr/bin:/extra"
	if merged["PATH"] != want {
		t.Errorf("expected PATH %q, got %q", want, merged["PATH"])
	}
	if merged["FLAGS"] != "-O2" {
		t.Errorf("expected FLAGS -O2, got %q", merged["FLAGS"])
	}
}

// TestMergeEnvironment_NonEnvVariablesPassThrough verifies that only
// ${env:NAME} references are resolved while merging. Context variables like
// ${workspaceRoot} belong to the path expansion step and must survive the
// merge verbatim instead of collapsing to empty strings.
func TestMergeEnvironment_NonEnvVariablesPassThrough(t *testing.T) {
	base := map[string]string{"PATH": "/usr/bin"}
	layer := map[string]string{
		"TOOLDIR": "${workspaceRoot}/tools",
		"PATH":    "${workspaceRoot}/bin:${env:PATH}",
	}

	merged := MergeEnvironment(base, layer)

	if got := merged["TOOLDIR"]; got != "${workspaceRoot}/tools" {
		t.Errorf("expected context variable kept verbatim, got %q", got)
	}
	if got := merged["PATH"]; got != "${workspaceRoot}/bin:/usr/bin" {
		t.Errorf("expected only env reference resolved, got %q", got)
	}
}

// TestMergeEnvironment_DoesNotMutateInputs verifies the inputs survive.
func TestMergeEnvironment_DoesNotMutateInputs(t *testing.T) {
	base := map[string]string{"A": "1"}
	layer := map[string]string{"A": "2"}

	merged := MergeEnvironment(base, layer)

	if base["A"] != "1" {
		t.Errorf("base mutated: %q", base["A"])
	}
	if merged["A"] != "2" {
		t.Errorf("expected layered value 2, got %q", merged["A"])
	}
}

// TestEnvironConversions round-trips the exec env formats.
func TestEnvironConversions(t *testing.T) {
	m := EnvironToMap([]string{"A=1", "B=x=y", "MALFORMED"})
	if m["A"] != "1" || m["B"] != "x=y" {
		t.Errorf("unexpected map: %v", m)
	}
	if _, ok := m["MALFORMED"]; ok {
		t.Error("malformed entry should be dropped")
	}

	kv := EnvironFrom(map[string]string{"A": "1"})
	if len(kv) != 1 || kv[0] != "A=1" {
		t.Errorf("unexpected environ: %v", kv)
	}
}
