package layers

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/bibin-skaria/jarbuild/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func containerPaths(layer Layer) []string {
	paths := make([]string, len(layer.Entries))
	for i, e := range layer.Entries {
		paths[i] = e.ContainerPath
	}
	return paths
}

func TestResolveDirectoryTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "a.txt"), "a")
	writeFile(t, filepath.Join(root, "src", "sub", "b.txt"), "b")

	resolver := NewResolver(root)
	resolved, err := resolver.Resolve([]CopySpec{
		NewCopySpec("app", "src", "/opt/data"),
	}, PropertyScope{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("got %d layers, want 1", len(resolved))
	}

	want := []string{"/opt", "/opt/data", "/opt/data/a.txt", "/opt/data/sub", "/opt/data/sub/b.txt"}
	if got := containerPaths(resolved[0]); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}

	for _, e := range resolved[0].Entries {
		if !e.ModTime.Equal(DefaultModTime) {
			t.Errorf("%s has ModTime %v, want the fixed default", e.ContainerPath, e.ModTime)
		}
		switch e.Kind {
		case EntryKindFile:
			if e.Permissions != DefaultFilePermissions {
				t.Errorf("%s permissions = %o, want %o", e.ContainerPath, e.Permissions, DefaultFilePermissions)
			}
		case EntryKindDirectory:
			if e.Permissions != DefaultDirectoryPermissions {
				t.Errorf("%s permissions = %o, want %o", e.ContainerPath, e.Permissions, DefaultDirectoryPermissions)
			}
		}
	}
}

func TestResolveSingleFileDestWithSlash(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app.jar"), "jar")

	resolver := NewResolver(root)

	// Trailing separator: the file keeps its own name under dest.
	resolved, err := resolver.Resolve([]CopySpec{
		NewCopySpec("jar", "app.jar", "/app/libs/"),
	}, PropertyScope{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := []string{"/app", "/app/libs", "/app/libs/app.jar"}
	if got := containerPaths(resolved[0]); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}

	// No trailing separator: dest is taken literally as the new file path.
	resolved, err = resolver.Resolve([]CopySpec{
		NewCopySpec("jar", "app.jar", "/app/renamed.jar"),
	}, PropertyScope{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want = []string{"/app", "/app/renamed.jar"}
	if got := containerPaths(resolved[0]); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestResolveSingleFileToRootKeepsName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app.jar"), "jar")

	spec := NewCopySpec("jar", "app.jar", "/")
	if !spec.DestEndsWithSlash {
		t.Fatal("the root destination counts as slash-terminated")
	}

	resolved, err := NewResolver(root).Resolve([]CopySpec{spec}, PropertyScope{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := []string{"/app.jar"}
	if got := containerPaths(resolved[0]); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestResolveSingleFileRejectsFilters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "app.jar"), "jar")

	resolver := NewResolver(root)
	spec := NewCopySpec("jar", "app.jar", "/app/")
	spec.Includes = []string{"*.jar"}

	_, err := resolver.Resolve([]CopySpec{spec}, PropertyScope{})
	if err == nil {
		t.Fatal("expected an error for includes on a single-file copy")
	}
	if !errors.HasCode(err, errors.CodeFilterOnFile) {
		t.Errorf("error code = %v, want %s", err, errors.CodeFilterOnFile)
	}
}

func TestResolveLeafOnlyIncludesSynthesizeAncestors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "com", "example", "Main.class"), "x")
	writeFile(t, filepath.Join(root, "src", "banner.txt"), "b")

	resolver := NewResolver(root)
	resolved, err := resolver.Resolve([]CopySpec{
		{LayerName: "classes", Src: "src", Dest: "/app/classes", Includes: []string{"**.class"}},
	}, PropertyScope{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	want := []string{
		"/app",
		"/app/classes",
		"/app/classes/com",
		"/app/classes/com/example",
		"/app/classes/com/example/Main.class",
	}
	if got := containerPaths(resolved[0]); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestResolveExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "keep.txt"), "k")
	writeFile(t, filepath.Join(root, "src", "drop.log"), "d")

	resolver := NewResolver(root)
	resolved, err := resolver.Resolve([]CopySpec{
		{LayerName: "files", Src: "src", Dest: "/data", Excludes: []string{"**.log"}},
	}, PropertyScope{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := []string{"/data", "/data/keep.txt"}
	if got := containerPaths(resolved[0]); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestResolveRejectsSymlink(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "real.txt"), "r")
	if err := os.Symlink(filepath.Join(root, "src", "real.txt"), filepath.Join(root, "src", "link.txt")); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	resolver := NewResolver(root)
	_, err := resolver.Resolve([]CopySpec{
		NewCopySpec("files", "src", "/data"),
	}, PropertyScope{})
	if err == nil {
		t.Fatal("expected an error for a symlink in the tree")
	}
	if !errors.HasCode(err, errors.CodeUnsupportedEntry) {
		t.Errorf("error code = %v, want %s", err, errors.CodeUnsupportedEntry)
	}
}

func TestResolveDeterminism(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"z.txt", "a.txt", "m/deep.txt", "b/x.txt"} {
		writeFile(t, filepath.Join(root, "src", filepath.FromSlash(name)), name)
	}

	resolver := NewResolver(root)
	specs := []CopySpec{NewCopySpec("app", "src", "/app")}

	first, err := resolver.Resolve(specs, PropertyScope{})
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	second, err := resolver.Resolve(specs, PropertyScope{})
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("two resolutions of the same specs differ")
	}
}

func TestResolvePropertyOverrides(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bin", "run.sh"), "#!/bin/sh\n")

	mode := os.FileMode(0o755)
	ts := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	owner := Owner{User: "1000", Group: "1000"}

	spec := NewCopySpec("scripts", "bin", "/opt/bin")
	spec.Properties = PropertyScope{
		FilePermissions: &mode,
		ModTime:         &ts,
		Owner:           &owner,
	}

	resolver := NewResolver(root)
	resolved, err := resolver.Resolve([]CopySpec{spec}, PropertyScope{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	for _, e := range resolved[0].Entries {
		if e.Kind != EntryKindFile {
			continue
		}
		if e.Permissions != mode {
			t.Errorf("file permissions = %o, want %o", e.Permissions, mode)
		}
		if !e.ModTime.Equal(ts) {
			t.Errorf("file ModTime = %v, want %v", e.ModTime, ts)
		}
		if e.Owner != owner {
			t.Errorf("file owner = %v, want %v", e.Owner, owner)
		}
	}
}

func TestResolveMergesSpecsIntoOneLayer(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jar"), "a")
	writeFile(t, filepath.Join(root, "b.jar"), "b")

	resolver := NewResolver(root)
	resolved, err := resolver.Resolve([]CopySpec{
		NewCopySpec("dependencies", "a.jar", "/app/libs/"),
		NewCopySpec("dependencies", "b.jar", "/app/libs/"),
	}, PropertyScope{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("got %d layers, want 1 merged layer", len(resolved))
	}
	want := []string{"/app", "/app/libs", "/app/libs/a.jar", "/app/libs/b.jar"}
	if got := containerPaths(resolved[0]); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestResolveEmptyLayerKept(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "a.txt"), "a")

	resolver := NewResolver(root)
	resolved, err := resolver.Resolve([]CopySpec{
		{LayerName: "classes", Src: "src", Dest: "/app", Includes: []string{"**.class"}},
	}, PropertyScope{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("empty layer was dropped; got %d layers, want 1", len(resolved))
	}
	// Only the dest directory survives the filter.
	want := []string{"/app"}
	if got := containerPaths(resolved[0]); !reflect.DeepEqual(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestResolveMissingSource(t *testing.T) {
	resolver := NewResolver(t.TempDir())
	_, err := resolver.Resolve([]CopySpec{
		NewCopySpec("app", "no-such-path", "/app"),
	}, PropertyScope{})
	if err == nil {
		t.Fatal("expected an error for a missing source path")
	}
	if !errors.IsCategory(err, errors.CategoryInput) {
		t.Errorf("error category = %v, want input", err)
	}
}

func TestResolveAllMatchesSequential(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one", "a.txt"), "a")
	writeFile(t, filepath.Join(root, "two", "b.txt"), "b")
	writeFile(t, filepath.Join(root, "three", "c.txt"), "c")

	specs := []CopySpec{
		NewCopySpec("one", "one", "/app/one"),
		NewCopySpec("two", "two", "/app/two"),
		NewCopySpec("three", "three", "/app/three"),
	}

	resolver := NewResolver(root)
	sequential, err := resolver.Resolve(specs, PropertyScope{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	parallel, err := resolver.ResolveAll(context.Background(), specs, PropertyScope{}, 2)
	if err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}
	if !reflect.DeepEqual(sequential, parallel) {
		t.Error("parallel resolution differs from sequential resolution")
	}
}
