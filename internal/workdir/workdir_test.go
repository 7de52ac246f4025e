package workdir

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveBaseDir_FindsStateDirFromSubdir(t *testing.T) {
	root := t.TempDir()
	mkdir(t, filepath.Join(root, stateDir))
	subdir := filepath.Join(root, "nested", "dir")
	mkdir(t, subdir)

	assertSamePath(t, root, ResolveBaseDir(subdir))
}

func TestResolveBaseDir_FollowsRootFile(t *testing.T) {
	shared := filepath.Join(t.TempDir(), "shared-root")
	mkdir(t, shared)
	project := t.TempDir()
	writeFile(t, filepath.Join(project, rootFile), shared+"\n")
	subdir := filepath.Join(project, "line", "station")
	mkdir(t, subdir)

	assertSamePath(t, shared, ResolveBaseDir(subdir))
}

func TestResolveBaseDir_ResolvesRelativeRootFile(t *testing.T) {
	parent := t.TempDir()
	shared := filepath.Join(parent, "shared")
	mkdir(t, shared)
	project := filepath.Join(parent, "project")
	mkdir(t, project)
	writeFile(t, filepath.Join(project, rootFile), "../shared")

	assertSamePath(t, shared, ResolveBaseDir(project))
}

func TestResolveBaseDir_BlankRootFileIgnored(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, rootFile), "  \n")
	mkdir(t, filepath.Join(project, stateDir))

	assertSamePath(t, project, ResolveBaseDir(project))
}

func TestResolveBaseDir_NoMarkersReturnsStart(t *testing.T) {
	start := filepath.Join(t.TempDir(), "a", "b")
	mkdir(t, start)

	if got := ResolveBaseDir(start); got != start {
		t.Fatalf("ResolveBaseDir(%q) = %q, want unchanged", start, got)
	}
}

func mkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func assertSamePath(t *testing.T, want string, got string) {
	t.Helper()
	wantEval, err := filepath.EvalSymlinks(want)
	if err != nil {
		t.Fatalf("eval %s: %v", want, err)
	}
	gotEval, err := filepath.EvalSymlinks(got)
	if err != nil {
		t.Fatalf("eval %s: %v", got, err)
	}
	if wantEval != gotEval {
		t.Fatalf("path = %q, want %q", gotEval, wantEval)
	}
}
