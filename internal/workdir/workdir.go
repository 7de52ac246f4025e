// Package workdir resolves the project directory that holds .prep/,
// supporting redirection to a shared root via .prep-root files.
package workdir

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	stateDir = ".prep"
	rootFile = ".prep-root"
)

// ResolveBaseDir walks up from start to the nearest directory holding a
// .prep directory or a .prep-root file. A .prep-root file names the real
// project root; relative paths are resolved against the file's directory.
// Without any marker, start is returned unchanged.
func ResolveBaseDir(start string) string {
	abs, err := filepath.Abs(start)
	if err != nil {
		return start
	}
	for dir := abs; ; {
		if root, ok := readRootFile(dir); ok {
			return root
		}
		if fi, err := os.Stat(filepath.Join(dir, stateDir)); err == nil && fi.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

func readRootFile(dir string) (string, bool) {
	content, err := os.ReadFile(filepath.Join(dir, rootFile))
	if err != nil {
		return "", false
	}
	resolved := strings.TrimSpace(string(content))
	if resolved == "" {
		return "", false
	}
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(dir, resolved)
	}
	return filepath.Clean(resolved), true
}
