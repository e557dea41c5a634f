// Package workspace prepares the directory a run operates in: either the
// caller's tree as-is, or a staged copy with an optional git baseline,
// plus a structured diff capture after the run.
package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// PreparedWorkspace points at a directory a backend may operate in.
// Staged workspaces own a temp directory; call Close on every exit path.
type PreparedWorkspace struct {
	Path    string
	Temp    bool
	GitInit bool
}

// Close removes the temp directory of a staged workspace. Pass-through
// workspaces are untouched. Safe to call more than once.
func (w *PreparedWorkspace) Close() error {
	if !w.Temp || w.Path == "" {
		return nil
	}
	err := os.RemoveAll(w.Path)
	w.Path = ""
	return err
}

// StageOptions tune staging behavior.
type StageOptions struct {
	// GitInit initializes a git repository in the staged copy and commits
	// the baseline so post-run diffs have an anchor.
	GitInit bool
}

// Stage prepares a workspace for the given mode. Staging is atomic from the
// caller's perspective: either a usable workspace is returned or no
// partial directory is left behind.
func Stage(spec contract.WorkspaceSpec, opts StageOptions) (*PreparedWorkspace, error) {
	root := spec.Root
	if root == "" {
		return nil, fmt.Errorf("workspace: root is empty")
	}

	switch spec.Mode {
	case contract.ModePassThrough:
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("workspace: stat root: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("workspace: root %q is not a directory", root)
		}
		return &PreparedWorkspace{Path: root}, nil

	case contract.ModeStaged:
		// MkdirTemp creates the directory 0700, private to this process.
		tmp, err := os.MkdirTemp("", "abp-workspace-*")
		if err != nil {
			return nil, fmt.Errorf("workspace: create staging directory: %w", err)
		}
		if err := copyTree(root, tmp, spec.Include, spec.Exclude); err != nil {
			_ = os.RemoveAll(tmp)
			return nil, err
		}
		prepared := &PreparedWorkspace{Path: tmp, Temp: true}
		if opts.GitInit {
			if err := initBaseline(tmp); err != nil {
				_ = os.RemoveAll(tmp)
				return nil, err
			}
			prepared.GitInit = true
		}
		return prepared, nil

	default:
		return nil, fmt.Errorf("workspace: unknown mode %q", spec.Mode)
	}
}

// copyTree copies src into dst applying include/exclude globs to paths
// relative to src. A non-empty include list admits only matching files;
// exclude always wins. The source .git directory is never carried into a
// staged copy.
func copyTree(src, dst string, include, exclude []string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("workspace: walk %s: %w", path, err)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("workspace: relativize %s: %w", path, err)
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			if matchesAny(exclude, rel) || matchesAny(exclude, rel+"/") {
				return filepath.SkipDir
			}
			// Directories are created lazily when a file below them passes
			// the filters.
			return nil
		}

		if matchesAny(exclude, rel) {
			return nil
		}
		if len(include) > 0 && !matchesAny(include, rel) {
			return nil
		}

		target := filepath.Join(dst, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
			return fmt.Errorf("workspace: create directory for %s: %w", rel, err)
		}
		return copyFile(path, target, info.Mode())
	})
}

func matchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("workspace: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("workspace: create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("workspace: copy %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("workspace: close %s: %w", dst, err)
	}
	return nil
}
