package workspace

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/backplane/internal/contract"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func sourceTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n")
	writeFile(t, dir, "src/lib.go", "package lib\n")
	writeFile(t, dir, "src/deep/deep.go", "package deep\n")
	writeFile(t, dir, "node_modules/pkg/index.js", "x")
	writeFile(t, dir, ".env", "SECRET=1")
	return dir
}

func TestStagePassThrough(t *testing.T) {
	dir := sourceTree(t)
	w, err := Stage(contract.WorkspaceSpec{Root: dir, Mode: contract.ModePassThrough}, StageOptions{})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	defer w.Close()

	if w.Path != dir || w.Temp {
		t.Errorf("pass-through = %+v", w)
	}
	// Close must not delete the caller's tree.
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "main.go")); err != nil {
		t.Errorf("pass-through close removed source files: %v", err)
	}
}

func TestStagePassThroughMissingRoot(t *testing.T) {
	_, err := Stage(contract.WorkspaceSpec{Root: "/nonexistent/abp", Mode: contract.ModePassThrough}, StageOptions{})
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestStageCopies(t *testing.T) {
	dir := sourceTree(t)
	w, err := Stage(contract.WorkspaceSpec{Root: dir, Mode: contract.ModeStaged}, StageOptions{})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	defer w.Close()

	if !w.Temp || w.Path == dir {
		t.Errorf("staged = %+v", w)
	}
	for _, rel := range []string{"main.go", "src/lib.go", "src/deep/deep.go", ".env"} {
		if _, err := os.Stat(filepath.Join(w.Path, rel)); err != nil {
			t.Errorf("staged copy missing %s: %v", rel, err)
		}
	}

	// Mutating the copy must not touch the source.
	if err := os.WriteFile(filepath.Join(w.Path, "main.go"), []byte("mutated"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src, _ := os.ReadFile(filepath.Join(dir, "main.go"))
	if string(src) != "package main\n" {
		t.Error("mutating the staged copy leaked into the source tree")
	}
}

func TestStageIncludeExclude(t *testing.T) {
	dir := sourceTree(t)
	w, err := Stage(contract.WorkspaceSpec{
		Root:    dir,
		Mode:    contract.ModeStaged,
		Include: []string{"**/*.go"},
		Exclude: []string{"node_modules/**"},
	}, StageOptions{})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	defer w.Close()

	for _, rel := range []string{"main.go", "src/lib.go", "src/deep/deep.go"} {
		if _, err := os.Stat(filepath.Join(w.Path, rel)); err != nil {
			t.Errorf("include filter dropped %s", rel)
		}
	}
	for _, rel := range []string{".env", "node_modules/pkg/index.js"} {
		if _, err := os.Stat(filepath.Join(w.Path, rel)); err == nil {
			t.Errorf("filter admitted %s", rel)
		}
	}
}

func TestStageExcludeWinsOverInclude(t *testing.T) {
	dir := sourceTree(t)
	w, err := Stage(contract.WorkspaceSpec{
		Root:    dir,
		Mode:    contract.ModeStaged,
		Include: []string{"**/*.go"},
		Exclude: []string{"src/**"},
	}, StageOptions{})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	defer w.Close()

	if _, err := os.Stat(filepath.Join(w.Path, "src/lib.go")); err == nil {
		t.Error("exclude should win over include")
	}
	if _, err := os.Stat(filepath.Join(w.Path, "main.go")); err != nil {
		t.Error("include outside exclude should survive")
	}
}

func TestStageCloseRemovesTemp(t *testing.T) {
	dir := sourceTree(t)
	w, err := Stage(contract.WorkspaceSpec{Root: dir, Mode: contract.ModeStaged}, StageOptions{})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	path := w.Path
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("temp dir survived Close: %v", err)
	}
	// Second close is a no-op.
	if err := w.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}
}

func TestStageUnknownMode(t *testing.T) {
	if _, err := Stage(contract.WorkspaceSpec{Root: ".", Mode: "inline"}, StageOptions{}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func TestStageGitBaseline(t *testing.T) {
	requireGit(t)
	dir := sourceTree(t)
	w, err := Stage(contract.WorkspaceSpec{Root: dir, Mode: contract.ModeStaged}, StageOptions{GitInit: true})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	defer w.Close()

	if !w.GitInit {
		t.Fatal("GitInit flag not set")
	}

	// Fresh baseline: no changes yet.
	summary, err := DiffWorkspace(w)
	if err != nil {
		t.Fatalf("DiffWorkspace: %v", err)
	}
	if summary.HasChanges() {
		t.Errorf("fresh baseline has changes: %+v", summary)
	}
}

func TestDiffWorkspaceReportsChanges(t *testing.T) {
	requireGit(t)
	dir := sourceTree(t)
	w, err := Stage(contract.WorkspaceSpec{Root: dir, Mode: contract.ModeStaged}, StageOptions{GitInit: true})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	defer w.Close()

	writeFile(t, w.Path, "added.go", "package added\n")
	writeFile(t, w.Path, "main.go", "package main\n\nfunc main() {}\n")
	if err := os.Remove(filepath.Join(w.Path, ".env")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	summary, err := DiffWorkspace(w)
	if err != nil {
		t.Fatalf("DiffWorkspace: %v", err)
	}
	if len(summary.Added) != 1 || summary.Added[0] != "added.go" {
		t.Errorf("added = %v", summary.Added)
	}
	if len(summary.Modified) != 1 || summary.Modified[0] != "main.go" {
		t.Errorf("modified = %v", summary.Modified)
	}
	if len(summary.Deleted) != 1 || summary.Deleted[0] != ".env" {
		t.Errorf("deleted = %v", summary.Deleted)
	}
	if summary.TotalAdditions == 0 {
		t.Errorf("additions = %d, want > 0", summary.TotalAdditions)
	}
}

func TestDiffWorkspaceRequiresBaseline(t *testing.T) {
	dir := sourceTree(t)
	w, err := Stage(contract.WorkspaceSpec{Root: dir, Mode: contract.ModeStaged}, StageOptions{})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	defer w.Close()

	if _, err := DiffWorkspace(w); err == nil {
		t.Error("diff without baseline should fail")
	}
}

func TestRawDiff(t *testing.T) {
	requireGit(t)
	dir := sourceTree(t)
	w, err := Stage(contract.WorkspaceSpec{Root: dir, Mode: contract.ModeStaged}, StageOptions{GitInit: true})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	defer w.Close()

	writeFile(t, w.Path, "main.go", "package main // edited\n")

	diff, status, err := RawDiff(w)
	if err != nil {
		t.Fatalf("RawDiff: %v", err)
	}
	if diff == "" || status == "" {
		t.Errorf("diff/status empty: %q %q", diff, status)
	}
}
