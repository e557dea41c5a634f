package workspace

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DiffSummary is the structured post-run change report.
type DiffSummary struct {
	Added          []string
	Modified       []string
	Deleted        []string
	TotalAdditions int
	TotalDeletions int
}

// HasChanges reports whether anything moved.
func (d DiffSummary) HasChanges() bool {
	return len(d.Added)+len(d.Modified)+len(d.Deleted) > 0
}

func initBaseline(dir string) error {
	steps := [][]string{
		{"init", "-q"},
		{"add", "-A"},
		{"-c", "user.email=abp@localhost", "-c", "user.name=abp", "commit", "-q", "--allow-empty", "-m", "baseline"},
	}
	for _, args := range steps {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("workspace: git %s: %w (%s)", args[0], err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

// DiffWorkspace captures the change summary of a staged workspace with a
// git baseline, from `git status --porcelain` and `git diff --numstat`.
// Binary files count as changed with zero line deltas.
func DiffWorkspace(w *PreparedWorkspace) (DiffSummary, error) {
	var summary DiffSummary
	if w == nil || !w.GitInit {
		return summary, fmt.Errorf("workspace: diff requires a staged workspace with a git baseline")
	}

	status, err := gitOutput(w.Path, "status", "--porcelain")
	if err != nil {
		return summary, err
	}
	for _, line := range strings.Split(status, "\n") {
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		path := strings.TrimSpace(line[3:])
		switch {
		case code == "??" || strings.Contains(code, "A"):
			summary.Added = append(summary.Added, path)
		case strings.Contains(code, "D"):
			summary.Deleted = append(summary.Deleted, path)
		case strings.Contains(code, "M") || strings.Contains(code, "R"):
			summary.Modified = append(summary.Modified, path)
		}
	}

	numstat, err := gitOutput(w.Path, "diff", "--numstat", "HEAD")
	if err != nil {
		return summary, err
	}
	for _, line := range strings.Split(numstat, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		// "-" marks a binary file; it contributes no line deltas.
		if add, err := strconv.Atoi(fields[0]); err == nil {
			summary.TotalAdditions += add
		}
		if del, err := strconv.Atoi(fields[1]); err == nil {
			summary.TotalDeletions += del
		}
	}

	return summary, nil
}

// RawDiff returns the full unified diff and porcelain status, for receipt
// verification fields.
func RawDiff(w *PreparedWorkspace) (diff, status string, err error) {
	if w == nil || !w.GitInit {
		return "", "", fmt.Errorf("workspace: diff requires a staged workspace with a git baseline")
	}
	diff, err = gitOutput(w.Path, "diff", "HEAD")
	if err != nil {
		return "", "", err
	}
	status, err = gitOutput(w.Path, "status", "--porcelain")
	if err != nil {
		return "", "", err
	}
	return diff, status, nil
}

func gitOutput(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("workspace: git %s: %w (%s)", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
