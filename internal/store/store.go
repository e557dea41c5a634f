// Package store persists receipts: one pretty-printed JSON file per run
// id, with hash and chain verification on top, plus a SQLite index for
// fast listing without re-reading every file.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/antigravity-dev/backplane/internal/contract"
)

// ErrNotFound is returned when no receipt exists for the requested id.
var ErrNotFound = errors.New("receipt not found")

// FileStore keeps one <run_id>.json per receipt under a root directory.
// Writes go through a temp file and rename, so a file is either the old
// or the new receipt, never a torn write. Different ids may be written
// concurrently; same-id writes are last-write-wins.
type FileStore struct {
	dir string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("store: directory is empty")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store root.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".json")
}

// Save writes the receipt under its run id, overwriting any previous
// version. The on-disk form is pretty-printed for human inspection;
// hashing always uses the canonical form regardless.
func (s *FileStore) Save(r contract.Receipt) error {
	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal receipt: %w", err)
	}

	final := s.path(r.Meta.RunID)
	tmp, err := os.CreateTemp(s.dir, "."+r.Meta.RunID.String()+".*")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(out, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: write receipt: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store: publish receipt: %w", err)
	}
	return nil
}

// Load reads one receipt. Returns ErrNotFound when absent.
func (s *FileStore) Load(id uuid.UUID) (contract.Receipt, error) {
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return contract.Receipt{}, fmt.Errorf("store: %s: %w", id, ErrNotFound)
		}
		return contract.Receipt{}, fmt.Errorf("store: read receipt: %w", err)
	}
	var r contract.Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return contract.Receipt{}, fmt.Errorf("store: decode receipt %s: %w", id, err)
	}
	return r, nil
}

// List reads every receipt, ordered by started_at.
func (s *FileStore) List() ([]contract.Receipt, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("store: read directory: %w", err)
	}

	var receipts []contract.Receipt
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		r, err := s.Load(id)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}

	sort.SliceStable(receipts, func(i, j int) bool {
		return receipts[i].Meta.StartedAt.Before(receipts[j].Meta.StartedAt.Time)
	})
	return receipts, nil
}

// Verify recomputes the hash of a stored receipt and compares.
func (s *FileStore) Verify(id uuid.UUID) (bool, error) {
	r, err := s.Load(id)
	if err != nil {
		return false, err
	}
	return r.VerifyHash()
}

// Gap is the idle span between two consecutive receipts in the chain.
type Gap struct {
	PrevFinishedAt contract.Timestamp
	NextStartedAt  contract.Timestamp
}

// ChainReport is the outcome of batch-verifying the whole store.
type ChainReport struct {
	ValidCount    int
	InvalidHashes []uuid.UUID
	Gaps          []Gap
	IsValid       bool
}

// VerifyChain loads all receipts ordered by started_at, verifies each
// hash, and reports the gaps between consecutive runs. An empty store is
// a valid chain.
func (s *FileStore) VerifyChain() (ChainReport, error) {
	receipts, err := s.List()
	if err != nil {
		return ChainReport{}, err
	}

	report := ChainReport{IsValid: true}
	for i, r := range receipts {
		ok, err := r.VerifyHash()
		if err != nil {
			return ChainReport{}, err
		}
		if ok {
			report.ValidCount++
		} else {
			report.InvalidHashes = append(report.InvalidHashes, r.Meta.RunID)
			report.IsValid = false
		}
		if i > 0 {
			report.Gaps = append(report.Gaps, Gap{
				PrevFinishedAt: receipts[i-1].Meta.FinishedAt,
				NextStartedAt:  r.Meta.StartedAt,
			})
		}
	}
	return report, nil
}
