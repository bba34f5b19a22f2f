package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Spacemarine1789/yamdb-final/internal/models"
)

// Snapshot captures a complete JSON-serialisable view of the datastore,
// grouping each collection by its primary identifier so it can be persisted
// and later replayed into another backing store.
type Snapshot struct {
	Users      map[string]models.User     `json:"users"`
	Categories map[string]models.Category `json:"categories"`
	Genres     map[string]models.Genre    `json:"genres"`
	Titles     map[string]models.Title    `json:"titles"`
	Reviews    map[string]models.Review   `json:"reviews"`
	Comments   map[string]models.Comment  `json:"comments"`
}

// SnapshotCounts summarises the size of each collection stored in a Snapshot
// so operators can see how much data will be imported.
type SnapshotCounts struct {
	Users      int
	Categories int
	Genres     int
	Titles     int
	Reviews    int
	Comments   int
}

// LoadSnapshotFromJSON reads a previously exported Snapshot (or a raw
// JSON-store file, which shares the layout) from disk.
func LoadSnapshotFromJSON(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	var snapshot Snapshot
	if err := decoder.Decode(&snapshot); err != nil {
		if err == io.EOF {
			snapshot.ensureInitialized()
			return &snapshot, nil
		}
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	snapshot.ensureInitialized()
	return &snapshot, nil
}

func (s *Snapshot) ensureInitialized() {
	if s.Users == nil {
		s.Users = make(map[string]models.User)
	}
	if s.Categories == nil {
		s.Categories = make(map[string]models.Category)
	}
	if s.Genres == nil {
		s.Genres = make(map[string]models.Genre)
	}
	if s.Titles == nil {
		s.Titles = make(map[string]models.Title)
	}
	if s.Reviews == nil {
		s.Reviews = make(map[string]models.Review)
	}
	if s.Comments == nil {
		s.Comments = make(map[string]models.Comment)
	}
}

// Counts reports how many entities of each type the Snapshot holds.
func (s *Snapshot) Counts() SnapshotCounts {
	if s == nil {
		return SnapshotCounts{}
	}
	return SnapshotCounts{
		Users:      len(s.Users),
		Categories: len(s.Categories),
		Genres:     len(s.Genres),
		Titles:     len(s.Titles),
		Reviews:    len(s.Reviews),
		Comments:   len(s.Comments),
	}
}

// ExportSnapshot returns a deep copy of the datastore contents.
func (s *Storage) ExportSnapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data := s.data.clone()
	return &Snapshot{
		Users:      data.Users,
		Categories: data.Categories,
		Genres:     data.Genres,
		Titles:     data.Titles,
		Reviews:    data.Reviews,
		Comments:   data.Comments,
	}
}

// ImportSnapshotToPostgres hands a Snapshot to the postgres repository so the
// serialised datastore state can be bulk-loaded into Postgres.
func ImportSnapshotToPostgres(ctx context.Context, repo Repository, snapshot *Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}
	pgRepo, ok := repo.(*postgresRepository)
	if !ok {
		return fmt.Errorf("postgres repository required for snapshot import")
	}
	snapshot.ensureInitialized()
	return pgRepo.importSnapshot(ctx, snapshot)
}
