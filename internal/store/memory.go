package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AngelCh415/prospection-kpi/internal/models"
)

var ErrNotFound = errors.New("dataset not found")

// Dataset is one ingested export. Table is shared read-only between requests.
type Dataset struct {
	ID         string       `json:"id"`
	Name       string       `json:"name,omitempty"`
	Table      models.Table `json:"-"`
	Contacts   int          `json:"contacts"`
	Skipped    int          `json:"skipped_rows"`
	Columns    []string     `json:"columns"`
	IngestedAt time.Time    `json:"ingested_at"`
}

// MemoryStore keeps datasets for the lifetime of the process only.
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[string]Dataset
	max  int
}

// NewMemoryStore keeps at most max datasets, evicting the oldest; max <= 0
// means unbounded.
func NewMemoryStore(max int) *MemoryStore {
	return &MemoryStore{sets: make(map[string]Dataset), max: max}
}

func (s *MemoryStore) Put(d Dataset) Dataset {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.IngestedAt.IsZero() {
		d.IngestedAt = time.Now().UTC()
	}
	d.Contacts = len(d.Table)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[d.ID] = d
	if s.max > 0 && len(s.sets) > s.max {
		s.evictOldest()
	}
	return d
}

func (s *MemoryStore) Get(id string) (Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.sets[id]
	if !ok {
		return Dataset{}, ErrNotFound
	}
	return d, nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sets[id]; !ok {
		return ErrNotFound
	}
	delete(s.sets, id)
	return nil
}

// List returns dataset summaries, newest first.
func (s *MemoryStore) List() []Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Dataset, 0, len(s.sets))
	for _, d := range s.sets {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngestedAt.After(out[j].IngestedAt) })
	return out
}

func (s *MemoryStore) evictOldest() {
	var oldest string
	var at time.Time
	for id, d := range s.sets {
		if oldest == "" || d.IngestedAt.Before(at) {
			oldest, at = id, d.IngestedAt
		}
	}
	delete(s.sets, oldest)
}
