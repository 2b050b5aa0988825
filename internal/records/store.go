package records

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rfpdesk/internal/model"
)

var (
	ErrNotFound    = errors.New("records: request not found")
	ErrDuplicateID = errors.New("records: duplicate request id")
	ErrNotSelected = errors.New("records: request is not selected")
)

// Store owns the ordered collection of requests for payment and their
// selection and artifact state. Records are copied in and out so an artifact
// is only ever reachable through the record that owns it.
type Store struct {
	mu       sync.RWMutex
	items    []model.RequestRecord
	index    map[string]int
	selected int
}

func NewStore() *Store {
	return &Store{index: map[string]int{}}
}

// ReplaceAll swaps the whole collection and recomputes the derived counts.
// Artifacts carried by the incoming records are dropped. A collection with a
// repeated id is refused and the current one is kept.
func (s *Store) ReplaceAll(recs []model.RequestRecord) error {
	items := make([]model.RequestRecord, len(recs))
	index := make(map[string]int, len(recs))
	selected := 0
	for i, r := range recs {
		if _, dup := index[r.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
		}
		c := r.Clone()
		c.Artifact = nil
		items[i] = c
		index[c.ID] = i
		if c.Selected {
			selected++
		}
	}

	s.mu.Lock()
	s.items = items
	s.index = index
	s.selected = selected
	s.mu.Unlock()
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) CountSelected() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// SetSelected updates one record's selection flag.
func (s *Store) SetSelected(id string, selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	if s.items[i].Selected == selected {
		return nil
	}
	s.items[i].Selected = selected
	if selected {
		s.selected++
	} else {
		s.selected--
	}
	return nil
}

// SelectAll sets every record's selection flag.
func (s *Store) SelectAll(selected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		s.items[i].Selected = selected
	}
	if selected {
		s.selected = len(s.items)
	} else {
		s.selected = 0
	}
}

// ClearArtifacts forgets every generated artifact.
func (s *Store) ClearArtifacts() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		s.items[i].Artifact = nil
	}
}

// At returns a copy of the record at position i.
func (s *Store) At(i int) (model.RequestRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 || i >= len(s.items) {
		return model.RequestRecord{}, false
	}
	return s.items[i].Clone(), true
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (model.RequestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return model.RequestRecord{}, ErrNotFound
	}
	return s.items[i].Clone(), nil
}

// Attach stores a copy of the artifact on the record with the given id. A
// record deselected since it was read is left without an artifact and
// ErrNotSelected is returned.
func (s *Store) Attach(id string, a model.GeneratedArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	if !s.items[i].Selected {
		return ErrNotSelected
	}
	s.items[i].Artifact = &a
	return nil
}

// Snapshot returns a copy of the collection in order.
func (s *Store) Snapshot() []model.RequestRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RequestRecord, len(s.items))
	for i, r := range s.items {
		out[i] = r.Clone()
	}
	return out
}

// Eligible returns copies of the records that are selected and carry an
// artifact, in collection order.
func (s *Store) Eligible() []model.RequestRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.RequestRecord
	for _, r := range s.items {
		if r.Eligible() {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (s *Store) CountGenerated() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.items {
		if r.Artifact != nil {
			n++
		}
	}
	return n
}

func (s *Store) CountEligible() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.items {
		if r.Eligible() {
			n++
		}
	}
	return n
}
