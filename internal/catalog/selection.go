package catalog

import "sync"

// SelectionStore remembers which category the user is browsing.
type SelectionStore struct {
	mu       sync.RWMutex
	selected string
}

func NewSelectionStore() *SelectionStore {
	return &SelectionStore{selected: DefaultCategoryID}
}

func (s *SelectionStore) SelectedCategoryID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

func (s *SelectionStore) SetSelectedCategoryID(id string) {
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
}
