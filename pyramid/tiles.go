package pyramid

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// TileID identifies a tile by level and grid position.
type TileID struct {
	Level int
	X, Y  int
}

func (id TileID) String() string {
	return fmt.Sprintf("%d_%d_%d", id.Level, id.X, id.Y)
}

// tileState tracks dirty and initialized tiles. It has its own lock so
// renderers can poll dirty tiles while a write session is open.
type tileState struct {
	mu          sync.Mutex
	dirty       map[TileID]struct{}
	initialized map[TileID]struct{}
	fully       bool
}

func newTileState(fully bool) *tileState {
	return &tileState{
		dirty:       make(map[TileID]struct{}),
		initialized: make(map[TileID]struct{}),
		fully:       fully,
	}
}

func (s *tileState) markWritten(id TileID) {
	s.mu.Lock()
	s.initialized[id] = struct{}{}
	s.dirty[id] = struct{}{}
	s.mu.Unlock()
}

func (s *tileState) markInitialized(id TileID) {
	s.mu.Lock()
	s.initialized[id] = struct{}{}
	s.mu.Unlock()
}

func (s *tileState) isInitialized(id TileID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fully {
		return true
	}
	_, ok := s.initialized[id]
	return ok
}

func (s *tileState) setDirty(id TileID) {
	s.mu.Lock()
	s.dirty[id] = struct{}{}
	s.mu.Unlock()
}

// dirtyList returns the dirty tiles sorted by level, row and column.
func (s *tileState) dirtyList() []TileID {
	s.mu.Lock()
	ids := make([]TileID, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	slices.SortFunc(ids, func(a, b TileID) int {
		return cmp.Or(cmp.Compare(a.Level, b.Level), cmp.Compare(a.Y, b.Y), cmp.Compare(a.X, b.X))
	})
	return ids
}

func (s *tileState) clearDirty(ids []TileID) {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.dirty, id)
	}
	s.mu.Unlock()
}

func (s *tileState) clearAllDirty() {
	s.mu.Lock()
	clear(s.dirty)
	s.mu.Unlock()
}

func (s *tileState) setFully() {
	s.mu.Lock()
	s.fully = true
	s.mu.Unlock()
}

func (s *tileState) isFully() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fully
}
