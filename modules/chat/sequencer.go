package chat

import "sync"

// sequencer serializes "persist then deliver" per room so that delivery order
// within a room matches persistence completion order. Rooms are independent.
type sequencer struct {
	mu    sync.Mutex
	rooms map[string]*roomLock
}

type roomLock struct {
	mu   sync.Mutex
	refs int
}

func newSequencer() *sequencer {
	return &sequencer{rooms: make(map[string]*roomLock)}
}

// lock acquires the room's lock and returns its release function.
// Idle room locks are dropped on release.
func (s *sequencer) lock(room string) func() {
	s.mu.Lock()
	rl := s.rooms[room]
	if rl == nil {
		rl = &roomLock{}
		s.rooms[room] = rl
	}
	rl.refs++
	s.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()

		s.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(s.rooms, room)
		}
		s.mu.Unlock()
	}
}

// size returns the number of rooms holding a lock or waiting for one.
func (s *sequencer) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
