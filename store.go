package aceconnect

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ============================================================================
// RoomStore
// ============================================================================

type room struct {
	messages []Message
	seen     map[int64]struct{}
}

func newRoom() *room {
	return &room{seen: make(map[int64]struct{})}
}

// add appends msg unless a message with the same non-zero id is present.
func (r *room) add(msg Message) bool {
	if msg.ID != 0 {
		if _, dup := r.seen[msg.ID]; dup {
			return false
		}
		r.seen[msg.ID] = struct{}{}
	}
	r.messages = append(r.messages, msg)
	return true
}

func (r *room) hasSender(senderID int64) bool {
	for _, m := range r.messages {
		if m.SenderID == senderID {
			return true
		}
	}
	return false
}

// RoomStore is a goroutine-safe in-memory store of message sequences keyed
// by match id. Each sequence keeps arrival order.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[int64]*room
}

// NewRoomStore creates an empty store.
func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[int64]*room)}
}

// Replace sets the full sequence of a room, dropping repeated ids.
func (s *RoomStore) Replace(matchID int64, msgs []Message) {
	r := newRoom()
	r.messages = make([]Message, 0, len(msgs))
	for _, m := range msgs {
		r.add(m)
	}
	s.mu.Lock()
	s.rooms[matchID] = r
	s.mu.Unlock()
}

// Append adds msg to the end of a room and reports whether it was added.
// A message whose id is already in the room is ignored; id 0 is never
// treated as a duplicate.
func (s *RoomStore) Append(matchID int64, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[matchID]
	if !ok {
		r = newRoom()
		s.rooms[matchID] = r
	}
	return r.add(msg)
}

// Messages returns a copy of a room's sequence.
func (s *RoomStore) Messages(matchID int64) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[matchID]
	if !ok {
		return []Message{}
	}
	return append([]Message(nil), r.messages...)
}

// Has reports whether matchID is retained.
func (s *RoomStore) Has(matchID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[matchID]
	return ok
}

// Drop forgets a room and its messages.
func (s *RoomStore) Drop(matchID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, matchID)
}

// senderRoom returns the lowest retained room other than active in which
// senderID has written. It reports false when senderID has also written in
// active.
func (s *RoomStore) senderRoom(senderID, active int64) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := int64(0)
	for _, id := range s.sortedIDs() {
		if !s.rooms[id].hasSender(senderID) {
			continue
		}
		if id == active {
			return 0, false
		}
		if found == 0 {
			found = id
		}
	}
	return found, found != 0
}

// Rooms returns the ids of retained rooms in ascending order.
func (s *RoomStore) Rooms() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedIDs()
}

func (s *RoomStore) sortedIDs() []int64 {
	ids := make([]int64, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SearchResult is one message matched by Search.
type SearchResult struct {
	MatchID int64
	Message Message
}

// Search returns messages whose content contains query, case-insensitively.
// matchID 0 searches every retained room. limit <= 0 means no limit.
func (s *RoomStore) Search(query string, matchID int64, limit int) []SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var results []SearchResult
	for _, id := range s.sortedIDs() {
		if matchID != 0 && id != matchID {
			continue
		}
		for _, m := range s.rooms[id].messages {
			if !strings.Contains(strings.ToLower(m.Content), q) {
				continue
			}
			results = append(results, SearchResult{MatchID: id, Message: m})
			if limit > 0 && len(results) >= limit {
				return results
			}
		}
	}
	return results
}

// ============================================================================
// Change Emitter
// ============================================================================

// ChangeHandler receives the active match id and a snapshot of its messages.
// matchID is 0 when no conversation is active.
type ChangeHandler func(matchID int64, messages []Message)

// changeEmitter delivers versioned snapshots one at a time. A snapshot
// older than the last one delivered is dropped, so listeners never see the
// list go backwards.
type changeEmitter struct {
	mu        sync.RWMutex
	listeners []ChangeHandler
	logger    *zap.Logger

	deliverMu sync.Mutex
	delivered uint64
}

func (e *changeEmitter) On(handler ChangeHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, handler)
}

func (e *changeEmitter) emit(version uint64, matchID int64, messages []Message) {
	e.deliverMu.Lock()
	defer e.deliverMu.Unlock()
	if version <= e.delivered {
		return
	}
	e.delivered = version

	e.mu.RLock()
	handlers := append([]ChangeHandler(nil), e.listeners...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil && e.logger != nil {
					e.logger.Error("change listener panicked", zap.Any("panic", r))
				}
			}()
			h(matchID, messages)
		}()
	}
}

func (e *changeEmitter) removeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = nil
}
