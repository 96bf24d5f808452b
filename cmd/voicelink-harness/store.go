package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// roomTTL matches the production backend: minted rooms expire after ten
// minutes whether or not anyone joined.
const roomTTL = 10 * time.Minute

type session struct {
	ID        string
	CreatedAt time.Time

	// Book context attached via upload-book, empty when none.
	BookName string
	BookURI  string
	BookMIME string
}

type room struct {
	ID        string
	Token     string
	SessionID string
	TTSModel  string
	ExpiresAt time.Time
}

// store is the harness's in-memory session and room registry. The real
// backend keeps this state in its process too; persistence is deliberately
// out of scope so the harness runs with zero infrastructure.
type store struct {
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	rooms    map[string]*room
}

func newStore(now func() time.Time) *store {
	if now == nil {
		now = time.Now
	}
	return &store{
		now:      now,
		sessions: make(map[string]*session),
		rooms:    make(map[string]*room),
	}
}

func (s *store) createSession() *session {
	sess := &session{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

func (s *store) session(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *store) setBook(id, name, uri, mime string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.BookName = name
	sess.BookURI = uri
	sess.BookMIME = mime
	return true
}

func (s *store) clearBook(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.BookName = ""
	sess.BookURI = ""
	sess.BookMIME = ""
	return true
}

// mintRoom creates a room bound to the session and sweeps expired rooms
// while it holds the lock.
func (s *store) mintRoom(sessionID, ttsModel string) *room {
	now := s.now()
	r := &room{
		ID:        uuid.NewString(),
		Token:     uuid.NewString(),
		SessionID: sessionID,
		TTSModel:  ttsModel,
		ExpiresAt: now.Add(roomTTL),
	}
	s.mu.Lock()
	for id, existing := range s.rooms {
		if now.After(existing.ExpiresAt) {
			delete(s.rooms, id)
		}
	}
	s.rooms[r.ID] = r
	s.mu.Unlock()
	return r
}

// joinRoom validates the token for a room id, returning the room only when
// it exists, the token matches, and the room has not expired.
func (s *store) joinRoom(roomID, token string) (*room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	if s.now().After(r.ExpiresAt) {
		delete(s.rooms, roomID)
		return nil, false
	}
	if r.Token != token {
		return nil, false
	}
	return r, true
}

func (s *store) closeRoom(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}
