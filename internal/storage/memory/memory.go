// Package memory provides in-memory session and video stores for running
// without a database. State lives for the process lifetime only.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kozaktomas/reid/internal/session"
	"github.com/kozaktomas/reid/internal/video"
)

// SessionStore implements session.Store in memory.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	order    []string
	rosters  map[string][]session.RosterEntry
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session.Session),
		rosters:  make(map[string][]session.RosterEntry),
	}
}

func (s *SessionStore) CreateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	s.order = append(s.order, sess.ID)
	return nil
}

func (s *SessionStore) UpdateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return fmt.Errorf("session %s not found", sess.ID)
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	cp := *sess
	return &cp, nil
}

func (s *SessionStore) ListSessions(_ context.Context) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.Session, 0, len(s.order))
	// newest first, matching the database ordering
	for i := len(s.order) - 1; i >= 0; i-- {
		cp := *s.sessions[s.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *SessionStore) SaveRoster(_ context.Context, entries []session.RosterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.rosters[e.SessionID] = append(s.rosters[e.SessionID], e)
	}
	return nil
}

func (s *SessionStore) Roster(_ context.Context, sessionID string) ([]session.RosterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append([]session.RosterEntry(nil), s.rosters[sessionID]...)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].FirstSeenFrame != entries[j].FirstSeenFrame {
			return entries[i].FirstSeenFrame < entries[j].FirstSeenFrame
		}
		return entries[i].PersonID < entries[j].PersonID
	})
	return entries, nil
}

// VideoStore implements video.Store in memory.
type VideoStore struct {
	mu     sync.Mutex
	videos map[string]*video.OriginalVideo
	order  []string
}

// NewVideoStore creates an empty in-memory video store.
func NewVideoStore() *VideoStore {
	return &VideoStore{videos: make(map[string]*video.OriginalVideo)}
}

func (s *VideoStore) Register(_ context.Context, v *video.OriginalVideo) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[v.Hash]; ok {
		return true, nil
	}
	cp := *v
	s.videos[v.Hash] = &cp
	s.order = append(s.order, v.Hash)
	return false, nil
}

func (s *VideoStore) Get(_ context.Context, hash string) (*video.OriginalVideo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[hash]
	if !ok {
		return nil, fmt.Errorf("video %s not found", hash)
	}
	cp := *v
	return &cp, nil
}

func (s *VideoStore) List(_ context.Context) ([]*video.OriginalVideo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*video.OriginalVideo, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		cp := *s.videos[s.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}
