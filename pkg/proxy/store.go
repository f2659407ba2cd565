// Copyright 2024-2026 Aiku AI

package proxy

import (
	"sync"
	"time"
)

// MessageMapping links a deleted original message to its proxied copy.
// A mapping exists only after the proxied send succeeded, so a live mapping
// always refers to a message the bot actually posted.
type MessageMapping struct {
	OriginalID MessageID
	ProxiedID  MessageID
	ChannelID  ChannelID
	CreatedAt  time.Time
	// Content is the proxied content as originally sent.
	Content string
	// LastEditedContent is the most recent edited content, empty while the
	// proxied copy has never been edited.
	LastEditedContent string
}

// CurrentContent returns the proxied message's content as it stands now.
func (m MessageMapping) CurrentContent() string {
	if m.LastEditedContent != "" {
		return m.LastEditedContent
	}
	return m.Content
}

// Store is the in-memory mapping table. Both message IDs index the same
// mapping; all methods are safe for concurrent use. State does not survive
// a restart.
type Store struct {
	mu         sync.RWMutex
	byOriginal map[MessageID]*MessageMapping
	byProxied  map[MessageID]*MessageMapping
	latest     map[ChannelID]*MessageMapping

	lockMu   sync.Mutex
	keyLocks map[MessageID]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		byOriginal: make(map[MessageID]*MessageMapping),
		byProxied:  make(map[MessageID]*MessageMapping),
		latest:     make(map[ChannelID]*MessageMapping),
		keyLocks:   make(map[MessageID]*keyLock),
	}
}

// LockKey serializes work on one message ID and returns the unlock func.
// Locks are per-key: pipelines for different messages run in parallel, two
// events about the same message run in order. The lock entry is dropped
// once the last holder unlocks.
func (s *Store) LockKey(id MessageID) func() {
	s.lockMu.Lock()
	kl := s.keyLocks[id]
	if kl == nil {
		kl = &keyLock{}
		s.keyLocks[id] = kl
	}
	kl.refs++
	s.lockMu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		s.lockMu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(s.keyLocks, id)
		}
		s.lockMu.Unlock()
	}
}

// Insert records a mapping, replacing any previous mapping with the same
// original or proxied ID. A displaced mapping is dropped from both indexes
// so neither side of it can resolve afterwards.
func (s *Store) Insert(m MessageMapping) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byOriginal[m.OriginalID]; ok {
		s.removeLocked(old)
	}
	if old, ok := s.byProxied[m.ProxiedID]; ok {
		s.removeLocked(old)
	}
	stored := &m
	s.byOriginal[m.OriginalID] = stored
	s.byProxied[m.ProxiedID] = stored
	if cur, ok := s.latest[m.ChannelID]; !ok || !m.CreatedAt.Before(cur.CreatedAt) {
		s.latest[m.ChannelID] = stored
	}
}

// Remove deletes the mapping containing id on either side. It reports
// whether a mapping was removed.
func (s *Store) Remove(id MessageID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byOriginal[id]
	if !ok {
		m, ok = s.byProxied[id]
	}
	if !ok {
		return false
	}
	s.removeLocked(m)
	return true
}

// removeLocked drops m from both indexes and recomputes the latest entry
// for its channel. The caller holds s.mu.
func (s *Store) removeLocked(m *MessageMapping) {
	delete(s.byOriginal, m.OriginalID)
	delete(s.byProxied, m.ProxiedID)
	if s.latest[m.ChannelID] == m {
		delete(s.latest, m.ChannelID)
		for _, other := range s.byOriginal {
			if other.ChannelID != m.ChannelID {
				continue
			}
			if cur, ok := s.latest[m.ChannelID]; !ok || other.CreatedAt.After(cur.CreatedAt) {
				s.latest[m.ChannelID] = other
			}
		}
	}
}

// LookupByOriginal returns the mapping whose original side is id.
func (s *Store) LookupByOriginal(id MessageID) (MessageMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.byOriginal[id]; ok {
		return *m, true
	}
	return MessageMapping{}, false
}

// LookupByProxied returns the mapping whose proxied side is id.
func (s *Store) LookupByProxied(id MessageID) (MessageMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.byProxied[id]; ok {
		return *m, true
	}
	return MessageMapping{}, false
}

// Lookup returns the mapping containing id on either side.
func (s *Store) Lookup(id MessageID) (MessageMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.byOriginal[id]; ok {
		return *m, true
	}
	if m, ok := s.byProxied[id]; ok {
		return *m, true
	}
	return MessageMapping{}, false
}

// LatestInChannel returns the newest live mapping in a channel.
func (s *Store) LatestInChannel(ch ChannelID) (MessageMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.latest[ch]; ok {
		return *m, true
	}
	return MessageMapping{}, false
}

// UpdateContent records the proxied message's new content after an edit.
// It reports whether the mapping was found.
func (s *Store) UpdateContent(proxiedID MessageID, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byProxied[proxiedID]
	if !ok {
		return false
	}
	m.LastEditedContent = content
	return true
}

// Len returns the number of live mappings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byOriginal)
}
