package server

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// requestStore keeps a short-lived record of recent requests so callers
// can poll /requests/{id}. Entries expire after the configured TTL.
type requestStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[string]requestEntry
}

type requestEntry struct {
	task       string
	status     string
	expert     string
	confidence float32
	expiresAt  time.Time
}

func newRequestStore(ttl time.Duration) *requestStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &requestStore{
		ttl:  ttl,
		data: make(map[string]requestEntry),
	}
}

func (s *requestStore) Start(requestID, task string) {
	if s == nil || requestID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	s.data[requestID] = requestEntry{
		task:      task,
		status:    "pending",
		expiresAt: time.Now().Add(s.ttl),
	}
}

func (s *requestStore) Complete(requestID, expertName string, confidence float32) {
	s.update(requestID, "completed", expertName, confidence)
}

func (s *requestStore) Fail(requestID, status string) {
	s.update(requestID, status, "", 0)
}

func (s *requestStore) update(requestID, status, expertName string, confidence float32) {
	if s == nil || requestID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	entry := requestEntry{
		status:     status,
		expert:     expertName,
		confidence: confidence,
		expiresAt:  time.Now().Add(s.ttl),
	}
	if existing, ok := s.data[requestID]; ok {
		entry.task = existing.task
	}
	s.data[requestID] = entry
}

func (s *requestStore) Get(requestID string) (requestEntry, bool) {
	if s == nil || requestID == "" {
		return requestEntry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	entry, ok := s.data[requestID]
	if !ok {
		return requestEntry{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.data, requestID)
		return requestEntry{}, false
	}
	return entry, true
}

func (s *requestStore) cleanupLocked() {
	now := time.Now()
	for k, v := range s.data {
		if now.After(v.expiresAt) {
			delete(s.data, k)
		}
	}
}

func newRequestID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return hex.EncodeToString(buf[:])
	}
	return hex.EncodeToString(buf[:])
}
