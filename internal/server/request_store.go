package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/straja-ai/tonegate/internal/activation"
)

const (
	statusPending   = "pending"
	statusCompleted = "completed"

	defaultRequestTTL  = 10 * time.Minute
	defaultMaxRequests = 10000
)

// requestStore remembers the decision of recent requests so a caller can look
// up what happened to a request id. Entries are bound to a hash of the
// credential that made the request and expire after ttl.
type requestStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	max  int
	data map[string]requestEntry
}

type requestEntry struct {
	owner     [sha256.Size]byte
	hasOwner  bool
	status    string
	event     *activation.Event
	expiresAt time.Time
}

func newRequestStore(ttl time.Duration, max int) *requestStore {
	if ttl <= 0 {
		ttl = defaultRequestTTL
	}
	if max <= 0 {
		max = defaultMaxRequests
	}
	return &requestStore{
		ttl:  ttl,
		max:  max,
		data: make(map[string]requestEntry),
	}
}

// Start records a pending request owned by credential.
func (s *requestStore) Start(requestID, credential string) {
	if s == nil || requestID == "" || credential == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.roomLocked(requestID) {
		return
	}
	s.data[requestID] = requestEntry{
		owner:     sha256.Sum256([]byte(credential)),
		hasOwner:  true,
		status:    statusPending,
		expiresAt: time.Now().Add(s.ttl),
	}
}

// Complete attaches the decision event. Requests that were never started keep
// no owner and cannot be looked up.
func (s *requestStore) Complete(requestID string, ev *activation.Event) {
	if s == nil || requestID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.data[requestID]
	if !ok {
		return
	}
	existing.status = statusCompleted
	existing.event = ev
	existing.expiresAt = time.Now().Add(s.ttl)
	s.data[requestID] = existing
}

// Get returns the entry for requestID if credential owns it.
func (s *requestStore) Get(requestID, credential string) (requestEntry, bool) {
	if s == nil || requestID == "" || credential == "" {
		return requestEntry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.data[requestID]
	if !ok {
		return requestEntry{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.data, requestID)
		return requestEntry{}, false
	}
	want := sha256.Sum256([]byte(credential))
	if !entry.hasOwner || subtle.ConstantTimeCompare(entry.owner[:], want[:]) != 1 {
		return requestEntry{}, false
	}
	return entry, true
}

// roomLocked reports whether requestID can be stored, evicting expired
// entries when the store is full.
func (s *requestStore) roomLocked(requestID string) bool {
	if _, ok := s.data[requestID]; ok || len(s.data) < s.max {
		return true
	}
	now := time.Now()
	for k, v := range s.data {
		if now.After(v.expiresAt) {
			delete(s.data, k)
		}
	}
	return len(s.data) < s.max
}
