package store

import (
	"context"
	"strconv"
	"sync"
)

// MemoryStore is an in-process Store. It backs the dev rendezvous server
// and the test suites.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	watches map[string][]chan Update
}

type memoryEntry struct {
	text string
	seq  uint64
}

// Update describes a committed write, delivered to watchers.
type Update struct {
	Key  string `json:"key"`
	Rev  string `json:"rev"`
	Text string `json:"text"`
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		watches: make(map[string][]chan Update),
	}
}

// Get returns the payload and revision stored under key.
func (m *MemoryStore) Get(ctx context.Context, key string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return "", "", ErrNotFound
	}
	return entry.text, strconv.FormatUint(entry.seq, 10), nil
}

// Put stores text under key when prevRev matches the current revision.
func (m *MemoryStore) Put(ctx context.Context, key, text, prevRev string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[key]
	switch {
	case !exists && prevRev != "":
		return "", ErrRevisionMismatch
	case exists && prevRev != strconv.FormatUint(entry.seq, 10):
		return "", ErrRevisionMismatch
	}

	if !exists {
		entry = &memoryEntry{}
		m.entries[key] = entry
	}
	entry.text = text
	entry.seq++

	rev := strconv.FormatUint(entry.seq, 10)
	m.notify(Update{Key: key, Rev: rev, Text: text})
	return rev, nil
}

// Watch returns a channel that receives every committed write to key.
// Slow watchers are dropped rather than blocking writers.
func (m *MemoryStore) Watch(key string) <-chan Update {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Update, 16)
	m.watches[key] = append(m.watches[key], ch)
	return ch
}

// Unwatch removes a channel previously returned by Watch.
func (m *MemoryStore) Unwatch(key string, ch <-chan Update) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.watches[key]
	for i, sub := range subs {
		if sub == ch {
			m.watches[key] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// notify delivers an update to all watchers of the key. Caller holds mu.
func (m *MemoryStore) notify(update Update) {
	for _, sub := range m.watches[update.Key] {
		select {
		case sub <- update:
		default:
			// Watcher buffer full, skip
		}
	}
}
