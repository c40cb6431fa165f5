package store

import (
	"context"
	"errors"
)

// Store is the rendezvous blob store that clients poll to find each other.
// Implementations expose revision tokens so that writers can detect a
// concurrent update instead of silently overwriting it: every Get returns
// the revision of the payload it read, and Put only succeeds when the
// store still holds that revision.
type Store interface {
	// Get returns the text payload stored under key and its revision
	// token. Returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (text string, rev string, err error)

	// Put stores text under key if the current revision matches prevRev
	// and returns the new revision. An empty prevRev asserts that the key
	// does not exist yet. Returns ErrRevisionMismatch when another writer
	// got there first; the caller is expected to re-read and retry.
	Put(ctx context.Context, key string, text string, prevRev string) (rev string, err error)
}

var (
	// ErrNotFound is returned by Get for a key that has never been written.
	ErrNotFound = errors.New("store: key not found")

	// ErrRevisionMismatch is returned by Put when the key was modified
	// since the revision the caller read.
	ErrRevisionMismatch = errors.New("store: revision mismatch")
)
