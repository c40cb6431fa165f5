package presence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/tomaslejdung/coview/pkg/store"
)

// IOState describes the client's last store interaction, surfaced in the
// UI so transient failures are visible without interrupting anything.
type IOState int

const (
	StateIdle IOState = iota
	StateLoading
	StateWriting
	StateFailed
)

func (s IOState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateWriting:
		return "writing"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// maxUpdateAttempts bounds the read-merge-write retry loop when
// concurrent writers keep invalidating our revision.
const maxUpdateAttempts = 5

// Client wraps the blob store with document semantics: schema gating on
// read, revision-checked writes, and a capacity-1 gate so at most one
// read is in flight at a time.
type Client struct {
	store store.Store
	key   string
	gate  chan struct{}

	mu         sync.Mutex
	cached     *Document
	rev        string
	readState  IOState
	writeState IOState
}

// NewClient creates a document client for the blob under key.
func NewClient(st store.Store, key string) *Client {
	return &Client{
		store: st,
		key:   key,
		gate:  make(chan struct{}, 1),
	}
}

// Key returns the blob key this client polls.
func (c *Client) Key() string {
	return c.key
}

// Read fetches the latest document. An absent blob or one at a foreign
// schema version yields a blank document. Transport and decode failures
// fail soft: the error is returned for logging but the cached document
// is left unchanged and is what Cached() keeps serving.
func (c *Client) Read(ctx context.Context) (*Document, error) {
	doc, _, err := c.read(ctx)
	return doc, err
}

// read is Read plus the revision the document was fetched under. Update
// threads that exact revision into its conditional write; using the
// client-level cached revision instead would let a concurrent Read
// advance it and mask a write conflict.
func (c *Client) read(ctx context.Context) (*Document, string, error) {
	// Serialize reads: a concurrent caller waits for the in-flight fetch
	// instead of issuing an overlapping one.
	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		return c.Cached(), "", ctx.Err()
	}
	defer func() { <-c.gate }()

	c.setReadState(StateLoading)

	text, rev, err := c.store.Get(ctx, c.key)
	if errors.Is(err, store.ErrNotFound) {
		doc := NewDocument()
		c.commitRead(doc, "")
		return doc.Clone(), "", nil
	}
	if err != nil {
		c.setReadState(StateFailed)
		return c.Cached(), "", fmt.Errorf("reading document: %w", err)
	}

	doc, err := DecodeDocument(text)
	if err != nil {
		c.setReadState(StateFailed)
		return c.Cached(), "", fmt.Errorf("reading document: %w", err)
	}
	if doc == nil {
		// Foreign schema version: no data, but keep the revision so a
		// subsequent write still replaces the blob atomically.
		doc = NewDocument()
	}

	c.commitRead(doc, rev)
	return doc.Clone(), rev, nil
}

// Update runs a read-merge-write cycle: fetch the latest document, apply
// mutate to it, and write it back under the revision that was read. When
// another writer commits in between, the cycle re-reads and reapplies
// mutate rather than dropping either side's change. Write failures
// propagate to the caller so multi-step sequences can abort.
func (c *Client) Update(ctx context.Context, mutate func(doc *Document)) (*Document, error) {
	var lastErr error

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		doc, rev, err := c.read(ctx)
		if err != nil {
			return nil, err
		}

		mutate(doc)

		text, err := doc.Encode()
		if err != nil {
			return nil, err
		}

		c.setWriteState(StateWriting)

		newRev, err := c.store.Put(ctx, c.key, text, rev)
		if errors.Is(err, store.ErrRevisionMismatch) {
			log.Printf("Presence: write conflict on %s (attempt %d), retrying", c.key, attempt+1)
			lastErr = err
			continue
		}
		if err != nil {
			c.setWriteState(StateFailed)
			return nil, fmt.Errorf("writing document: %w", err)
		}

		c.mu.Lock()
		c.cached = doc.Clone()
		c.rev = newRev
		c.writeState = StateIdle
		c.mu.Unlock()
		return doc, nil
	}

	c.setWriteState(StateFailed)
	return nil, fmt.Errorf("writing document: gave up after %d conflicts: %w", maxUpdateAttempts, lastErr)
}

// Cached returns a copy of the last successfully read document, or nil
// if nothing has been read yet.
func (c *Client) Cached() *Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cached.Clone()
}

// States returns the read and write states for status display.
func (c *Client) States() (read, write IOState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readState, c.writeState
}

func (c *Client) commitRead(doc *Document, rev string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = doc
	c.rev = rev
	c.readState = StateIdle
}

func (c *Client) setReadState(s IOState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readState = s
}

func (c *Client) setWriteState(s IOState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeState = s
}
