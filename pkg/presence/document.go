// Package presence implements the shared rendezvous document that coview
// clients use to discover each other, elect a presenter and exchange
// WebRTC session descriptions. The document lives in a blob store and is
// rewritten wholesale on every update; all coordination happens through
// read-modify-write cycles against it.
package presence

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// SchemaVersion is the compiled-in document version. Blobs written by a
// client with a different version are treated as absent, not migrated.
const SchemaVersion = 8

// FreshnessWindow is the maximum age of a client's lastSeen stamp before
// the client is considered departed and compacted away.
const FreshnessWindow = 20 * time.Second

// SignalingEnvelope carries one SDP offer or answer addressed to a
// specific peer. Envelopes accumulate inside a client's own record;
// readers filter by TargetClientID to find the one meant for them.
type SignalingEnvelope struct {
	Value          string `json:"value"`
	TargetClientID string `json:"targetClientId"`
}

// ClientRecord is one client's presence entry in the shared document.
type ClientRecord struct {
	ID       string              `json:"id"`
	LastSeen int64               `json:"lastSeen"` // unix milliseconds
	Name     string              `json:"name"`
	Offers   []SignalingEnvelope `json:"offers"`
	Answers  []SignalingEnvelope `json:"answers"`
}

// Fresh reports whether the record's heartbeat is within the freshness
// window at the given instant.
func (r *ClientRecord) Fresh(now time.Time) bool {
	return now.UnixMilli()-r.LastSeen <= FreshnessWindow.Milliseconds()
}

// OfferFor returns the first offer in this record addressed to targetID.
func (r *ClientRecord) OfferFor(targetID string) (SignalingEnvelope, bool) {
	for _, env := range r.Offers {
		if env.TargetClientID == targetID {
			return env, true
		}
	}
	return SignalingEnvelope{}, false
}

// AnswerFor returns the first answer in this record addressed to targetID.
func (r *ClientRecord) AnswerFor(targetID string) (SignalingEnvelope, bool) {
	for _, env := range r.Answers {
		if env.TargetClientID == targetID {
			return env, true
		}
	}
	return SignalingEnvelope{}, false
}

// Document is the entire content of the shared blob.
type Document struct {
	SchemaVersion  int            `json:"schemaVersion"`
	Clients        []ClientRecord `json:"clients"`
	LeaderClientID string         `json:"leaderClientId,omitempty"`
}

// NewDocument returns an empty document at the current schema version.
// Readers synthesize one of these when the blob is absent.
func NewDocument() *Document {
	return &Document{SchemaVersion: SchemaVersion}
}

// Client returns a pointer to the record with the given id, or nil.
func (d *Document) Client(id string) *ClientRecord {
	for i := range d.Clients {
		if d.Clients[i].ID == id {
			return &d.Clients[i]
		}
	}
	return nil
}

// MergeSelf replaces (or inserts) the caller's own record, keeping the
// client list sorted by id. The writer's record always wins over any
// prior entry with the same id.
func (d *Document) MergeSelf(rec ClientRecord) {
	kept := d.Clients[:0]
	for _, c := range d.Clients {
		if c.ID != rec.ID {
			kept = append(kept, c)
		}
	}
	d.Clients = append(kept, rec)
	sortClients(d.Clients)
}

// Compact returns the document as every reader should see it: clients
// sorted by id, duplicates collapsed (latest heartbeat wins), stale
// clients dropped, and signaling envelopes addressed to departed clients
// evicted. The record with id selfID survives regardless of age so that
// a client never compacts itself away between heartbeats.
func (d *Document) Compact(now time.Time, selfID string) *Document {
	byID := make(map[string]ClientRecord)
	for _, c := range d.Clients {
		if prev, ok := byID[c.ID]; ok && prev.LastSeen >= c.LastSeen {
			continue
		}
		byID[c.ID] = c
	}

	clients := make([]ClientRecord, 0, len(byID))
	for _, c := range byID {
		if c.ID == selfID || c.Fresh(now) {
			clients = append(clients, c)
		}
	}
	sortClients(clients)

	// Evict envelopes addressed to clients that are no longer present.
	present := make(map[string]bool, len(clients))
	for _, c := range clients {
		present[c.ID] = true
	}
	for i := range clients {
		clients[i].Offers = keepAddressed(clients[i].Offers, present)
		clients[i].Answers = keepAddressed(clients[i].Answers, present)
	}

	leader := d.LeaderClientID
	if leader != "" && !present[leader] {
		leader = ""
	}

	return &Document{
		SchemaVersion:  d.SchemaVersion,
		Clients:        clients,
		LeaderClientID: leader,
	}
}

func keepAddressed(envs []SignalingEnvelope, present map[string]bool) []SignalingEnvelope {
	if envs == nil {
		return nil
	}
	kept := make([]SignalingEnvelope, 0, len(envs))
	for _, env := range envs {
		if present[env.TargetClientID] {
			kept = append(kept, env)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func sortClients(clients []ClientRecord) {
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].ID < clients[j].ID
	})
}

// Clone returns a deep copy of the document. Safe on a nil receiver.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		SchemaVersion:  d.SchemaVersion,
		LeaderClientID: d.LeaderClientID,
	}
	if d.Clients != nil {
		out.Clients = make([]ClientRecord, len(d.Clients))
		for i, c := range d.Clients {
			rec := c
			rec.Offers = append([]SignalingEnvelope(nil), c.Offers...)
			rec.Answers = append([]SignalingEnvelope(nil), c.Answers...)
			out.Clients[i] = rec
		}
	}
	return out
}

// Encode serializes the document to its blob payload.
func (d *Document) Encode() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}
	return string(data), nil
}

// DecodeDocument parses a blob payload. A payload at a different schema
// version decodes to (nil, nil): it is absence of data, not an error.
func DecodeDocument(text string) (*Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	if doc.SchemaVersion != SchemaVersion {
		return nil, nil
	}
	return &doc, nil
}
