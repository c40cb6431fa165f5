package session

import (
	"context"
	"log"
	"time"

	"github.com/tomaslejdung/coview/pkg/presence"
)

// tick is one heartbeat cycle: poll the document, derive the role,
// reconcile signaling for that role, and refresh our own presence record
// if the stored copy is missing, stale or out of date. Every failure
// mode degrades to retrying on the next tick.
func (s *Session) tick(ctx context.Context) {
	doc, err := s.presence.Read(ctx)
	if err != nil {
		log.Printf("Heartbeat: document read failed: %v", err)
		if doc == nil {
			return
		}
		// Stale cached copy: still usable for role tracking.
	}

	now := time.Now()
	view := doc.Compact(now, s.id)

	s.mu.Lock()
	wasLeader := s.isLeader
	s.view = view
	s.leaderID = view.LeaderClientID
	s.isLeader = IsLeader(view.LeaderClientID, s.id)
	isLeader := s.isLeader
	s.mu.Unlock()

	if wasLeader && !isLeader {
		// Another client claimed the document out from under us. Stop
		// broadcasting and drop the now-orphaned connections.
		log.Printf("Heartbeat: leadership lost to %s", view.LeaderClientID)
		s.stopBroadcast()
		s.closeAllPairs()
	}

	if isLeader {
		s.reconcileLeader(ctx, view, now)
	} else {
		s.reconcileFollower(ctx, view)
	}

	if s.needsHeartbeatWrite(view, now) {
		if _, err := s.presence.Update(ctx, func(doc *presence.Document) {
			s.keepLeaderClaim(doc)
			s.mergeSelf(doc, time.Now())
		}); err != nil {
			log.Printf("Heartbeat: document write failed: %v", err)
		}
	}
}

// keepLeaderClaim re-asserts the leader field during a heartbeat write if
// this client believes it is the leader, so a heartbeat can never
// accidentally revert a claim it merged on top of.
func (s *Session) keepLeaderClaim(doc *presence.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isLeader {
		doc.LeaderClientID = s.id
	}
}

// needsHeartbeatWrite reports whether the stored view of our own record
// differs from what we know: record missing, heartbeat stamp aged past
// the period, display name changed, or envelopes out of date.
func (s *Session) needsHeartbeatWrite(view *presence.Document, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := view.Client(s.id)
	if rec == nil {
		return true
	}
	if now.UnixMilli()-rec.LastSeen >= s.cfg.HeartbeatPeriod.Milliseconds() {
		return true
	}
	if rec.Name != s.name {
		return true
	}
	return !envelopesEqual(rec.Offers, s.offers) || !envelopesEqual(rec.Answers, s.answers)
}

func envelopesEqual(a, b []presence.SignalingEnvelope) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
