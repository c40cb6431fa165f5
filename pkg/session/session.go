// Package session implements coview's coordination core: presence
// heartbeats against the shared rendezvous document, presenter election,
// offer/answer signaling through the document, and the broadcast loops
// that stream camera and selection state over established data channels.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomaslejdung/coview/pkg/presence"
	"github.com/tomaslejdung/coview/pkg/rtc"
	"github.com/tomaslejdung/coview/pkg/viewer"
)

// Config holds the session cadence. Zero values fall back to the
// defaults below; tests shrink them.
type Config struct {
	SessionCode string
	DisplayName string

	HeartbeatPeriod   time.Duration // presence refresh + document poll
	CameraTick        time.Duration // camera sampling period
	SelectionTick     time.Duration // selection sampling period
	KeepAliveInterval time.Duration // unconditional resend period
	PingInterval      time.Duration // follower channel keep-alive
	SetupDeadline     time.Duration // stalled signaling pair retry
}

func (c Config) withDefaults() Config {
	if c.HeartbeatPeriod == 0 {
		c.HeartbeatPeriod = 4 * time.Second
	}
	if c.CameraTick == 0 {
		c.CameraTick = 16 * time.Millisecond
	}
	if c.SelectionTick == 0 {
		c.SelectionTick = 100 * time.Millisecond
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = 4 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 5 * time.Second
	}
	if c.SetupDeadline == 0 {
		c.SetupDeadline = 30 * time.Second
	}
	if c.DisplayName == "" {
		c.DisplayName = "anonymous"
	}
	return c
}

// followerState is the follower side's transient connection state. The
// leader it is connected to is tracked here, separate from the document,
// so a leader field rewrite that adds no new offer does not reset an
// active connection.
type followerState struct {
	conn         rtc.Conn
	channel      rtc.Channel
	leaderID     string
	appliedOffer string
	answering    bool
	pingPhase    *phase
}

// Session owns all per-session state: identity, the document view, the
// signaling pairs and the broadcast phase. It replaces what the earlier
// prototype kept in ambient globals; create one per joined session and
// Close it on leave.
type Session struct {
	cfg      Config
	id       string
	presence *presence.Client
	dialer   rtc.Dialer
	viewer   viewer.Viewer
	router   *Router

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu       sync.Mutex
	name     string
	view     *presence.Document
	leaderID string
	isLeader bool
	offers   []presence.SignalingEnvelope
	answers  []presence.SignalingEnvelope
	pairs    map[string]*pair
	// staleAnswers maps peer id to an answer value that belongs to a
	// withdrawn offer and must not finalize the peer's current pair.
	staleAnswers map[string]string
	follower     followerState

	broadcastPhase *phase
	camCounter     SendCounter
	selCounter     SendCounter
}

// New creates a session for the given rendezvous document client. The
// client id is generated once per session and never reused.
func New(cfg Config, pc *presence.Client, dialer rtc.Dialer, v viewer.Viewer) *Session {
	cfg = cfg.withDefaults()
	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &Session{
		cfg:          cfg,
		id:           uuid.NewString(),
		presence:     pc,
		dialer:       dialer,
		viewer:       v,
		router:       NewRouter(v),
		rootCtx:      rootCtx,
		rootCancel:   rootCancel,
		name:         cfg.DisplayName,
		pairs:        make(map[string]*pair),
		staleAnswers: make(map[string]string),
	}
}

// ID returns the session-scoped client identifier.
func (s *Session) ID() string {
	return s.id
}

// SetDisplayName updates the label published with the next heartbeat.
func (s *Session) SetDisplayName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		s.name = name
	}
}

// Run drives the heartbeat/poll loop until ctx is cancelled or the
// session is closed. It ticks once immediately so the session becomes
// visible without waiting a full period.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HeartbeatPeriod)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.rootCtx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Present claims leadership and starts the broadcast phase. The claim is
// written immediately; offers to the current peers follow on the next
// ticks as the signaling exchange reconciles.
func (s *Session) Present(ctx context.Context) error {
	_, err := s.presence.Update(ctx, func(doc *presence.Document) {
		doc.LeaderClientID = s.id
		s.mergeSelf(doc, time.Now())
	})
	if err != nil {
		return fmt.Errorf("claiming leadership: %w", err)
	}

	s.mu.Lock()
	s.isLeader = true
	s.leaderID = s.id
	s.mu.Unlock()

	s.startBroadcast()
	log.Printf("Session %s: presenting as %s", s.cfg.SessionCode, s.id)
	return nil
}

// StopPresenting releases leadership and stops the broadcast phase. The
// leader field is only cleared if this client still holds it.
func (s *Session) StopPresenting(ctx context.Context) error {
	s.stopBroadcast()
	s.closeAllPairs()

	s.mu.Lock()
	s.isLeader = false
	s.mu.Unlock()

	_, err := s.presence.Update(ctx, func(doc *presence.Document) {
		if doc.LeaderClientID == s.id {
			doc.LeaderClientID = ""
		}
		s.mergeSelf(doc, time.Now())
	})
	if err != nil {
		return fmt.Errorf("releasing leadership: %w", err)
	}
	log.Printf("Session %s: stopped presenting", s.cfg.SessionCode)
	return nil
}

// Close tears down the session: broadcast phase, all peer connections
// and the background loops.
func (s *Session) Close() error {
	s.rootCancel()
	s.stopBroadcast()
	s.closeAllPairs()
	s.teardownFollower()
	return nil
}

// mergeSelf writes this client's record into doc with a fresh heartbeat
// stamp, then compacts: stale peers drop out and envelopes addressed to
// departed clients are evicted. Called inside presence.Update mutators,
// which may invoke it more than once on CAS retry.
func (s *Session) mergeSelf(doc *presence.Document, now time.Time) {
	s.mu.Lock()
	rec := presence.ClientRecord{
		ID:       s.id,
		LastSeen: now.UnixMilli(),
		Name:     s.name,
		Offers:   append([]presence.SignalingEnvelope(nil), s.offers...),
		Answers:  append([]presence.SignalingEnvelope(nil), s.answers...),
	}
	s.mu.Unlock()

	doc.MergeSelf(rec)
	*doc = *doc.Compact(now, s.id)
}
