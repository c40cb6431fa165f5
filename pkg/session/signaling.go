package session

import (
	"context"
	"log"
	"time"

	"github.com/tomaslejdung/coview/pkg/presence"
	"github.com/tomaslejdung/coview/pkg/rtc"
)

// broadcastChannelLabel names the data channel the presenter opens to
// each follower.
const broadcastChannelLabel = "broadcast"

// PairState tracks one (leader, follower) signaling pair.
type PairState int

const (
	PairNone PairState = iota
	PairOfferCreated
	PairOfferPublished
	PairAnswerReceived
	PairConnected
)

func (s PairState) String() string {
	switch s {
	case PairOfferCreated:
		return "offer-created"
	case PairOfferPublished:
		return "offer-published"
	case PairAnswerReceived:
		return "answer-received"
	case PairConnected:
		return "connected"
	default:
		return "no-connection"
	}
}

// pair is the leader-side state for one follower. A pair in the map also
// serves as the "currently being set up" marker, so a peer is never
// offered twice while its offer publication is still in flight.
type pair struct {
	peerID    string
	conn      rtc.Conn
	channel   rtc.Channel
	state     PairState
	createdAt time.Time
	finalized bool
}

// reconcileLeader drives the leader side of the signaling exchange on
// every document read: expire stalled pairs, finalize pairs whose answer
// has appeared, and open offers to peers that have none yet.
func (s *Session) reconcileLeader(ctx context.Context, view *presence.Document, now time.Time) {
	type answerApply struct {
		p   *pair
		sdp string
	}
	var toSetup []string
	var toApply []answerApply

	s.mu.Lock()
	for peerID, p := range s.pairs {
		peerRec := view.Client(peerID)
		if peerRec == nil {
			// Departed peer: drop the pair and its offer, whatever state
			// it reached, or the heartbeat keeps rewriting the document
			// to chase an envelope compaction already evicted.
			log.Printf("Signaling: peer %s departed, dropping pair in %s", peerID, p.state)
			s.dropPairLocked(peerID)
			delete(s.staleAnswers, peerID)
			continue
		}
		if p.state == PairConnected || p.finalized {
			continue
		}
		if now.Sub(p.createdAt) > s.cfg.SetupDeadline {
			// Stalled pair: tear it down so the peer becomes eligible
			// for a fresh offer below. An answer to the abandoned offer
			// may still surface later; remember it so the replacement
			// pair never finalizes against the wrong description.
			log.Printf("Signaling: pair %s stalled in %s, retrying from scratch", peerID, p.state)
			if env, ok := peerRec.AnswerFor(s.id); ok {
				s.staleAnswers[peerID] = env.Value
			}
			s.dropPairLocked(peerID)
			continue
		}
		if p.state != PairOfferPublished {
			continue
		}
		if env, ok := peerRec.AnswerFor(s.id); ok {
			if env.Value == s.staleAnswers[peerID] {
				// Answer to a withdrawn offer, not ours.
				continue
			}
			// Finalize at most once, no matter how many reads still see
			// the same answer envelope.
			p.state = PairAnswerReceived
			p.finalized = true
			toApply = append(toApply, answerApply{p: p, sdp: env.Value})
		}
	}

	for _, rec := range view.Clients {
		if rec.ID == s.id {
			continue
		}
		if _, exists := s.pairs[rec.ID]; exists {
			continue
		}
		s.pairs[rec.ID] = &pair{
			peerID:    rec.ID,
			state:     PairOfferCreated,
			createdAt: now,
		}
		toSetup = append(toSetup, rec.ID)
	}
	s.mu.Unlock()

	for _, apply := range toApply {
		if err := apply.p.conn.AcceptAnswer(apply.sdp); err != nil {
			// Drop the pair entirely rather than parking it in a failed
			// state nothing reclaims: the next reconcile pass offers the
			// peer a fresh connection. The bad answer is remembered so
			// the fresh pair skips it.
			log.Printf("Signaling: applying answer from %s failed: %v", apply.p.peerID, err)
			s.mu.Lock()
			s.staleAnswers[apply.p.peerID] = apply.sdp
			s.dropPairLocked(apply.p.peerID)
			s.mu.Unlock()
			continue
		}
		s.mu.Lock()
		apply.p.state = PairConnected
		delete(s.staleAnswers, apply.p.peerID)
		s.mu.Unlock()
		log.Printf("Signaling: pair %s connected", apply.p.peerID)
	}

	for _, peerID := range toSetup {
		go s.setupPair(peerID)
	}
}

// setupPair opens a connection and broadcast channel to one peer,
// generates a gathered offer, and publishes it together with the
// leadership claim. Errors abort only this pair.
func (s *Session) setupPair(peerID string) {
	ctx, cancel := context.WithTimeout(s.rootCtx, s.cfg.SetupDeadline)
	defer cancel()

	fail := func(err error) {
		log.Printf("Signaling: setup for %s failed: %v", peerID, err)
		s.mu.Lock()
		s.dropPairLocked(peerID)
		s.mu.Unlock()
	}

	conn, err := s.dialer.NewConn()
	if err != nil {
		fail(err)
		return
	}

	channel, err := conn.CreateDataChannel(broadcastChannelLabel)
	if err != nil {
		conn.Close()
		fail(err)
		return
	}
	// Followers only ever send keep-alive pings back on this channel.
	channel.OnMessage(func(data []byte) {
		if len(data) > 0 && data[0] != ControlMarker {
			log.Printf("Signaling: unexpected payload from %s, ignored", peerID)
		}
	})

	offerSDP, err := conn.CreateOffer(ctx)
	if err != nil {
		conn.Close()
		fail(err)
		return
	}

	s.mu.Lock()
	p, ok := s.pairs[peerID]
	if !ok {
		// Dropped while we were gathering (deposed or deadline hit).
		s.mu.Unlock()
		conn.Close()
		return
	}
	p.conn = conn
	p.channel = channel
	s.offers = putEnvelope(s.offers, presence.SignalingEnvelope{
		Value:          offerSDP,
		TargetClientID: peerID,
	})
	s.mu.Unlock()

	// Publish the offer and the leadership claim in one write.
	_, err = s.presence.Update(ctx, func(doc *presence.Document) {
		doc.LeaderClientID = s.id
		s.mergeSelf(doc, time.Now())
	})
	if err != nil {
		conn.Close()
		fail(err)
		return
	}

	s.mu.Lock()
	if p, ok := s.pairs[peerID]; ok {
		p.state = PairOfferPublished
	}
	s.mu.Unlock()
	log.Printf("Signaling: offer published for %s", peerID)
}

// dropPairLocked removes a pair and its outstanding offer. Caller holds mu.
func (s *Session) dropPairLocked(peerID string) {
	if p, ok := s.pairs[peerID]; ok {
		if p.conn != nil {
			p.conn.Close()
		}
		delete(s.pairs, peerID)
	}
	s.offers = removeEnvelope(s.offers, peerID)
}

// closeAllPairs tears down every leader-side connection and clears the
// published offers.
func (s *Session) closeAllPairs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for peerID := range s.pairs {
		s.dropPairLocked(peerID)
	}
	s.staleAnswers = make(map[string]string)
}

// reconcileFollower drives the follower side: locate the leader's record,
// find the offer addressed to us, and answer it unless this exact offer
// is already applied.
func (s *Session) reconcileFollower(ctx context.Context, view *presence.Document) {
	leaderID := view.LeaderClientID

	s.mu.Lock()
	if leaderID == "" {
		if s.follower.conn != nil {
			log.Printf("Signaling: presenter left, dropping connection to %s", s.follower.leaderID)
			s.teardownFollowerLocked()
		}
		s.mu.Unlock()
		return
	}

	leaderRec := view.Client(leaderID)
	if leaderRec == nil {
		s.mu.Unlock()
		return
	}
	offer, ok := leaderRec.OfferFor(s.id)
	if !ok {
		s.mu.Unlock()
		return
	}
	if s.follower.answering {
		s.mu.Unlock()
		return
	}
	if s.follower.leaderID == leaderID && s.follower.appliedOffer == offer.Value {
		// Same offer, already finalized. A repeated sighting must not
		// reset the live connection.
		s.mu.Unlock()
		return
	}
	s.follower.answering = true
	s.mu.Unlock()

	go s.answerOffer(leaderID, offer)
}

// answerOffer connects to the leader: apply its offer, publish a gathered
// answer keyed to the leader's id, and wire inbound messages into the
// router.
func (s *Session) answerOffer(leaderID string, offer presence.SignalingEnvelope) {
	ctx, cancel := context.WithTimeout(s.rootCtx, s.cfg.SetupDeadline)
	defer cancel()

	done := func() {
		s.mu.Lock()
		s.follower.answering = false
		s.mu.Unlock()
	}

	// A fresh offer supersedes whatever connection we had, whether from
	// this leader or a previous one.
	s.mu.Lock()
	s.teardownFollowerLocked()
	s.mu.Unlock()

	conn, err := s.dialer.NewConn()
	if err != nil {
		log.Printf("Signaling: answering %s failed: %v", leaderID, err)
		done()
		return
	}

	conn.OnDataChannel(func(ch rtc.Channel) {
		ch.OnMessage(func(data []byte) {
			s.router.HandleRaw(s.rootCtx, data)
		})
		s.mu.Lock()
		s.follower.channel = ch
		s.mu.Unlock()
		s.startFollowerPing()
	})

	answerSDP, err := conn.AcceptOffer(ctx, offer.Value)
	if err != nil {
		log.Printf("Signaling: answering %s failed: %v", leaderID, err)
		conn.Close()
		done()
		return
	}

	s.mu.Lock()
	s.answers = putEnvelope(s.answers, presence.SignalingEnvelope{
		Value:          answerSDP,
		TargetClientID: leaderID,
	})
	s.follower.conn = conn
	s.follower.leaderID = leaderID
	s.follower.appliedOffer = offer.Value
	s.mu.Unlock()

	// Publish the answer merged with a refreshed heartbeat.
	if _, err := s.presence.Update(ctx, func(doc *presence.Document) {
		s.mergeSelf(doc, time.Now())
	}); err != nil {
		log.Printf("Signaling: publishing answer to %s failed: %v", leaderID, err)
		done()
		return
	}

	done()
	log.Printf("Signaling: answered offer from %s", leaderID)
}

// teardownFollower closes the follower-side connection.
func (s *Session) teardownFollower() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownFollowerLocked()
}

// teardownFollowerLocked resets follower state. Caller holds mu.
func (s *Session) teardownFollowerLocked() {
	s.follower.pingPhase.stop()
	if s.follower.conn != nil {
		s.follower.conn.Close()
	}
	prevLeader := s.follower.leaderID
	s.follower = followerState{}
	if prevLeader != "" {
		s.answers = removeEnvelope(s.answers, prevLeader)
	}
}

// startFollowerPing sends the control-marker keep-alive on the follower
// channel so an idle connection keeps its NAT binding.
func (s *Session) startFollowerPing() {
	s.mu.Lock()
	s.follower.pingPhase.stop()
	p := newPhase(s.rootCtx)
	s.follower.pingPhase = p
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				ch := s.follower.channel
				s.mu.Unlock()
				if ch == nil || !ch.IsOpen() {
					continue
				}
				if err := ch.Send(keepAlivePayload); err != nil {
					log.Printf("Signaling: keep-alive send failed: %v", err)
				}
			}
		}
	}()
}

// putEnvelope inserts an envelope, replacing any prior one addressed to
// the same target.
func putEnvelope(envs []presence.SignalingEnvelope, env presence.SignalingEnvelope) []presence.SignalingEnvelope {
	out := removeEnvelope(envs, env.TargetClientID)
	return append(out, env)
}

// removeEnvelope drops all envelopes addressed to targetID.
func removeEnvelope(envs []presence.SignalingEnvelope, targetID string) []presence.SignalingEnvelope {
	out := envs[:0]
	for _, e := range envs {
		if e.TargetClientID != targetID {
			out = append(out, e)
		}
	}
	return out
}
