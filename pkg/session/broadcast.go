package session

import (
	"context"
	"log"
	"time"

	"github.com/tomaslejdung/coview/pkg/rtc"
	"github.com/tomaslejdung/coview/pkg/viewer"
)

// startBroadcast begins a new broadcast phase: any previous phase is
// cancelled first, then the camera and selection sampling loops start
// under the fresh phase context.
func (s *Session) startBroadcast() {
	s.mu.Lock()
	if s.broadcastPhase != nil {
		s.broadcastPhase.stop()
	}
	p := newPhase(s.rootCtx)
	s.broadcastPhase = p
	s.mu.Unlock()

	s.camCounter.Reset()
	s.selCounter.Reset()

	go s.cameraLoop(p.ctx)
	go s.selectionLoop(p.ctx)
}

// stopBroadcast cancels the current broadcast phase, if any. The loops
// observe the cancellation on their next tick.
func (s *Session) stopBroadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broadcastPhase != nil {
		s.broadcastPhase.stop()
		s.broadcastPhase = nil
	}
}

// cameraLoop samples the viewer camera and broadcasts the pose whenever
// it changed, or unconditionally once per keep-alive interval.
func (s *Session) cameraLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CameraTick)
	defer ticker.Stop()

	var lastSent *viewer.Pose
	var lastSentAt time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pose, err := s.viewer.CurrentCamera(ctx)
			if err != nil {
				log.Printf("Broadcast: camera query failed: %v", err)
				continue
			}

			changed := lastSent == nil || *lastSent != pose
			if !changed && time.Since(lastSentAt) < s.cfg.KeepAliveInterval {
				continue
			}

			data, err := EncodeMessage(Message{Type: MessageCameraPosition, Camera: &pose})
			if err != nil {
				log.Printf("Broadcast: %v", err)
				continue
			}
			s.sendToPeers(data, &s.camCounter)
			sent := pose
			lastSent = &sent
			lastSentAt = time.Now()
		}
	}
}

// selectionLoop does the same for the current selection path list.
func (s *Session) selectionLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SelectionTick)
	defer ticker.Stop()

	var lastSent []viewer.PathID
	var sentOnce bool
	var lastSentAt time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			paths, err := s.viewer.CurrentSelection(ctx)
			if err != nil {
				log.Printf("Broadcast: selection query failed: %v", err)
				continue
			}

			changed := !sentOnce || !pathsEqual(lastSent, paths)
			if !changed && time.Since(lastSentAt) < s.cfg.KeepAliveInterval {
				continue
			}

			data, err := EncodeMessage(Message{Type: MessageSelectionPaths, Paths: paths})
			if err != nil {
				log.Printf("Broadcast: %v", err)
				continue
			}
			s.sendToPeers(data, &s.selCounter)
			lastSent = append([]viewer.PathID(nil), paths...)
			sentOnce = true
			lastSentAt = time.Now()
		}
	}
}

// sendToPeers pushes a payload over every connected pair's channel,
// best-effort: a channel that is not open, or a send that fails, is
// skipped for that peer without aborting the loop.
func (s *Session) sendToPeers(data []byte, counter *SendCounter) {
	type sendTarget struct {
		peerID  string
		channel rtc.Channel
	}

	s.mu.Lock()
	targets := make([]sendTarget, 0, len(s.pairs))
	for peerID, p := range s.pairs {
		if p.state == PairConnected && p.channel != nil {
			targets = append(targets, sendTarget{peerID: peerID, channel: p.channel})
		}
	}
	s.mu.Unlock()

	for _, target := range targets {
		if !target.channel.IsOpen() {
			continue
		}
		if err := target.channel.Send(data); err != nil {
			log.Printf("Broadcast: send to %s failed: %v", target.peerID, err)
			continue
		}
		counter.Add(len(data))
	}
}

func pathsEqual(a, b []viewer.PathID) bool {
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
