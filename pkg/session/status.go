package session

import (
	"time"

	"github.com/tomaslejdung/coview/pkg/presence"
)

// PeerStatus describes one other client in the session.
type PeerStatus struct {
	ID       string
	Name     string
	LastSeen time.Time
	State    string // signaling pair state, leader side only
}

// Status is a point-in-time snapshot of the session for display.
type Status struct {
	SessionCode       string
	ClientID          string
	DisplayName       string
	IsLeader          bool
	LeaderID          string
	ConnectedLeaderID string
	Peers             []PeerStatus
	StoreRead         presence.IOState
	StoreWrite        presence.IOState
	CameraMsgs        uint64
	CameraRate        float64
	SelectionMsgs     uint64
	SelectionRate     float64
}

// Status returns a snapshot of the session state. Safe to call from any
// goroutine; the TUI polls it.
func (s *Session) Status() Status {
	readState, writeState := s.presence.States()
	camMsgs, _, camRate := s.camCounter.Snapshot()
	selMsgs, _, selRate := s.selCounter.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		SessionCode:       s.cfg.SessionCode,
		ClientID:          s.id,
		DisplayName:       s.name,
		IsLeader:          s.isLeader,
		LeaderID:          s.leaderID,
		ConnectedLeaderID: s.follower.leaderID,
		StoreRead:         readState,
		StoreWrite:        writeState,
		CameraMsgs:        camMsgs,
		CameraRate:        camRate,
		SelectionMsgs:     selMsgs,
		SelectionRate:     selRate,
	}

	if s.view != nil {
		for _, rec := range s.view.Clients {
			if rec.ID == s.id {
				continue
			}
			peer := PeerStatus{
				ID:       rec.ID,
				Name:     rec.Name,
				LastSeen: time.UnixMilli(rec.LastSeen),
			}
			if p, ok := s.pairs[rec.ID]; ok {
				peer.State = p.state.String()
			} else {
				peer.State = PairNone.String()
			}
			st.Peers = append(st.Peers, peer)
		}
	}
	return st
}
