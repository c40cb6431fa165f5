package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v3"
)

// iceGatherTimeout bounds how long offer/answer generation waits for
// candidate gathering before giving up on the pair.
const iceGatherTimeout = 15 * time.Second

// PionDialer creates pion-backed peer connections.
type PionDialer struct {
	config webrtc.Configuration
}

// NewPionDialer creates a dialer with the given ICE configuration.
func NewPionDialer(iceConfig ICEConfig) *PionDialer {
	return &PionDialer{config: buildConfiguration(iceConfig)}
}

// NewConn creates a new peer connection.
func (d *PionDialer) NewConn() (Conn, error) {
	pc, err := webrtc.NewPeerConnection(d.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return &pionConn{pc: pc}, nil
}

type pionConn struct {
	pc *webrtc.PeerConnection
}

func (c *pionConn) CreateDataChannel(label string) (Channel, error) {
	ordered := true
	dc, err := c.pc.CreateDataChannel(label, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create data channel %s: %w", label, err)
	}
	return &pionChannel{dc: dc}, nil
}

func (c *pionConn) OnDataChannel(handler func(Channel)) {
	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		handler(&pionChannel{dc: dc})
	})
}

// CreateOffer generates a complete offer: local description set, all
// candidates gathered (vanilla ICE, no trickle).
func (c *pionConn) CreateOffer(ctx context.Context) (string, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	if err := c.waitGather(ctx, gatherComplete); err != nil {
		return "", err
	}
	return c.pc.LocalDescription().SDP, nil
}

func (c *pionConn) AcceptOffer(ctx context.Context, offerSDP string) (string, error) {
	remote := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}
	if err := c.pc.SetRemoteDescription(remote); err != nil {
		return "", fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	if err := c.waitGather(ctx, gatherComplete); err != nil {
		return "", err
	}
	return c.pc.LocalDescription().SDP, nil
}

func (c *pionConn) AcceptAnswer(answerSDP string) error {
	answer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}
	return c.pc.SetRemoteDescription(answer)
}

func (c *pionConn) waitGather(ctx context.Context, gatherComplete <-chan struct{}) error {
	select {
	case <-gatherComplete:
		return nil
	case <-time.After(iceGatherTimeout):
		return fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}

type pionChannel struct {
	dc *webrtc.DataChannel
}

func (ch *pionChannel) Label() string {
	return ch.dc.Label()
}

func (ch *pionChannel) Send(data []byte) error {
	return ch.dc.Send(data)
}

func (ch *pionChannel) IsOpen() bool {
	return ch.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (ch *pionChannel) OnMessage(handler func(data []byte)) {
	ch.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		handler(msg.Data)
	})
}

func (ch *pionChannel) Close() error {
	return ch.dc.Close()
}
