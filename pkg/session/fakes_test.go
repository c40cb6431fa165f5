package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tomaslejdung/coview/pkg/rtc"
	"github.com/tomaslejdung/coview/pkg/viewer"
)

// fakeNetwork links fake peer connections through their offer/answer
// strings, standing in for the real candidate-gathering exchange. All
// dialers of one network can reach each other.
type fakeNetwork struct {
	mu    sync.Mutex
	next  int
	conns map[string]*fakeConn
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{conns: make(map[string]*fakeConn)}
}

func (n *fakeNetwork) dialer() *fakeDialer {
	return &fakeDialer{net: n}
}

type fakeDialer struct {
	net *fakeNetwork

	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) NewConn() (rtc.Conn, error) {
	d.net.mu.Lock()
	d.net.next++
	c := &fakeConn{
		net: d.net,
		id:  fmt.Sprintf("conn-%d", d.net.next),
	}
	d.net.conns[c.id] = c
	d.net.mu.Unlock()

	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

// connCount reports how many connections this dialer has created, used
// to assert that established pairs are never rebuilt.
func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

type fakeConn struct {
	net *fakeNetwork
	id  string

	mu            sync.Mutex
	channels      []*fakeChannel
	onDataChannel func(rtc.Channel)
	closed        bool
}

func (c *fakeConn) CreateDataChannel(label string) (rtc.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("connection closed")
	}
	ch := &fakeChannel{label: label}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConn) OnDataChannel(handler func(rtc.Channel)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDataChannel = handler
}

func (c *fakeConn) CreateOffer(ctx context.Context) (string, error) {
	return "offer/" + c.id, nil
}

// AcceptOffer links this connection to the offering one: the offerer's
// channels are mirrored here, both ends open, and the data-channel
// handler fires for each mirror.
func (c *fakeConn) AcceptOffer(ctx context.Context, offerSDP string) (string, error) {
	offererID := strings.TrimPrefix(offerSDP, "offer/")
	c.net.mu.Lock()
	offerer := c.net.conns[offererID]
	c.net.mu.Unlock()
	if offerer == nil {
		return "", fmt.Errorf("unknown offer %q", offerSDP)
	}

	offerer.mu.Lock()
	outbound := append([]*fakeChannel(nil), offerer.channels...)
	offerer.mu.Unlock()

	c.mu.Lock()
	handler := c.onDataChannel
	c.mu.Unlock()

	for _, ch := range outbound {
		mirror := &fakeChannel{label: ch.label}
		ch.mu.Lock()
		ch.peer = mirror
		ch.open = true
		ch.mu.Unlock()
		mirror.mu.Lock()
		mirror.peer = ch
		mirror.open = true
		mirror.mu.Unlock()

		c.mu.Lock()
		c.channels = append(c.channels, mirror)
		c.mu.Unlock()

		if handler != nil {
			handler(mirror)
		}
	}
	return "answer/" + c.id, nil
}

func (c *fakeConn) AcceptAnswer(answerSDP string) error {
	if !strings.HasPrefix(answerSDP, "answer/") {
		return fmt.Errorf("malformed answer %q", answerSDP)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	channels := append([]*fakeChannel(nil), c.channels...)
	c.mu.Unlock()
	for _, ch := range channels {
		ch.Close()
	}
	return nil
}

// fakeChannel is one end of an in-memory message pipe. Sends deliver
// synchronously to the peer's handler and are recorded for assertions.
type fakeChannel struct {
	label string

	mu      sync.Mutex
	open    bool
	peer    *fakeChannel
	handler func(data []byte)
	sent    [][]byte
}

// openChannel mints a channel that accepts sends without a peer, for
// unit tests that seed pair state directly.
func openChannel(label string) *fakeChannel {
	return &fakeChannel{label: label, open: true}
}

func (ch *fakeChannel) Label() string {
	return ch.label
}

func (ch *fakeChannel) IsOpen() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.open
}

func (ch *fakeChannel) OnMessage(handler func(data []byte)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.handler = handler
}

func (ch *fakeChannel) Send(data []byte) error {
	ch.mu.Lock()
	if !ch.open {
		ch.mu.Unlock()
		return errors.New("channel not open")
	}
	ch.sent = append(ch.sent, append([]byte(nil), data...))
	peer := ch.peer
	ch.mu.Unlock()

	if peer == nil {
		return nil
	}
	peer.mu.Lock()
	handler := peer.handler
	peer.mu.Unlock()
	if handler != nil {
		handler(append([]byte(nil), data...))
	}
	return nil
}

func (ch *fakeChannel) Close() error {
	ch.mu.Lock()
	ch.open = false
	peer := ch.peer
	ch.mu.Unlock()
	if peer != nil {
		peer.mu.Lock()
		peer.open = false
		peer.mu.Unlock()
	}
	return nil
}

// sentMessages returns a copy of everything sent on this end.
func (ch *fakeChannel) sentMessages() [][]byte {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([][]byte, len(ch.sent))
	copy(out, ch.sent)
	return out
}

// countByType decodes recorded sends and counts payload messages of the
// given type, skipping keep-alives.
func countByType(sent [][]byte, typ MessageType) int {
	n := 0
	for _, data := range sent {
		msg, err := DecodeMessage(data)
		if err != nil || msg == nil {
			continue
		}
		if msg.Type == typ {
			n++
		}
	}
	return n
}

// fakeViewer is a scriptable Viewer recording everything the session
// layer drives it with.
type fakeViewer struct {
	mu        sync.Mutex
	pose      viewer.Pose
	selection []viewer.PathID
	triangles map[viewer.PathID][]float32

	moves    []viewer.Pose
	switches int

	overlayID       string
	overlayVertices []float32
	overlayColors   []uint8
	overlayCalls    int
}

func newFakeViewer() *fakeViewer {
	return &fakeViewer{
		pose: viewer.Pose{
			Position: [3]float64{1, 2, 3},
			Target:   [3]float64{0, 0, 0},
			Mode:     viewer.ModePerspective,
		},
		triangles: make(map[viewer.PathID][]float32),
	}
}

func (v *fakeViewer) CurrentCamera(ctx context.Context) (viewer.Pose, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pose, nil
}

func (v *fakeViewer) MoveCamera(ctx context.Context, pose viewer.Pose) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pose = pose
	v.moves = append(v.moves, pose)
	return nil
}

func (v *fakeViewer) SwitchPerspective(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.switches++
	if v.pose.Mode == viewer.ModePerspective {
		v.pose.Mode = viewer.ModeOrthographic
	} else {
		v.pose.Mode = viewer.ModePerspective
	}
	return nil
}

func (v *fakeViewer) CurrentSelection(ctx context.Context) ([]viewer.PathID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]viewer.PathID(nil), v.selection...), nil
}

func (v *fakeViewer) PathTriangles(ctx context.Context, path viewer.PathID) ([]float32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	buf, ok := v.triangles[path]
	if !ok {
		return nil, fmt.Errorf("unknown path %s", path)
	}
	return append([]float32(nil), buf...), nil
}

func (v *fakeViewer) ReplaceOverlayMesh(ctx context.Context, id string, vertices []float32, colors []uint8) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.overlayID = id
	v.overlayVertices = append([]float32(nil), vertices...)
	v.overlayColors = append([]uint8(nil), colors...)
	v.overlayCalls++
	return nil
}

func (v *fakeViewer) setPose(pose viewer.Pose) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pose = pose
}

func (v *fakeViewer) setSelection(paths ...viewer.PathID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selection = append([]viewer.PathID(nil), paths...)
}

func (v *fakeViewer) setTriangles(path viewer.PathID, buf []float32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.triangles[path] = buf
}

func (v *fakeViewer) currentPose() viewer.Pose {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pose
}

func (v *fakeViewer) moveCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.moves)
}

func (v *fakeViewer) switchCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.switches
}

func (v *fakeViewer) overlay() (string, []float32, []uint8, int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.overlayID, append([]float32(nil), v.overlayVertices...), append([]uint8(nil), v.overlayColors...), v.overlayCalls
}
