package session

import (
	"encoding/json"
	"fmt"

	"github.com/tomaslejdung/coview/pkg/viewer"
)

// MessageType discriminates broadcast messages on the data channel.
type MessageType string

const (
	MessageCameraPosition MessageType = "cameraPosition"
	MessageSelectionPaths MessageType = "selectionPaths"
)

// ControlMarker is the reserved first byte of a non-payload keep-alive.
// A raw channel message starting with it is dropped before JSON parsing.
const ControlMarker byte = 0x00

// keepAlivePayload is the message followers ping with to keep the
// channel's NAT binding warm.
var keepAlivePayload = []byte{ControlMarker}

// Message is the payload exchanged over established data channels. Its
// versioning is independent of the presence document schema.
type Message struct {
	Type   MessageType     `json:"type"`
	Camera *viewer.Pose    `json:"camera,omitempty"`
	Paths  []viewer.PathID `json:"paths,omitempty"`
}

// EncodeMessage serializes a message for the data channel.
func EncodeMessage(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", m.Type, err)
	}
	return data, nil
}

// DecodeMessage parses a raw channel payload. Control messages decode to
// (nil, nil): they are not payload traffic.
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) == 0 || data[0] == ControlMarker {
		return nil, nil
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	return &m, nil
}
