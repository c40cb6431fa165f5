// Package rtc abstracts the peer-connection and data-channel primitives
// the session layer signals over. Production uses the pion implementation;
// tests substitute in-memory pipes.
package rtc

import "context"

// Channel is a bidirectional byte-message channel on a peer connection.
type Channel interface {
	// Label returns the channel's label.
	Label() string

	// Send transmits one message. Fails when the channel is not open.
	Send(data []byte) error

	// IsOpen reports whether the channel is ready to carry traffic.
	IsOpen() bool

	// OnMessage registers the inbound message handler.
	OnMessage(handler func(data []byte))

	// Close tears the channel down.
	Close() error
}

// Conn is a single peer connection. Offer/answer generation waits for
// address-candidate gathering to complete, so the returned descriptions
// are self-contained and signaling needs exactly one round trip per side.
type Conn interface {
	// CreateDataChannel opens an outbound channel with the given label.
	CreateDataChannel(label string) (Channel, error)

	// OnDataChannel registers a handler for channels the remote side opens.
	OnDataChannel(handler func(Channel))

	// CreateOffer generates the local session description, waits for
	// candidate gathering, and returns the complete description.
	CreateOffer(ctx context.Context) (string, error)

	// AcceptOffer applies a remote offer and returns the complete local
	// answer, again after candidate gathering finishes.
	AcceptOffer(ctx context.Context, offerSDP string) (string, error)

	// AcceptAnswer applies the remote answer to an offer this connection
	// created earlier.
	AcceptAnswer(answerSDP string) error

	// Close tears the connection down.
	Close() error
}

// Dialer creates peer connections.
type Dialer interface {
	NewConn() (Conn, error)
}
