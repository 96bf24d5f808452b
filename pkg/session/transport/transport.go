// Package transport defines the seam between the session orchestrator and
// the underlying media/data-channel connection to the remote voice pipeline.
// The orchestrator depends only on this package; the WebRTC implementation
// lives in webrtcx.
package transport

import "context"

// Room identifies a media room minted by the backend for one connection.
type Room struct {
	URL   string
	Token string
}

// Event is the interface for all transport lifecycle events.
type Event interface {
	// EventKind returns the event kind string.
	EventKind() string
}

// JoinedEvent is emitted once the transport is joined and the control
// channel is open.
type JoinedEvent struct{}

func (JoinedEvent) EventKind() string { return "joined" }

// LeftEvent is emitted when the transport leaves the room, locally or
// remotely initiated.
type LeftEvent struct {
	Reason string
}

func (LeftEvent) EventKind() string { return "left" }

// ErrorEvent is emitted on a transport-level failure. The session treats it
// as fatal for the current connection.
type ErrorEvent struct {
	Err error
}

func (ErrorEvent) EventKind() string { return "error" }

// ControlEvent carries one raw inbound control frame from the data channel.
type ControlEvent struct {
	Data []byte
}

func (ControlEvent) EventKind() string { return "control" }

// TrackStartedEvent announces a new remote audio track.
type TrackStartedEvent struct {
	Track Track
}

func (TrackStartedEvent) EventKind() string { return "track_started" }

// Track is a remote audio track delivering decoded PCM.
type Track interface {
	// ID returns the transport-assigned track identifier.
	ID() string
	// SampleRate returns the PCM sample rate in Hz.
	SampleRate() int
	// Channels returns the PCM channel count.
	Channels() int
	// ReadChunk blocks until the next decoded PCM16LE chunk is available.
	// It returns io.EOF when the track ends.
	ReadChunk() ([]byte, error)
}

// Transport is one live connection to a room.
//
// Implementations deliver events strictly in the order they occur and never
// drop control events; when the Events buffer is full the producer blocks.
// LeftEvent and ErrorEvent are terminal: no further events follow either.
type Transport interface {
	// Events returns the inbound event stream.
	Events() <-chan Event
	// SendControl sends one raw control frame to the remote pipeline.
	SendControl(data []byte) error
	// SetMicEnabled enables or disables outbound microphone audio. Local
	// only, no network round-trip.
	SetMicEnabled(enabled bool)
	// MicEnabled reports whether outbound microphone audio is enabled.
	MicEnabled() bool
	// Leave tears the connection down. Idempotent; teardown proceeds even
	// when the underlying close fails.
	Leave() error
}

// Dialer creates and starts joining transports. Dial returns once signaling
// is underway; the JoinedEvent on Events marks the join as complete.
type Dialer interface {
	Dial(ctx context.Context, room Room) (Transport, error)
}
