// Package webrtcx implements the transport seam over a WebRTC peer
// connection with websocket signaling. Control messages ride a data channel
// labeled "control"; remote pipeline audio arrives as an opus track and is
// surfaced as decoded PCM16LE chunks.
package webrtcx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"

	"github.com/halyard-ai/voicelink/pkg/session/transport"
)

const (
	// ControlChannelLabel is the data channel carrying control messages.
	ControlChannelLabel = "control"

	defaultHandshakeTimeout = 10 * time.Second
)

// Config configures a Dialer.
type Config struct {
	// ICEServers overrides the default public STUN server.
	ICEServers []webrtc.ICEServer
	// Mic supplies outbound PCM16LE 48kHz mono audio. Nil disables capture.
	// The caller owns the reader; closing it ends the mic loop.
	Mic io.Reader
	// HandshakeTimeout bounds the signaling websocket dial.
	HandshakeTimeout time.Duration
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Dialer creates room transports.
type Dialer struct {
	cfg Config
}

// NewDialer returns a Dialer with defaults applied.
func NewDialer(cfg Config) *Dialer {
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = DefaultICEServers()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dialer{cfg: cfg}
}

// Dial connects signaling, starts the offer/answer exchange and returns the
// joining transport. The transport's JoinedEvent marks completion.
func (d *Dialer) Dial(ctx context.Context, room transport.Room) (transport.Transport, error) {
	wsURL, err := signalingURL(room.URL)
	if err != nil {
		return nil, err
	}

	wsDialer := websocket.Dialer{HandshakeTimeout: d.cfg.HandshakeTimeout}
	conn, resp, err := wsDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial signaling %s: %s: %w", wsURL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial signaling %s: %w", wsURL, err)
	}

	r, err := newRoom(conn, room.Token, d.cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return r, nil
}

// DefaultICEServers returns the fallback STUN configuration.
func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}

// newPeerConnection builds a peer connection with default codecs and
// interceptors registered. Shared by the client transport and the dev
// harness answerer.
func newPeerConnection(iceServers []webrtc.ICEServer) (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))
	return api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
}

// NewAnswerPeer builds a peer connection for the answering side, with an
// outbound opus track already added. Used by the dev harness.
func NewAnswerPeer(iceServers []webrtc.ICEServer) (*webrtc.PeerConnection, *webrtc.TrackLocalStaticSample, error) {
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers()
	}
	pc, err := newPeerConnection(iceServers)
	if err != nil {
		return nil, nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: sampleRate, Channels: 1},
		"agent-audio", "agent",
	)
	if err != nil {
		_ = pc.Close()
		return nil, nil, err
	}
	if _, err := pc.AddTrack(track); err != nil {
		_ = pc.Close()
		return nil, nil, err
	}
	return pc, track, nil
}
