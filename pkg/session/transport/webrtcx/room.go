package webrtcx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	"github.com/halyard-ai/voicelink/pkg/session/transport"
)

// Room is one joined WebRTC connection. It implements transport.Transport.
type Room struct {
	log  *slog.Logger
	conn *websocket.Conn
	pc   *webrtc.PeerConnection
	dc   *webrtc.DataChannel
	out  *PacedWriter

	events       chan transport.Event
	closed       chan struct{}
	closeOnce    sync.Once
	terminalOnce sync.Once

	writeMu    sync.Mutex
	micEnabled atomic.Bool
}

func newRoom(conn *websocket.Conn, token string, cfg Config) (*Room, error) {
	r := &Room{
		log:    cfg.Logger,
		conn:   conn,
		events: make(chan transport.Event, 64),
		closed: make(chan struct{}),
	}
	r.micEnabled.Store(true)

	if err := r.writeSignal(SignalMessage{Type: "auth", Token: token}); err != nil {
		return nil, fmt.Errorf("send auth: %w", err)
	}

	pc, err := newPeerConnection(cfg.ICEServers)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	r.pc = pc

	micTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: sampleRate, Channels: 1},
		"mic-audio", "voicelink",
	)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create mic track: %w", err)
	}
	if _, err := pc.AddTrack(micTrack); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add mic track: %w", err)
	}
	r.out, err = NewPacedWriter(micTrack)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("mic encoder: %w", err)
	}
	go r.micLoop(cfg.Mic)

	dc, err := pc.CreateDataChannel(ControlChannelLabel, nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create control channel: %w", err)
	}
	r.dc = dc
	dc.OnOpen(func() {
		r.log.Debug("control channel open")
		r.emit(transport.JoinedEvent{})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		data := make([]byte, len(msg.Data))
		copy(data, msg.Data)
		r.emit(transport.ControlEvent{Data: data})
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			_ = r.writeSignal(SignalMessage{Type: "ice-complete"})
			return
		}
		_ = r.writeSignal(CandidateSignal(c))
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		r.log.Debug("peer connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed:
			r.emitTerminal(transport.ErrorEvent{Err: errors.New("peer connection failed")})
		case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
			r.emitTerminal(transport.LeftEvent{Reason: state.String()})
		}
	})
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		r.log.Debug("remote track started", "id", remote.ID(), "codec", remote.Codec().MimeType)
		track, err := newRemoteTrack(remote, r.log)
		if err != nil {
			r.log.Warn("remote track decoder", "err", err)
			return
		}
		r.emit(transport.TrackStartedEvent{Track: track})
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		r.shutdown()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		r.shutdown()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	if err := r.writeSignal(SignalMessage{Type: "offer", SDP: offer.SDP}); err != nil {
		r.shutdown()
		return nil, fmt.Errorf("send offer: %w", err)
	}

	go r.signalLoop()
	return r, nil
}

// Events implements transport.Transport.
func (r *Room) Events() <-chan transport.Event { return r.events }

// SendControl sends one control frame over the data channel.
func (r *Room) SendControl(data []byte) error {
	if err := r.dc.Send(data); err != nil {
		return fmt.Errorf("send control: %w", err)
	}
	return nil
}

// SetMicEnabled gates outbound microphone audio. Disabling also drops any
// audio already queued for sending.
func (r *Room) SetMicEnabled(enabled bool) {
	r.micEnabled.Store(enabled)
	if !enabled {
		r.out.Reset()
	}
}

// MicEnabled reports the outbound microphone gate.
func (r *Room) MicEnabled() bool { return r.micEnabled.Load() }

// Leave tears down the connection. Always releases local resources, even
// when the remote side is already gone.
func (r *Room) Leave() error {
	var closeErr error
	r.closeOnce.Do(func() {
		close(r.closed)
		_ = r.writeSignal(SignalMessage{Type: "bye"})
		closeErr = r.shutdown()
	})
	return closeErr
}

func (r *Room) shutdown() error {
	r.out.Close()
	err := r.pc.Close()
	if cerr := r.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func (r *Room) micLoop(mic io.Reader) {
	if mic == nil {
		return
	}
	buf := make([]byte, frameBytes)
	for {
		select {
		case <-r.closed:
			return
		default:
		}
		n, err := mic.Read(buf)
		if n > 0 && r.micEnabled.Load() {
			r.out.WritePCM(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Debug("mic read ended", "err", err)
			}
			return
		}
	}
}

func (r *Room) signalLoop() {
	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case <-r.closed:
			default:
				r.emitTerminal(transport.LeftEvent{Reason: "signaling closed"})
			}
			return
		}
		var msg SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			r.log.Debug("bad signaling frame", "err", err)
			continue
		}
		switch strings.ToLower(msg.Type) {
		case "answer":
			desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}
			if err := r.pc.SetRemoteDescription(desc); err != nil {
				r.emitTerminal(transport.ErrorEvent{Err: fmt.Errorf("set remote description: %w", err)})
				return
			}
		case "candidate":
			if msg.Candidate == "" {
				continue
			}
			if err := r.pc.AddICECandidate(msg.CandidateInit()); err != nil {
				r.log.Debug("add ice candidate", "err", err)
			}
		case "ice-complete":
		case "error":
			r.emitTerminal(transport.ErrorEvent{Err: fmt.Errorf("room error: %s", msg.Error)})
			return
		case "bye":
			r.emitTerminal(transport.LeftEvent{Reason: "bye"})
			return
		}
	}
}

func (r *Room) writeSignal(msg SignalMessage) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.conn.WriteJSON(msg)
}

func (r *Room) emit(ev transport.Event) {
	select {
	case <-r.closed:
		return
	default:
	}
	select {
	case r.events <- ev:
	case <-r.closed:
	}
}

// emitTerminal delivers at most one of LeftEvent/ErrorEvent for the
// connection's lifetime.
func (r *Room) emitTerminal(ev transport.Event) {
	r.terminalOnce.Do(func() {
		r.emit(ev)
	})
}
