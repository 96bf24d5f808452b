package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v3"

	"github.com/halyard-ai/voicelink/pkg/session/transport/webrtcx"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	// The harness serves local development clients only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type signalingHandler struct {
	store *store
	ice   []webrtc.ICEServer
	agent agentConfig
	log   *slog.Logger
}

// serve upgrades the room endpoint to a websocket, authenticates the
// caller's room token, answers its WebRTC offer, and runs the agent over
// the resulting control channel until either side leaves.
func (h *signalingHandler) serve(c echo.Context) error {
	roomID := c.Param("room")

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil // Upgrade already wrote the HTTP error
	}
	peer := &signalingPeer{conn: conn, log: h.log.With("room_id", roomID)}
	defer peer.close()

	// First frame must carry the room token minted by /connect.
	msg, err := peer.read()
	if err != nil {
		return nil
	}
	if !strings.EqualFold(msg.Type, "auth") {
		peer.writeError("auth required")
		return nil
	}
	rm, ok := h.store.joinRoom(roomID, msg.Token)
	if !ok {
		peer.writeError("invalid or expired room token")
		return nil
	}
	defer h.store.closeRoom(roomID)

	// Read until the caller's offer arrives.
	var offerSDP string
	for offerSDP == "" {
		msg, err := peer.read()
		if err != nil {
			return nil
		}
		switch strings.ToLower(msg.Type) {
		case "offer":
			offerSDP = msg.SDP
		case "bye":
			return nil
		}
	}

	pc, outTrack, err := webrtcx.NewAnswerPeer(h.ice)
	if err != nil {
		peer.log.Error("answer peer setup failed", "error", err)
		peer.writeError("peer setup failed")
		return nil
	}
	defer func() { _ = pc.Close() }()

	roomsOpen.Inc()
	defer roomsOpen.Dec()

	agentCtx, stopAgent := context.WithCancel(context.Background())
	defer stopAgent()

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			_ = peer.write(webrtcx.SignalMessage{Type: "ice-complete"})
			return
		}
		_ = peer.write(webrtcx.CandidateSignal(cand))
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		peer.log.Debug("peer connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			stopAgent()
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != webrtcx.ControlChannelLabel {
			return
		}
		dc.OnOpen(func() {
			peer.log.Info("control channel open, starting agent",
				"session_id", rm.SessionID, "tts_model", rm.TTSModel)
			sess, _ := h.store.session(rm.SessionID)
			go runAgent(agentCtx, h.agent, dc, outTrack, sess, rm.TTSModel, peer.log)
		})
		dc.OnClose(stopAgent)
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		peer.writeError("bad offer: " + err.Error())
		return nil
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		peer.writeError("create answer: " + err.Error())
		return nil
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		peer.writeError("set local description: " + err.Error())
		return nil
	}
	if err := peer.write(webrtcx.SignalMessage{Type: "answer", SDP: answer.SDP}); err != nil {
		return nil
	}

	// Remote candidates and bye arrive until the caller disconnects.
	for {
		msg, err := peer.read()
		if err != nil {
			stopAgent()
			return nil
		}
		switch strings.ToLower(msg.Type) {
		case "candidate":
			if msg.Candidate == "" {
				continue
			}
			if err := pc.AddICECandidate(msg.CandidateInit()); err != nil {
				peer.log.Debug("add ice candidate", "error", err)
			}
		case "ice-complete":
		case "bye":
			stopAgent()
			return nil
		}
	}
}

// signalingPeer serializes websocket writes; pion callbacks and the
// handler goroutine both send frames.
type signalingPeer struct {
	conn *websocket.Conn
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (p *signalingPeer) read() (webrtcx.SignalMessage, error) {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return webrtcx.SignalMessage{}, err
		}
		var msg webrtcx.SignalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			p.log.Debug("bad signaling frame", "error", err)
			continue
		}
		return msg, nil
	}
}

func (p *signalingPeer) write(msg webrtcx.SignalMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return websocket.ErrCloseSent
	}
	return p.conn.WriteJSON(msg)
}

func (p *signalingPeer) writeError(reason string) {
	_ = p.write(webrtcx.SignalMessage{Type: "error", Error: reason})
}

func (p *signalingPeer) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	_ = p.conn.Close()
}
