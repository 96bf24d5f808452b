package webrtcx

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/pion/webrtc/v3"
)

// SignalMessage is the websocket signaling frame exchanged with the room
// endpoint. Types: "auth", "offer", "answer", "candidate", "ice-complete",
// "bye", "error".
type SignalMessage struct {
	Type string `json:"type"`
	// auth
	Token string `json:"token,omitempty"`
	// offer/answer
	SDP string `json:"sdp,omitempty"`
	// candidate
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
	// error
	Error string `json:"error,omitempty"`
}

// CandidateSignal converts a local ICE candidate to its signaling frame.
func CandidateSignal(c *webrtc.ICECandidate) SignalMessage {
	init := c.ToJSON()
	return SignalMessage{
		Type:          "candidate",
		Candidate:     init.Candidate,
		SDPMid:        init.SDPMid,
		SDPMLineIndex: init.SDPMLineIndex,
	}
}

// CandidateInit converts a received candidate frame for AddICECandidate.
func (m SignalMessage) CandidateInit() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     m.Candidate,
		SDPMid:        m.SDPMid,
		SDPMLineIndex: m.SDPMLineIndex,
	}
}

// signalingURL rewrites the backend-issued room URL to a websocket scheme.
func signalingURL(roomURL string) (string, error) {
	trimmed := strings.TrimSpace(roomURL)
	if trimmed == "" {
		return "", fmt.Errorf("room url is empty")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse room url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported room url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("room url has no host")
	}
	return u.String(), nil
}

// ParseICEServers parses a JSON ICE server list, falling back to the
// default STUN configuration on empty or invalid input.
func ParseICEServers(raw string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if err := json.Unmarshal([]byte(raw), &servers); err == nil && len(servers) > 0 {
		return servers
	}
	return DefaultICEServers()
}
