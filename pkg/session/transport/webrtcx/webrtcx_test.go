package webrtcx

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v3"
)

func TestSignalingURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:7860/ws/room/abc", "ws://localhost:7860/ws/room/abc", false},
		{"https://rooms.example.com/r/abc?token=x", "wss://rooms.example.com/r/abc?token=x", false},
		{"ws://localhost:7860/ws/room/abc", "ws://localhost:7860/ws/room/abc", false},
		{"wss://rooms.example.com/r/abc", "wss://rooms.example.com/r/abc", false},
		{"  ", "", true},
		{"ftp://example.com/room", "", true},
		{"/ws/room/abc", "", true},
	}
	for _, tt := range tests {
		got, err := signalingURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("signalingURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("signalingURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseICEServers(t *testing.T) {
	t.Parallel()

	servers := ParseICEServers(`[{"urls":["stun:stun.example.com:3478"]}]`)
	if len(servers) != 1 || len(servers[0].URLs) != 1 || servers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("ParseICEServers custom = %#v", servers)
	}

	fallback := ParseICEServers("not json")
	if len(fallback) != 1 || fallback[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("ParseICEServers fallback = %#v", fallback)
	}
	if got := ParseICEServers(""); len(got) != 1 {
		t.Fatalf("ParseICEServers empty should fall back, got %#v", got)
	}
}

func TestSignalMessageCandidateRoundTrip(t *testing.T) {
	t.Parallel()

	mid := "0"
	idx := uint16(0)
	msg := SignalMessage{
		Type:          "candidate",
		Candidate:     "candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back SignalMessage
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	init := back.CandidateInit()
	if init.Candidate != msg.Candidate {
		t.Fatalf("Candidate = %q, want %q", init.Candidate, msg.Candidate)
	}
	if init.SDPMid == nil || *init.SDPMid != mid {
		t.Fatalf("SDPMid = %v, want %q", init.SDPMid, mid)
	}
	if init.SDPMLineIndex == nil || *init.SDPMLineIndex != idx {
		t.Fatalf("SDPMLineIndex = %v, want %d", init.SDPMLineIndex, idx)
	}
}

func TestPCM16LERoundTrip(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1, -1, 32767, -32768, 12345, -12345}
	got := samplesFromPCM16LE(pcm16LEBytes(samples))
	if len(got) != len(samples) {
		t.Fatalf("len = %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Fatalf("sample[%d] = %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestPacedWriterFrameBoundaries(t *testing.T) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: sampleRate, Channels: 1},
		"test-audio", "test",
	)
	if err != nil {
		t.Fatalf("create track: %v", err)
	}
	w, err := NewPacedWriter(track)
	if err != nil {
		t.Fatalf("NewPacedWriter: %v", err)
	}
	defer w.Close()

	// One full frame plus 10 residual bytes: the frame is encoded, the
	// residue stays pending.
	w.WritePCM(make([]byte, frameBytes+10))
	w.mu.Lock()
	pending := len(w.pending)
	w.mu.Unlock()
	if pending != 10 {
		t.Fatalf("pending after partial frame = %d, want 10", pending)
	}

	w.WritePCM(make([]byte, frameBytes-10))
	w.mu.Lock()
	pending = len(w.pending)
	w.mu.Unlock()
	if pending != 0 {
		t.Fatalf("pending after completing frame = %d, want 0", pending)
	}

	w.WritePCM(make([]byte, 100))
	w.Reset()
	w.mu.Lock()
	pending = len(w.pending)
	w.mu.Unlock()
	if pending != 0 {
		t.Fatalf("pending after Reset = %d, want 0", pending)
	}
}
