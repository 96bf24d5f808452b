package protocol

import (
	"errors"
	"testing"
)

func TestDecodeServerMessage_Status(t *testing.T) {
	t.Parallel()

	msg, err := DecodeServerMessage([]byte(`{"type":"status","status":"listening"}`))
	if err != nil {
		t.Fatalf("DecodeServerMessage error: %v", err)
	}
	status, ok := msg.(StatusMessage)
	if !ok {
		t.Fatalf("decoded %T, want StatusMessage", msg)
	}
	if status.Status != StatusListening {
		t.Fatalf("Status = %q, want %q", status.Status, StatusListening)
	}
}

func TestDecodeServerMessage_StatusUnknownValue(t *testing.T) {
	t.Parallel()

	_, err := DecodeServerMessage([]byte(`{"type":"status","status":"reticulating"}`))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
	if decodeErr.Param != "status" {
		t.Fatalf("Param = %q, want %q", decodeErr.Param, "status")
	}
}

func TestDecodeServerMessage_TranscriptFull(t *testing.T) {
	t.Parallel()

	raw := `{"type":"transcript","role":"assistant","text":"hello there","messageId":7,"timestamp":1700000000123,"final":true}`
	msg, err := DecodeServerMessage([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeServerMessage error: %v", err)
	}
	tr, ok := msg.(TranscriptMessage)
	if !ok {
		t.Fatalf("decoded %T, want TranscriptMessage", msg)
	}
	if tr.Role != RoleAssistant {
		t.Fatalf("Role = %q, want %q", tr.Role, RoleAssistant)
	}
	if tr.Text != "hello there" {
		t.Fatalf("Text = %q", tr.Text)
	}
	if tr.MessageID == nil || *tr.MessageID != 7 {
		t.Fatalf("MessageID = %v, want 7", tr.MessageID)
	}
	if tr.TimestampMS == nil || *tr.TimestampMS != 1700000000123 {
		t.Fatalf("TimestampMS = %v, want 1700000000123", tr.TimestampMS)
	}
	if tr.Final == nil || !*tr.Final {
		t.Fatalf("Final = %v, want true", tr.Final)
	}
}

func TestDecodeServerMessage_TranscriptOptionalFieldsAbsent(t *testing.T) {
	t.Parallel()

	msg, err := DecodeServerMessage([]byte(`{"type":"transcript","role":"user","text":"hi"}`))
	if err != nil {
		t.Fatalf("DecodeServerMessage error: %v", err)
	}
	tr := msg.(TranscriptMessage)
	if tr.MessageID != nil {
		t.Fatalf("MessageID = %v, want nil for absent field", tr.MessageID)
	}
	if tr.TimestampMS != nil {
		t.Fatalf("TimestampMS = %v, want nil for absent field", tr.TimestampMS)
	}
	if tr.Final != nil {
		t.Fatalf("Final = %v, want nil for absent field", tr.Final)
	}
}

func TestDecodeServerMessage_TranscriptBadRole(t *testing.T) {
	t.Parallel()

	_, err := DecodeServerMessage([]byte(`{"type":"transcript","role":"narrator","text":"hi"}`))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
	if decodeErr.Param != "role" {
		t.Fatalf("Param = %q, want %q", decodeErr.Param, "role")
	}
}

func TestDecodeServerMessage_Log(t *testing.T) {
	t.Parallel()

	msg, err := DecodeServerMessage([]byte(`{"type":"log","text":"stt connected"}`))
	if err != nil {
		t.Fatalf("DecodeServerMessage error: %v", err)
	}
	lg, ok := msg.(LogMessage)
	if !ok {
		t.Fatalf("decoded %T, want LogMessage", msg)
	}
	if lg.Text != "stt connected" {
		t.Fatalf("Text = %q", lg.Text)
	}
}

func TestDecodeServerMessage_UnknownTypeDropped(t *testing.T) {
	t.Parallel()

	msg, err := DecodeServerMessage([]byte(`{"type":"telemetry","rtt_ms":42}`))
	if err != nil {
		t.Fatalf("unknown type should not error, got %v", err)
	}
	if msg != nil {
		t.Fatalf("unknown type should decode to nil, got %#v", msg)
	}
}

func TestDecodeServerMessage_Malformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
	}{
		{"truncated json", `{"type":"status","status":`},
		{"missing type", `{"status":"idle"}`},
		{"wrong field type", `{"type":"transcript","role":"user","text":"hi","messageId":"seven"}`},
		{"empty log text", `{"type":"log","text":"  "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := DecodeServerMessage([]byte(tc.raw)); err == nil {
				t.Fatalf("DecodeServerMessage(%q) should fail", tc.raw)
			}
		})
	}
}
