// Package protocol defines the control messages exchanged with the remote
// voice pipeline over the transport's data channel.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	TypeStatus     = "status"
	TypeTranscript = "transcript"
	TypeLog        = "log"
)

// PipelineStatus reports which stage of the remote voice pipeline is active.
type PipelineStatus string

const (
	StatusIdle      PipelineStatus = "idle"
	StatusListening PipelineStatus = "listening"
	StatusSTT       PipelineStatus = "stt"
	StatusLLM       PipelineStatus = "llm"
	StatusTTS       PipelineStatus = "tts"
)

// Valid reports whether s is a known pipeline status.
func (s PipelineStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusListening, StatusSTT, StatusLLM, StatusTTS:
		return true
	}
	return false
}

// Role identifies the speaker of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// StatusMessage reports a pipeline stage change.
type StatusMessage struct {
	Type   string         `json:"type"`
	Status PipelineStatus `json:"status"`
}

// TranscriptMessage carries one streaming transcript fragment. MessageID,
// TimestampMS and Final are pointers so the reconciler can tell an absent
// field from its zero value; TimestampMS is milliseconds since epoch.
type TranscriptMessage struct {
	Type        string `json:"type"`
	Role        Role   `json:"role"`
	Text        string `json:"text"`
	MessageID   *int64 `json:"messageId,omitempty"`
	TimestampMS *int64 `json:"timestamp,omitempty"`
	Final       *bool  `json:"final,omitempty"`
}

// LogMessage carries a diagnostic line from the pipeline.
type LogMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// DecodeServerMessage decodes one inbound control frame. Unknown message
// types return (nil, nil) and are dropped by the caller; malformed frames
// return a *DecodeError.
func DecodeServerMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeStatus:
		var msg StatusMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid status frame", "")
		}
		if !msg.Status.Valid() {
			return nil, badRequest("unknown pipeline status", "status")
		}
		return msg, nil
	case TypeTranscript:
		var msg TranscriptMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid transcript frame", "")
		}
		if !msg.Role.Valid() {
			return nil, badRequest("unknown transcript role", "role")
		}
		return msg, nil
	case TypeLog:
		var msg LogMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid log frame", "")
		}
		if strings.TrimSpace(msg.Text) == "" {
			return nil, badRequest("log.text is required", "text")
		}
		return msg, nil
	default:
		return nil, nil
	}
}
