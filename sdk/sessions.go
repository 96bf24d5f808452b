package voicelink

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/halyard-ai/voicelink/pkg/core"
)

// SessionsService manages voice agent sessions on the backend.
type SessionsService struct {
	client *Client
}

// SessionInfo identifies a backend session.
type SessionInfo struct {
	SessionID string `json:"session_id"`
}

// RoomCredentials carry everything needed to join a session's room.
// Rooms are short-lived; credentials expire roughly ten minutes after
// they are minted.
type RoomCredentials struct {
	RoomURL string `json:"room_url"`
	Token   string `json:"token"`
}

// UploadResult reports a successful document upload.
type UploadResult struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	FileURI  string `json:"file_uri"`
}

type connectRequest struct {
	TTSModel string `json:"tts_model"`
}

// Health checks that the backend is reachable.
func (s *SessionsService) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := s.client.doJSON(ctx, http.MethodGet, "/api/health", nil, &out); err != nil {
		return err
	}
	if out.Status != "ok" {
		return core.NewAPIError(fmt.Sprintf("backend unhealthy: %q", out.Status))
	}
	return nil
}

// Create registers a new session and returns its identifier.
func (s *SessionsService) Create(ctx context.Context) (*SessionInfo, error) {
	ctx, span := s.client.tracer.Start(ctx, "voicelink.sessions.create")
	defer span.End()

	var info SessionInfo
	if err := s.client.doJSON(ctx, http.MethodPost, "/api/session", nil, &info); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if info.SessionID == "" {
		err := core.NewProtocolError("backend returned empty session_id", nil)
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", info.SessionID))
	return &info, nil
}

// Connect asks the backend to create a room for the session, start
// the agent in it, and mint join credentials for this client.
func (s *SessionsService) Connect(ctx context.Context, sessionID string) (*RoomCredentials, error) {
	if sessionID == "" {
		return nil, core.NewInvalidRequestErrorWithParam("session id is required", "session_id")
	}

	ctx, span := s.client.tracer.Start(ctx, "voicelink.sessions.connect",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("tts.model", s.client.ttsModel),
		))
	defer span.End()

	path := "/api/session/" + url.PathEscape(sessionID) + "/connect"
	var creds RoomCredentials
	err := s.client.doJSON(ctx, http.MethodPost, path, connectRequest{TTSModel: s.client.ttsModel}, &creds)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if creds.RoomURL == "" || creds.Token == "" {
		err := core.NewProtocolError("backend returned incomplete room credentials", nil)
		span.RecordError(err)
		return nil, err
	}
	return &creds, nil
}

// UploadBook uploads a reference document for the session. The agent
// grounds its answers in the uploaded document. Only PDF and plain
// text files are accepted.
func (s *SessionsService) UploadBook(ctx context.Context, sessionID, filename string, file io.Reader) (*UploadResult, error) {
	if sessionID == "" {
		return nil, core.NewInvalidRequestErrorWithParam("session id is required", "session_id")
	}
	lower := strings.ToLower(filename)
	if !strings.HasSuffix(lower, ".pdf") && !strings.HasSuffix(lower, ".txt") {
		return nil, core.NewInvalidRequestErrorWithParam("only PDF and TXT files are supported", "filename")
	}

	ctx, span := s.client.tracer.Start(ctx, "voicelink.sessions.upload_book",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	path := "/api/session/" + url.PathEscape(sessionID) + "/upload-book"
	var result UploadResult
	if err := s.client.doMultipart(ctx, path, form.FormDataContentType(), pr, &result); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &result, nil
}

// ClearBook removes the session's uploaded document, returning the
// agent to general conversation.
func (s *SessionsService) ClearBook(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return core.NewInvalidRequestErrorWithParam("session id is required", "session_id")
	}

	ctx, span := s.client.tracer.Start(ctx, "voicelink.sessions.clear_book",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	path := "/api/session/" + url.PathEscape(sessionID) + "/clear-book"
	var out struct {
		Success bool `json:"success"`
	}
	if err := s.client.doJSON(ctx, http.MethodPost, path, nil, &out); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// NewSession creates a backend session and returns a Session facade
// for it, in the disconnected state.
func (c *Client) NewSession(ctx context.Context) (*Session, error) {
	info, err := c.Sessions.Create(ctx)
	if err != nil {
		return nil, err
	}
	return c.newSession(info.SessionID), nil
}

// SessionFromID returns a Session facade for an existing backend
// session, in the disconnected state.
func (c *Client) SessionFromID(sessionID string) *Session {
	return c.newSession(sessionID)
}

func (c *Client) newSession(sessionID string) *Session {
	return newSession(c, sessionID, c.dialer)
}
