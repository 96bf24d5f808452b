// Package voicelink provides a Go client for real-time voice agent
// sessions.
//
// A Client talks to the session backend over REST (create sessions,
// upload reference documents, mint room credentials) and hands out
// Session values that join a WebRTC room, stream microphone audio to
// the agent, play the agent's speech, and surface pipeline status,
// transcripts, and agent log lines through caller-registered
// callbacks.
package voicelink

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/halyard-ai/voicelink/pkg/session/transport"
	"github.com/halyard-ai/voicelink/pkg/session/transport/webrtcx"
)

const (
	defaultBaseURL        = "http://localhost:7860"
	defaultConnectTimeout = 15 * time.Second
	defaultTTSModel       = "mars-flash"
)

// Client is the main entry point for the SDK.
type Client struct {
	Sessions *SessionsService

	// Internal
	baseURL        string
	apiKey         string
	httpClient     *http.Client
	logger         *slog.Logger
	tracer         trace.Tracer
	maxRetries     int
	retryBackoff   time.Duration
	connectTimeout time.Duration
	ttsModel       string
	dialer         transport.Dialer
	mic            io.Reader
	sink           AudioSink
}

// NewClient creates a new client. The backend base URL is read from
// VOICELINK_BASE_URL when set and defaults to a local backend
// otherwise; WithBaseURL overrides both.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        defaultBaseURL,
		httpClient:     newDefaultHTTPClient(),
		logger:         slog.Default(),
		tracer:         noop.NewTracerProvider().Tracer("voicelink"),
		connectTimeout: defaultConnectTimeout,
		ttsModel:       defaultTTSModel,
	}
	if url := os.Getenv("VOICELINK_BASE_URL"); url != "" {
		c.baseURL = url
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")

	if c.dialer == nil {
		c.dialer = webrtcx.NewDialer(webrtcx.Config{
			Mic:    c.mic,
			Logger: c.logger,
		})
	}

	c.Sessions = &SessionsService{client: c}
	return c
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}
