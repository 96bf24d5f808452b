package voicelink

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/halyard-ai/voicelink/pkg/session/transport"
)

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL of the session backend.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithAPIKey sets a bearer token sent on backend requests.
// The default deployment is unauthenticated, so this is optional.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithConnectTimeout bounds how long Session.Connect waits for the
// room handshake before giving up.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.connectTimeout = d
	}
}

// WithTTSModel selects the speech synthesis model requested on connect
// ("mars-flash" or "mars-pro").
func WithTTSModel(model string) ClientOption {
	return func(c *Client) {
		c.ttsModel = model
	}
}

// WithLogger sets the logger for the client.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithTracer sets the OpenTelemetry tracer for the client.
func WithTracer(t trace.Tracer) ClientOption {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithRetries sets the maximum number of retries for failed requests.
func WithRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryBackoff sets the initial backoff duration between retries.
func WithRetryBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryBackoff = d
	}
}

// WithDialer replaces the room transport dialer. Sessions dial WebRTC
// rooms by default; tests and embedders can supply their own.
func WithDialer(d transport.Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithMicrophone sets the capture source for outbound audio:
// little-endian 16-bit PCM, 48 kHz, mono. The caller keeps ownership
// of the reader. Ignored when WithDialer is also set.
func WithMicrophone(mic io.Reader) ClientOption {
	return func(c *Client) {
		c.mic = mic
	}
}

// WithAudioSink routes remote agent audio to a playback sink. Without
// a sink, incoming tracks are acknowledged and dropped.
func WithAudioSink(sink AudioSink) ClientOption {
	return func(c *Client) {
		c.sink = sink
	}
}
