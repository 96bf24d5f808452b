package voicelink

import (
	"log/slog"

	"github.com/halyard-ai/voicelink/internal/metrics"
	"github.com/halyard-ai/voicelink/pkg/session/transport"
)

// AudioSink plays remote audio tracks. Play must not block: it starts
// playback (typically on its own goroutine reading the track until it
// ends) and returns. The track ends when the transport tears down, so
// sinks need no separate stop signal. The caller owns the sink and
// its lifetime; one sink may serve many sessions in turn.
type AudioSink interface {
	Play(track transport.Track) error
}

// SinkFunc adapts a function to the AudioSink interface.
type SinkFunc func(track transport.Track) error

func (f SinkFunc) Play(track transport.Track) error {
	return f(track)
}

// trackManager binds remote audio tracks to the configured playback
// sink. Playback failures are logged and counted, never surfaced as
// connection errors.
type trackManager struct {
	sink AudioSink
	log  *slog.Logger
}

func newTrackManager(sink AudioSink, log *slog.Logger) *trackManager {
	return &trackManager{sink: sink, log: log}
}

func (m *trackManager) handle(track transport.Track) {
	metrics.TracksStarted.Inc()

	if m.sink == nil {
		m.log.Debug("remote track started with no audio sink configured", "track_id", track.ID())
		return
	}
	if err := m.sink.Play(track); err != nil {
		metrics.PlaybackFailures.Inc()
		m.log.Warn("audio playback failed to start", "track_id", track.ID(), "error", err)
	}
}
