package voicelink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/halyard-ai/voicelink/internal/metrics"
	"github.com/halyard-ai/voicelink/pkg/core"
	"github.com/halyard-ai/voicelink/pkg/session/protocol"
	"github.com/halyard-ai/voicelink/pkg/session/transport"
)

// ConnectionStatus is the lifecycle state of a session's transport.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

// ErrConnectAborted is returned by Connect when Disconnect is called
// while the connection attempt is still in flight.
var ErrConnectAborted = &core.Error{Type: core.ErrConnection, Message: "connect aborted by disconnect"}

// Session is a live voice conversation with the remote agent.
//
// A Session owns its transport exclusively: only Connect creates one
// and only the teardown paths release it. Inbound transport events
// are consumed by a single dispatch goroutine, one event to
// completion before the next, so control messages apply in delivery
// order and callbacks never run concurrently with each other.
type Session struct {
	client *Client
	id     string
	dialer transport.Dialer
	tracks *trackManager
	log    *slog.Logger
	now    func() time.Time

	// Connection state. tr is the single source of truth for an
	// active transport; gen invalidates in-flight connect attempts
	// when a disconnect overtakes them.
	mu       sync.RWMutex
	status   ConnectionStatus
	pipeline protocol.PipelineStatus
	tr       transport.Transport
	stop     chan struct{}
	gen      uint64
	joinWait chan error

	// Transcript and log accumulation
	rec        *reconciler
	transcript *TranscriptLog
	logs       *LogBuffer

	// Callback slots, read at invocation time so re-registration
	// takes effect immediately without a reconnect.
	cbMu         sync.Mutex
	onStatus     func(protocol.PipelineStatus)
	onTranscript func(Utterance)
	onLog        func(LogEntry)
}

func newSession(c *Client, id string, dialer transport.Dialer) *Session {
	s := &Session{
		client:     c,
		id:         id,
		dialer:     dialer,
		log:        c.logger.With("session_id", id),
		now:        time.Now,
		status:     StatusDisconnected,
		pipeline:   protocol.StatusIdle,
		transcript: NewTranscriptLog(),
		logs:       NewLogBuffer(DefaultLogCapacity),
	}
	s.rec = newReconciler(func() time.Time { return s.now() })
	s.tracks = newTrackManager(c.sink, s.log)
	return s
}

// ID returns the backend session identifier.
func (s *Session) ID() string {
	return s.id
}

// Status returns the connection lifecycle state.
func (s *Session) Status() ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// PipelineStatus returns which stage of the remote pipeline is
// currently active. It is idle whenever the session is not connected.
func (s *Session) PipelineStatus() protocol.PipelineStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pipeline
}

// IsConnected reports whether the session is fully connected.
func (s *Session) IsConnected() bool {
	return s.Status() == StatusConnected
}

// IsMuted reports whether the local microphone is muted. Without an
// active transport the session is always unmuted.
func (s *Session) IsMuted() bool {
	s.mu.RLock()
	tr := s.tr
	s.mu.RUnlock()
	return tr != nil && !tr.MicEnabled()
}

// Transcript returns the conversation so far, ordered by timestamp
// ascending with ties broken by arrival order.
func (s *Session) Transcript() []Utterance {
	return s.transcript.Ordered()
}

// Logs returns the most recent agent log lines, oldest first.
func (s *Session) Logs() []LogEntry {
	return s.logs.Entries()
}

// OnStatus registers the pipeline status callback. Events always go
// to the latest registered callback; pass nil to unregister.
func (s *Session) OnStatus(fn func(protocol.PipelineStatus)) {
	s.cbMu.Lock()
	s.onStatus = fn
	s.cbMu.Unlock()
}

// OnTranscript registers the transcript callback. Each invocation
// carries the stored entry after reconciliation, so repeated calls
// with the same ID are upserts of one logical utterance.
func (s *Session) OnTranscript(fn func(Utterance)) {
	s.cbMu.Lock()
	s.onTranscript = fn
	s.cbMu.Unlock()
}

// OnLog registers the agent log callback.
func (s *Session) OnLog(fn func(LogEntry)) {
	s.cbMu.Lock()
	s.onLog = fn
	s.cbMu.Unlock()
}

// Connect requests room credentials from the backend, joins the room,
// and blocks until the join completes, fails, or the connect timeout
// elapses. It is a no-op returning nil when the session is already
// connecting or connected, or when it has no backend id.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusDisconnected || s.id == "" {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusConnecting
	s.gen++
	gen := s.gen
	join := make(chan error, 1)
	s.joinWait = join
	s.mu.Unlock()

	ctx, span := s.client.tracer.Start(ctx, "voicelink.session.connect")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.client.connectTimeout)
	defer cancel()

	creds, err := s.client.Sessions.Connect(ctx, s.id)
	if err != nil {
		span.RecordError(err)
		s.abortConnect(gen)
		metrics.ConnectsTotal.WithLabelValues("credentials_failed").Inc()
		return err
	}

	tr, err := s.dialer.Dial(ctx, transport.Room{URL: creds.RoomURL, Token: creds.Token})
	if err != nil {
		span.RecordError(err)
		s.abortConnect(gen)
		metrics.ConnectsTotal.WithLabelValues("dial_failed").Inc()
		return core.NewConnectionError("join room", err)
	}

	stop := make(chan struct{})
	s.mu.Lock()
	if s.gen != gen {
		// A disconnect overtook us while the handshake was in
		// flight; release the transport we just created.
		s.mu.Unlock()
		if err := tr.Leave(); err != nil {
			s.log.Debug("releasing orphaned transport", "error", err)
		}
		metrics.ConnectsTotal.WithLabelValues("aborted").Inc()
		return ErrConnectAborted
	}
	s.tr = tr
	s.stop = stop
	s.mu.Unlock()

	go s.dispatch(gen, tr, stop)

	select {
	case err := <-join:
		if err != nil {
			span.RecordError(err)
			if errors.Is(err, ErrConnectAborted) {
				metrics.ConnectsTotal.WithLabelValues("aborted").Inc()
			} else {
				metrics.ConnectsTotal.WithLabelValues("join_failed").Inc()
			}
			return err
		}
		metrics.ConnectsTotal.WithLabelValues("connected").Inc()
		return nil
	case <-ctx.Done():
		s.Disconnect()
		metrics.ConnectsTotal.WithLabelValues("timeout").Inc()
		return core.NewTimeoutError("connect")
	}
}

// Disconnect tears the connection down. It is idempotent: with no
// active connection it is a no-op. Teardown failures are logged,
// never returned; the session always ends disconnected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	gen := s.gen
	idle := s.status == StatusDisconnected && s.tr == nil
	s.mu.Unlock()
	if idle {
		return
	}
	s.teardown(gen, ErrConnectAborted)
}

// ToggleMute flips the local microphone and reports whether it is now
// muted. This is a synchronous local operation; without an active
// transport it is a no-op and the session stays unmuted.
func (s *Session) ToggleMute() bool {
	s.mu.RLock()
	tr := s.tr
	s.mu.RUnlock()
	if tr == nil {
		return false
	}
	wasEnabled := tr.MicEnabled()
	tr.SetMicEnabled(!wasEnabled)
	return wasEnabled
}

// abortConnect reverts a failed connect attempt to disconnected,
// unless a disconnect already invalidated the attempt.
func (s *Session) abortConnect(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.gen++
	s.status = StatusDisconnected
	s.pipeline = protocol.StatusIdle
	s.joinWait = nil
}

// teardown releases the transport owned by gen and resets state to
// disconnected. Later generations are untouched, so a stale teardown
// never disturbs a newer connection.
func (s *Session) teardown(gen uint64, joinErr error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	tr := s.tr
	s.tr = nil
	stop := s.stop
	s.stop = nil
	join := s.joinWait
	s.joinWait = nil
	wasConnected := s.status == StatusConnected
	s.status = StatusDisconnected
	s.pipeline = protocol.StatusIdle
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if join != nil {
		join <- joinErr
	}
	if tr != nil {
		if err := tr.Leave(); err != nil {
			s.log.Debug("transport leave", "error", err)
		}
	}
	if wasConnected {
		metrics.SessionsActive.Dec()
	}
}

// dispatch consumes transport events one at a time. Each event is
// handled to completion before the next is read. The stop channel is
// checked first on every iteration so a teardown wins over any events
// still queued behind it.
func (s *Session) dispatch(gen uint64, tr transport.Transport, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		select {
		case <-stop:
			return
		case ev, ok := <-tr.Events():
			if !ok {
				return
			}
			if s.handleEvent(gen, ev) {
				return
			}
		}
	}
}

// handleEvent applies one transport event and reports whether the
// dispatch loop should exit.
func (s *Session) handleEvent(gen uint64, ev transport.Event) bool {
	switch ev := ev.(type) {
	case transport.JoinedEvent:
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return true
		}
		s.status = StatusConnected
		s.pipeline = protocol.StatusIdle
		join := s.joinWait
		s.joinWait = nil
		s.mu.Unlock()

		metrics.SessionsActive.Inc()
		if join != nil {
			join <- nil
		}
		s.notifyStatus(protocol.StatusIdle)
		return false

	case transport.ControlEvent:
		s.handleControl(gen, ev.Data)
		return false

	case transport.TrackStartedEvent:
		s.tracks.handle(ev.Track)
		return false

	case transport.LeftEvent:
		s.log.Info("left room", "reason", ev.Reason)
		s.teardown(gen, core.NewConnectionError("join room", errors.New(ev.Reason)))
		return true

	case transport.ErrorEvent:
		s.log.Warn("transport failed, disconnecting", "error", ev.Err)
		s.teardown(gen, core.NewConnectionError("transport", ev.Err))
		return true

	default:
		return false
	}
}

// handleControl decodes and applies one inbound control message.
// Unknown types are dropped silently; malformed frames are logged and
// leave the connection untouched.
func (s *Session) handleControl(gen uint64, data []byte) {
	s.mu.RLock()
	stale := s.gen != gen
	s.mu.RUnlock()
	if stale {
		return
	}

	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		metrics.MalformedMessages.Inc()
		s.log.Warn("dropping malformed control message", "error", err)
		return
	}
	if msg == nil {
		return
	}

	switch m := msg.(type) {
	case protocol.StatusMessage:
		metrics.ControlMessages.WithLabelValues(protocol.TypeStatus).Inc()
		s.mu.Lock()
		if s.gen != gen || s.status != StatusConnected {
			s.mu.Unlock()
			return
		}
		s.pipeline = m.Status
		s.mu.Unlock()
		s.notifyStatus(m.Status)

	case protocol.TranscriptMessage:
		metrics.ControlMessages.WithLabelValues(protocol.TypeTranscript).Inc()
		metrics.TranscriptUpserts.WithLabelValues(string(m.Role)).Inc()
		stored := s.transcript.Upsert(s.rec.reconcile(m))
		s.notifyTranscript(stored)

	case protocol.LogMessage:
		metrics.ControlMessages.WithLabelValues(protocol.TypeLog).Inc()
		entry := LogEntry{Text: m.Text, Timestamp: s.now().UnixMilli()}
		s.logs.Append(entry)
		s.notifyLog(entry)
	}
}

func (s *Session) notifyStatus(status protocol.PipelineStatus) {
	s.cbMu.Lock()
	cb := s.onStatus
	s.cbMu.Unlock()
	if cb != nil {
		cb(status)
	}
}

func (s *Session) notifyTranscript(u Utterance) {
	s.cbMu.Lock()
	cb := s.onTranscript
	s.cbMu.Unlock()
	if cb != nil {
		cb(u)
	}
}

func (s *Session) notifyLog(entry LogEntry) {
	s.cbMu.Lock()
	cb := s.onLog
	s.cbMu.Unlock()
	if cb != nil {
		cb(entry)
	}
}
