package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/halyard-ai/voicelink/pkg/session/protocol"
	"github.com/halyard-ai/voicelink/pkg/session/transport/webrtcx"
)

// bookRef is the reference material attached to a session, empty when the
// caller uploaded nothing.
type bookRef struct {
	Name string
	URI  string
	MIME string
}

// replyFunc produces the assistant's reply for one scripted user line.
type replyFunc func(ctx context.Context, userLine string, book bookRef) (string, error)

type scriptTurn struct {
	UserLine string
	Fallback string
}

// defaultScript drives the canned conversation. Each turn plays a user
// utterance and answers it, cycling when the script runs out.
var defaultScript = []scriptTurn{
	{
		UserLine: "Hi! Can you hear me?",
		Fallback: "Loud and clear. I'm your reading companion; upload a book and ask me anything about it.",
	},
	{
		UserLine: "What can you help me with?",
		Fallback: "I can summarize chapters, explain difficult passages, and quiz you on whatever you're reading.",
	},
	{
		UserLine: "Give me something to think about.",
		Fallback: "Here is one: the best books ask better questions than they answer.",
	},
}

// defaultGreeting opens every session; the production bot queues an
// initial assistant run as soon as the first participant joins.
const defaultGreeting = "Hey there, I'm your reading companion. " +
	"Ask me anything about your book, or upload one to get started."

type agentConfig struct {
	script   []scriptTurn
	greeting string
	reply    replyFunc
	now      func() time.Time
	turnGap  time.Duration // listening pause between turns
	beat     time.Duration // pacing unit for partials and pipeline stages
}

func (cfg agentConfig) withDefaults() agentConfig {
	if len(cfg.script) == 0 {
		cfg.script = defaultScript
	}
	if cfg.greeting == "" {
		cfg.greeting = defaultGreeting
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.turnGap <= 0 {
		cfg.turnGap = 2 * time.Second
	}
	if cfg.beat <= 0 {
		cfg.beat = 300 * time.Millisecond
	}
	return cfg
}

// controlSender sends one control frame to the caller. *webrtc.DataChannel
// satisfies it.
type controlSender interface {
	Send(data []byte) error
}

// speechWriter accepts 48kHz mono PCM16LE agent speech.
type speechWriter interface {
	WritePCM(pcm []byte)
}

// runAgent attaches a paced speech encoder to the outbound track and
// drives the conversation until ctx is canceled or the channel closes.
func runAgent(
	ctx context.Context,
	cfg agentConfig,
	dc *webrtc.DataChannel,
	outTrack *webrtc.TrackLocalStaticSample,
	sess *session,
	ttsModel string,
	log *slog.Logger,
) {
	speech, err := webrtcx.NewPacedWriter(outTrack)
	if err != nil {
		log.Error("speech encoder setup failed", "error", err)
		return
	}
	defer speech.Close()

	book := bookRef{}
	if sess != nil {
		book = bookRef{Name: sess.BookName, URI: sess.BookURI, MIME: sess.BookMIME}
	}
	driveAgent(ctx, cfg, dc, speech, book, ttsModel, log)
}

// driveAgent is the transport-independent conversation loop, split out so
// tests can capture the emitted control frames.
func driveAgent(
	ctx context.Context,
	cfg agentConfig,
	ctrl controlSender,
	speech speechWriter,
	book bookRef,
	ttsModel string,
	log *slog.Logger,
) {
	cfg = cfg.withDefaults()
	a := &agent{
		ctx:    ctx,
		ctrl:   ctrl,
		speech: speech,
		now:    cfg.now,
		log:    log,
	}

	a.emitLog("agent ready, voice model " + ttsModel)
	if book.Name != "" {
		a.emitLog("book context loaded: " + book.Name)
	}

	// Greeting turn before the caller says anything.
	a.emitStatus(protocol.StatusLLM)
	if !a.wait(cfg.beat) {
		return
	}
	a.emitTranscript(protocol.RoleAssistant, cfg.greeting, a.nextMessageID(), true)
	a.emitStatus(protocol.StatusTTS)
	a.speak(4 * cfg.beat)
	if !a.wait(4 * cfg.beat) {
		return
	}
	a.emitStatus(protocol.StatusIdle)

	for i := 0; a.err == nil; i++ {
		turn := cfg.script[i%len(cfg.script)]

		a.emitStatus(protocol.StatusListening)
		if !a.wait(cfg.turnGap) {
			return
		}

		userID := a.nextMessageID()
		a.emitTranscript(protocol.RoleUser, firstWords(turn.UserLine), userID, false)
		if !a.wait(cfg.beat) {
			return
		}
		a.emitTranscript(protocol.RoleUser, turn.UserLine, userID, true)

		a.emitStatus(protocol.StatusSTT)
		if !a.wait(cfg.beat) {
			return
		}

		a.emitStatus(protocol.StatusLLM)
		reply := turn.Fallback
		if cfg.reply != nil {
			generated, err := cfg.reply(ctx, turn.UserLine, book)
			switch {
			case err != nil:
				a.log.Warn("reply generation failed, using canned line", "error", err)
				a.emitLog("reply generation failed, using canned line")
			case strings.TrimSpace(generated) != "":
				reply = strings.TrimSpace(generated)
			}
		}

		assistantID := a.nextMessageID()
		a.emitTranscript(protocol.RoleAssistant, firstWords(reply), assistantID, false)
		if !a.wait(cfg.beat) {
			return
		}
		a.emitTranscript(protocol.RoleAssistant, reply, assistantID, true)

		a.emitStatus(protocol.StatusTTS)
		a.speak(4 * cfg.beat)
		if !a.wait(4 * cfg.beat) {
			return
		}

		agentTurns.Inc()
		a.emitStatus(protocol.StatusIdle)
	}
}

// agent carries a sticky send error: once a send fails the channel is
// gone and every later emit is a no-op.
type agent struct {
	ctx    context.Context
	ctrl   controlSender
	speech speechWriter
	now    func() time.Time
	log    *slog.Logger

	err       error
	messageID int64
}

func (a *agent) nextMessageID() int64 {
	a.messageID++
	return a.messageID
}

func (a *agent) send(v any) {
	if a.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		a.err = err
		return
	}
	if err := a.ctrl.Send(data); err != nil {
		a.log.Debug("control send failed", "error", err)
		a.err = err
	}
}

func (a *agent) emitStatus(status protocol.PipelineStatus) {
	a.send(protocol.StatusMessage{Type: protocol.TypeStatus, Status: status})
}

func (a *agent) emitTranscript(role protocol.Role, text string, messageID int64, final bool) {
	ts := a.now().UnixMilli()
	a.send(protocol.TranscriptMessage{
		Type:        protocol.TypeTranscript,
		Role:        role,
		Text:        text,
		MessageID:   &messageID,
		TimestampMS: &ts,
		Final:       &final,
	})
}

func (a *agent) emitLog(text string) {
	a.send(protocol.LogMessage{Type: protocol.TypeLog, Text: text})
}

// speak queues a tone burst as the agent's speech.
func (a *agent) speak(d time.Duration) {
	if a.err != nil || a.speech == nil {
		return
	}
	a.speech.WritePCM(tonePCM(d))
}

func (a *agent) wait(d time.Duration) bool {
	if a.err != nil {
		return false
	}
	select {
	case <-a.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// firstWords returns roughly the first half of a line, as a streaming
// transcript fragment would look mid-utterance.
func firstWords(s string) string {
	words := strings.Fields(s)
	if len(words) < 2 {
		return s
	}
	return strings.Join(words[:(len(words)+1)/2], " ")
}

// tonePCM synthesizes a 440Hz sine at 48kHz mono PCM16LE standing in for
// real TTS output.
func tonePCM(d time.Duration) []byte {
	const (
		sampleRate = 48000
		amplitude  = 6000
		freq       = 440.0
	)
	samples := int(sampleRate * d / time.Second)
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return buf
}
