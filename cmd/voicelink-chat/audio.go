package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/halyard-ai/voicelink/pkg/session/transport"
)

// The transport carries 48kHz mono PCM16LE in both directions.
const (
	audioSampleRate = 48000
	audioChannels   = 1
)

// initAudio sets up microphone capture and speaker playback. The returned
// cleanup stops both devices; call it after the session is disconnected.
func initAudio() (*micReader, *speakerSink, func(), error) {
	malgoConfig := malgo.ContextConfig{}
	malgoConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, malgoConfig, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init capture context: %w", err)
	}

	mic, err := newMicReader(malgoCtx.Context)
	if err != nil {
		malgoCtx.Uninit()
		return nil, nil, nil, err
	}

	// ~100ms buffer keeps latency low without starving the device.
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   audioSampleRate,
		ChannelCount: audioChannels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		mic.Close()
		malgoCtx.Uninit()
		return nil, nil, nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	speaker := newSpeakerSink(otoCtx)

	cleanup := func() {
		mic.Close()
		speaker.Close()
		malgoCtx.Uninit()
	}
	return mic, speaker, cleanup, nil
}

// micReader captures microphone audio and exposes it as an io.Reader of
// PCM16LE frames. Read blocks until audio is available; after Close it
// returns io.EOF.
type micReader struct {
	device *malgo.Device

	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newMicReader(ctx malgo.Context) (*micReader, error) {
	m := &micReader{
		buf: make([]byte, 0, audioSampleRate*2),
	}
	m.cond = sync.NewCond(&m.mu)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = audioChannels
	deviceConfig.SampleRate = audioSampleRate
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, samples []byte, _ uint32) {
			m.mu.Lock()
			if !m.closed {
				m.buf = append(m.buf, samples...)
			}
			m.mu.Unlock()
			m.cond.Signal()
		},
	}

	device, err := malgo.InitDevice(ctx, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	m.device = device
	return m, nil
}

func (m *micReader) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.buf) == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.closed && len(m.buf) == 0 {
		return 0, io.EOF
	}

	n := copy(p, m.buf)
	m.buf = m.buf[n:]
	return n, nil
}

func (m *micReader) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()

	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
	}
}

// speakerSink plays remote agent tracks through the default output device.
// It implements the session's audio sink: Play starts a drain goroutine per
// track and returns immediately.
type speakerSink struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	player  *oto.Player
	playing bool
	closed  bool
}

func newSpeakerSink(ctx *oto.Context) *speakerSink {
	s := &speakerSink{
		otoCtx: ctx,
		buf:    make([]byte, 0, audioSampleRate*4),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Play drains the track into the playback buffer until it ends.
func (s *speakerSink) Play(track transport.Track) error {
	go func() {
		for {
			chunk, err := track.ReadChunk()
			if len(chunk) > 0 {
				s.write(chunk)
			}
			if err != nil {
				return
			}
		}
	}()
	return nil
}

func (s *speakerSink) write(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, data...)

	// Start the device player lazily on first audio.
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
}

// Read implements io.Reader for the oto player, which pulls audio for the
// device. Silence is returned once the sink is closed so oto can drain.
func (s *speakerSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *speakerSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()

	s.mu.Lock()
	player := s.player
	s.player = nil
	s.mu.Unlock()
	if player != nil {
		_ = player.Close()
	}
}
