package webrtcx

import (
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

const (
	sampleRate    = 48000
	frameSamples  = 960 // 20ms at 48kHz
	frameBytes    = frameSamples * 2
	frameDuration = 20 * time.Millisecond

	// 120ms is the largest opus frame; decode scratch must fit it.
	maxFrameSamples = 5760
	maxPacketBytes  = 4000
)

// PacedWriter encodes 48kHz mono PCM16LE to opus and writes it to a local
// track paced at one 20ms frame per tick. Used for the outbound microphone
// and by the dev harness for agent speech.
type PacedWriter struct {
	enc   *opus.Encoder
	track *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	pending []byte // raw PCM16LE awaiting a full frame
	frames  chan []byte
	stop    chan struct{}
	stopped bool
}

// NewPacedWriter constructs a writer and starts its pacer.
func NewPacedWriter(track *webrtc.TrackLocalStaticSample) (*PacedWriter, error) {
	enc, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	w := &PacedWriter{
		enc:    enc,
		track:  track,
		frames: make(chan []byte, 512),
		stop:   make(chan struct{}),
	}
	go w.pace()
	return w, nil
}

// WritePCM buffers PCM16LE 48kHz mono audio, encoding every complete 20ms
// frame. Blocks when the frame queue is full.
func (w *PacedWriter) WritePCM(pcm []byte) {
	if len(pcm) < 2 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, pcm...)

	buf := make([]byte, maxPacketBytes)
	for len(w.pending) >= frameBytes {
		frame := samplesFromPCM16LE(w.pending[:frameBytes])
		n, err := w.enc.Encode(frame, buf)
		if err == nil && n > 0 {
			pkt := make([]byte, n)
			copy(pkt, buf[:n])
			w.push(pkt)
		}
		rest := copy(w.pending, w.pending[frameBytes:])
		w.pending = w.pending[:rest]
	}
}

// FlushTail pads any residual samples to a full frame and appends a short
// silence tail so playback does not clip the final word.
func (w *PacedWriter) FlushTail() {
	w.mu.Lock()
	defer w.mu.Unlock()
	buf := make([]byte, maxPacketBytes)
	if len(w.pending) > 0 {
		frame := make([]int16, frameSamples)
		copy(frame, samplesFromPCM16LE(w.pending))
		if n, err := w.enc.Encode(frame, buf); err == nil && n > 0 {
			pkt := make([]byte, n)
			copy(pkt, buf[:n])
			w.push(pkt)
		}
		w.pending = w.pending[:0]
	}
	silence := make([]int16, frameSamples)
	for i := 0; i < 5; i++ {
		if n, err := w.enc.Encode(silence, buf); err == nil && n > 0 {
			pkt := make([]byte, n)
			copy(pkt, buf[:n])
			w.push(pkt)
		}
	}
}

// Reset drops all buffered and queued audio.
func (w *PacedWriter) Reset() {
	w.mu.Lock()
	w.pending = w.pending[:0]
	for {
		select {
		case <-w.frames:
		default:
			w.mu.Unlock()
			return
		}
	}
}

// Close stops the pacer. Safe to call more than once.
func (w *PacedWriter) Close() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stop)
	}
	w.mu.Unlock()
}

func (w *PacedWriter) push(pkt []byte) {
	select {
	case <-w.stop:
	case w.frames <- pkt:
	}
}

func (w *PacedWriter) pace() {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				_ = w.track.WriteSample(media.Sample{Data: frame, Duration: frameDuration})
			default:
			}
		}
	}
}

// remoteTrack adapts an inbound opus track to the transport.Track seam.
type remoteTrack struct {
	remote *webrtc.TrackRemote
	dec    *opus.Decoder
	pcm    []int16
	log    *slog.Logger
}

func newRemoteTrack(remote *webrtc.TrackRemote, log *slog.Logger) (*remoteTrack, error) {
	dec, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, err
	}
	return &remoteTrack{
		remote: remote,
		dec:    dec,
		pcm:    make([]int16, maxFrameSamples),
		log:    log,
	}, nil
}

func (t *remoteTrack) ID() string      { return t.remote.ID() }
func (t *remoteTrack) SampleRate() int { return sampleRate }
func (t *remoteTrack) Channels() int   { return 1 }

// ReadChunk blocks for the next RTP packet and returns its decoded PCM.
// Corrupt packets are skipped.
func (t *remoteTrack) ReadChunk() ([]byte, error) {
	for {
		pkt, _, err := t.remote.ReadRTP()
		if err != nil {
			return nil, err
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := t.dec.Decode(pkt.Payload, t.pcm)
		if err != nil {
			t.log.Debug("opus decode failed", "err", err)
			continue
		}
		if n == 0 {
			continue
		}
		return pcm16LEBytes(t.pcm[:n]), nil
	}
}

func pcm16LEBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func samplesFromPCM16LE(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
