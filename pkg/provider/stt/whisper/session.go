package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Mai-with-u/amaidesu/pkg/provider/stt"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// speechRMS is the 16-bit-PCM energy level separating speech from room
// noise; 32767 is full scale, 300 is near-silence.
const speechRMS = 300.0

// session implements stt.SessionHandle over any engine: it owns the
// segmenter goroutine that gates, buffers, and flushes utterances. All
// buffering state lives in that one goroutine, so none of it needs a lock.
type session struct {
	engine     engine
	language   string
	sampleRate int
	channels   int
	silenceMs  int
	maxBytes   int

	audio    chan []byte
	partials chan types.Transcript
	finals   chan types.Transcript

	closed    chan struct{}
	closeOnce sync.Once
	loopDone  sync.WaitGroup
}

// startSession resolves per-stream overrides against the provider settings
// and launches the segmenter.
func startSession(ctx context.Context, eng engine, cfg settings, stream stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}

	if stream.Language != "" {
		cfg.language = stream.Language
	}
	if stream.SampleRate > 0 {
		cfg.sampleRate = stream.SampleRate
	}
	channels := stream.Channels
	if channels <= 0 {
		channels = 1
	}

	bytesPerSecond := cfg.sampleRate * channels * 2
	s := &session{
		engine:     eng,
		language:   cfg.language,
		sampleRate: cfg.sampleRate,
		channels:   channels,
		silenceMs:  cfg.silenceMs,
		maxBytes:   int(cfg.maxUtterance.Seconds() * float64(bytesPerSecond)),
		audio:      make(chan []byte, 256),
		partials:   make(chan types.Transcript, 64),
		finals:     make(chan types.Transcript, 64),
		closed:     make(chan struct{}),
	}
	s.loopDone.Add(1)
	go s.segment(ctx)
	return s, nil
}

// SendAudio queues one PCM chunk for segmentation. Returns an error after
// Close.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.closed:
		return errors.New("whisper: session closed")
	case s.audio <- chunk:
		return nil
	}
}

// Partials returns the interim transcript channel. With a batch engine
// each partial mirrors its final.
func (s *session) Partials() <-chan types.Transcript { return s.partials }

// Finals returns the authoritative transcript channel.
func (s *session) Finals() <-chan types.Transcript { return s.finals }

// SetKeywords refuses the hint; see ErrNoKeywordBoost.
func (s *session) SetKeywords([]types.KeywordBoost) error {
	return fmt.Errorf("whisper: %w", ErrNoKeywordBoost)
}

// Close flushes any buffered speech as a last utterance, closes both
// transcript channels, and releases the session. Idempotent.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.loopDone.Wait()
	})
	return nil
}

var _ stt.SessionHandle = (*session)(nil)

// segment is the one goroutine that owns utterance state: leading silence
// is discarded, speech (plus embedded pauses) accumulates, and crossing
// the silence threshold or the size cap flushes the buffer to the engine.
func (s *session) segment(ctx context.Context) {
	defer s.loopDone.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		utterance []byte
		speaking  bool
		quietMs   int
	)

	flush := func(flushCtx context.Context) {
		if !speaking || len(utterance) == 0 {
			utterance, speaking, quietMs = nil, false, 0
			return
		}
		pcm := utterance
		utterance, speaking, quietMs = nil, false, 0

		text, err := s.engine.transcribe(flushCtx, pcm, s.sampleRate, s.channels, s.language)
		if err != nil {
			slog.Warn("whisper transcription failed", "error", err)
			return
		}
		if text == "" {
			return
		}
		s.offer(s.partials, types.Transcript{Text: text})
		s.offer(s.finals, types.Transcript{Text: text, IsFinal: true})
	}

	// The terminal flush runs on its own deadline: the caller's ctx is
	// often already cancelled when Close arrives.
	finalFlush := func() {
		fctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		flush(fctx)
	}

	for {
		select {
		case <-ctx.Done():
			finalFlush()
			return
		case <-s.closed:
			finalFlush()
			return
		case chunk := <-s.audio:
			if rms(chunk) >= speechRMS {
				speaking = true
				quietMs = 0
				utterance = append(utterance, chunk...)
				if s.maxBytes > 0 && len(utterance) >= s.maxBytes {
					flush(ctx)
				}
				continue
			}
			if !speaking {
				continue // leading silence never buffers
			}
			utterance = append(utterance, chunk...)
			quietMs += len(chunk) * 1000 / (s.sampleRate * s.channels * 2)
			if quietMs >= s.silenceMs {
				flush(ctx)
			}
		}
	}
}

// offer is a non-blocking send: transcripts drop rather than wedging the
// segmenter when a consumer has stopped reading.
func (s *session) offer(ch chan types.Transcript, t types.Transcript) {
	select {
	case ch <- t:
	default:
	}
}

// rms returns the root-mean-square energy of 16-bit little-endian PCM, in
// sample units.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// encodeWAV wraps raw 16-bit PCM in a minimal RIFF container, the upload
// format whisper-server expects.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const headerSize = 44
	out := make([]byte, headerSize+len(pcm))

	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(headerSize-8+len(pcm)))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16) // PCM header length
	binary.LittleEndian.PutUint16(out[20:], 1)  // PCM format
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(out[32:], uint16(channels*2))
	binary.LittleEndian.PutUint16(out[34:], 16) // bits per sample
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(len(pcm)))
	copy(out[headerSize:], pcm)
	return out
}

// pcmToFloat32Mono converts interleaved 16-bit PCM to the normalised mono
// float32 samples the CGO bindings consume, averaging channels per frame.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			idx := (f*channels + c) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[idx:idx+2]))) / 32768.0
		}
		out[f] = sum / float32(channels)
	}
	return out
}
