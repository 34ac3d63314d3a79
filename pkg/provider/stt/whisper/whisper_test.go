package whisper

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mai-with-u/amaidesu/pkg/provider/stt"
	"github.com/Mai-with-u/amaidesu/pkg/types"
)

// pcmChunk builds ms milliseconds of 16 kHz mono PCM at the given
// amplitude (0 = silence).
func pcmChunk(ms int, amplitude int16) []byte {
	samples := 16000 * ms / 1000
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(amplitude))
	}
	return out
}

func TestNewValidation(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("empty server URL should be rejected")
	}
	if _, err := NewNative(""); err == nil {
		t.Error("empty model path should be rejected")
	}
}

func TestSessionSegmentsOnSilence(t *testing.T) {
	t.Parallel()
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("not a multipart upload: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing wav file field: %v", err)
		}
		if lang := r.FormValue("language"); lang != "ja" {
			t.Errorf("language field = %q, want ja", lang)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": " konnichiwa chat "})
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithSilenceThresholdMs(100))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "ja"})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer h.Close()

	// Speech, then enough silence to cross the 100 ms threshold.
	if err := h.SendAudio(pcmChunk(200, 2000)); err != nil {
		t.Fatalf("SendAudio speech: %v", err)
	}
	if err := h.SendAudio(pcmChunk(150, 0)); err != nil {
		t.Fatalf("SendAudio silence: %v", err)
	}

	select {
	case tr := <-h.Finals():
		if tr.Text != "konnichiwa chat" {
			t.Errorf("final text = %q (trimming expected)", tr.Text)
		}
		if !tr.IsFinal {
			t.Error("final transcript should be marked IsFinal")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no final transcript")
	}

	select {
	case tr := <-h.Partials():
		if tr.IsFinal {
			t.Error("partial should not be marked IsFinal")
		}
	case <-time.After(time.Second):
		t.Fatal("no partial transcript")
	}

	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d inference calls, want 1", got)
	}
}

func TestLeadingSilenceNeverFlushes(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("pure silence must not reach the server")
	}))
	defer srv.Close()

	p, _ := New(srv.URL, WithSilenceThresholdMs(50))
	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	for range 5 {
		h.SendAudio(pcmChunk(100, 0))
	}
	time.Sleep(100 * time.Millisecond)
	h.Close()
}

func TestCloseFlushesPendingSpeech(t *testing.T) {
	t.Parallel()
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"text": "cut off mid sentence"})
	}))
	defer srv.Close()

	p, _ := New(srv.URL, WithSilenceThresholdMs(10_000)) // never crossed
	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := h.SendAudio(pcmChunk(200, 2000)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	// Give the segmenter a moment to drain the audio channel, then Close;
	// the buffered speech must flush as a last utterance.
	time.Sleep(50 * time.Millisecond)
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d calls, want the close-time flush", got)
	}
	if _, open := <-h.Finals(); open {
		// The flushed transcript is fine; the channel must end closed.
		if _, open := <-h.Finals(); open {
			t.Error("finals channel still open after Close")
		}
	}
}

func TestSendAudioAfterClose(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": ""})
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	h, _ := p.StartStream(context.Background(), stt.StreamConfig{})
	h.Close()
	if err := h.SendAudio(pcmChunk(20, 100)); err == nil {
		t.Error("SendAudio after Close should fail")
	}
	// Close twice is safe.
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSetKeywordsUnsupported(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	p, _ := New(srv.URL)
	h, _ := p.StartStream(context.Background(), stt.StreamConfig{})
	defer h.Close()
	if err := h.SetKeywords([]types.KeywordBoost{{Keyword: "Amaidesu", Boost: 5}}); err == nil {
		t.Error("keyword boosting should report unsupported")
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()
	if got := rms(nil); got != 0 {
		t.Errorf("rms(nil) = %v", got)
	}
	if got := rms(pcmChunk(10, 0)); got != 0 {
		t.Errorf("rms(silence) = %v", got)
	}
	got := rms(pcmChunk(10, 1000))
	if math.Abs(got-1000) > 1 {
		t.Errorf("rms(constant 1000) = %v, want ~1000", got)
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	t.Parallel()
	pcm := pcmChunk(10, 100) // 160 samples, 320 bytes
	wav := encodeWAV(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d", rate)
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); int(size) != len(pcm) {
		t.Errorf("data size = %d, want %d", size, len(pcm))
	}
}

func TestPcmToFloat32Mono(t *testing.T) {
	t.Parallel()
	// Stereo frame L=16384 R=-16384 averages to 0; second frame both 8192.
	pcm := make([]byte, 8)
	binary.LittleEndian.PutUint16(pcm[0:], uint16(int16(16384)))
	binary.LittleEndian.PutUint16(pcm[2:], uint16(int16(-16384)))
	binary.LittleEndian.PutUint16(pcm[4:], uint16(int16(8192)))
	binary.LittleEndian.PutUint16(pcm[6:], uint16(int16(8192)))

	out := pcmToFloat32Mono(pcm, 2)
	if len(out) != 2 {
		t.Fatalf("frames = %d, want 2", len(out))
	}
	if math.Abs(float64(out[0])) > 0.001 {
		t.Errorf("frame 0 = %f, want ~0", out[0])
	}
	if math.Abs(float64(out[1])-0.25) > 0.001 {
		t.Errorf("frame 1 = %f, want ~0.25", out[1])
	}
}
