package audio

import (
	"bytes"
	"testing"
)

func pcmFromSamples(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

func TestConvertPassthrough(t *testing.T) {
	pcm := pcmFromSamples([]int16{100, -100, 32767, -32768})
	f := Format{SampleRate: 48000, Channels: 2}
	got := Convert(pcm, f, f)
	if !bytes.Equal(got, pcm) {
		t.Error("matching formats must return the input unchanged")
	}
}

func TestConvertDropsDanglingByte(t *testing.T) {
	pcm := []byte{1, 2, 3}
	got := Convert(pcm, Format{SampleRate: 16000, Channels: 1}, Format{SampleRate: 16000, Channels: 1})
	if len(got) != 2 {
		t.Errorf("len = %d, want 2 (odd trailing byte dropped)", len(got))
	}
}

func TestMonoToStereoRoundTrip(t *testing.T) {
	mono := pcmFromSamples([]int16{1000, -2000, 3000})
	stereo := MonoToStereo(mono)
	if len(stereo) != len(mono)*2 {
		t.Fatalf("stereo len = %d, want %d", len(stereo), len(mono)*2)
	}
	back := StereoToMono(stereo)
	if !bytes.Equal(back, mono) {
		t.Error("mono -> stereo -> mono should be lossless for identical channels")
	}
}

func TestStereoToMonoClamps(t *testing.T) {
	// Both channels at extremes average without overflow.
	stereo := pcmFromSamples([]int16{32767, 32767, -32768, -32768})
	mono := StereoToMono(stereo)
	want := pcmFromSamples([]int16{32767, -32768})
	if !bytes.Equal(mono, want) {
		t.Errorf("mono = %v, want %v", mono, want)
	}
}

func TestResampleMono16Doubles(t *testing.T) {
	src := pcmFromSamples(make([]int16, 160)) // 10 ms at 16 kHz
	out := ResampleMono16(src, 16000, 32000)
	if len(out) != len(src)*2 {
		t.Errorf("resampled len = %d, want %d", len(out), len(src)*2)
	}
}

func TestResampleSameRateIsIdentity(t *testing.T) {
	src := pcmFromSamples([]int16{1, 2, 3, 4})
	if got := ResampleMono16(src, 16000, 16000); !bytes.Equal(got, src) {
		t.Error("same-rate resample must be identity")
	}
}

func TestConvertTTSFormatToDiscordFormat(t *testing.T) {
	// 100 ms of 16 kHz mono becomes 100 ms of 48 kHz stereo.
	src := pcmFromSamples(make([]int16, 1600))
	out := Convert(src, Format{SampleRate: 16000, Channels: 1}, Format{SampleRate: OpusSampleRate, Channels: OpusChannels})
	wantSamples := 4800 * 2
	if len(out) != wantSamples*2 {
		t.Errorf("converted bytes = %d, want %d", len(out), wantSamples*2)
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := RMS(pcmFromSamples(make([]int16, 100))); got != 0 {
		t.Errorf("RMS(silence) = %v, want 0", got)
	}
	loud := make([]int16, 100)
	for i := range loud {
		loud[i] = 32767
	}
	if got := RMS(pcmFromSamples(loud)); got < 0.99 {
		t.Errorf("RMS(full scale) = %v, want ~1", got)
	}
	quiet := make([]int16, 100)
	for i := range quiet {
		quiet[i] = 3276
	}
	got := RMS(pcmFromSamples(quiet))
	if got < 0.05 || got > 0.15 {
		t.Errorf("RMS(10%% scale) = %v, want ~0.1", got)
	}
}

func TestOpusEncoderFraming(t *testing.T) {
	enc, err := NewOpusEncoder()
	if err != nil {
		t.Fatalf("NewOpusEncoder: %v", err)
	}

	frameBytes := OpusFrameSize * OpusChannels * 2

	// Half a frame buffers with no output.
	packets, err := enc.Encode(make([]byte, frameBytes/2))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packets) != 0 {
		t.Fatalf("half frame produced %d packets, want 0", len(packets))
	}

	// The second half plus one extra frame yields exactly two packets.
	packets, err = enc.Encode(make([]byte, frameBytes/2+frameBytes))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(packets))
	}

	// Nothing pending: Flush is a no-op.
	packet, err := enc.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if packet != nil {
		t.Error("Flush with empty buffer should return nil")
	}

	// A trailing partial frame is padded and flushed as one packet.
	if _, err := enc.Encode(make([]byte, 100)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	packet, err = enc.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if packet == nil {
		t.Error("Flush with pending audio should return a packet")
	}
}
