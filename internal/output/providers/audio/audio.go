// Package audio holds the PCM plumbing shared by audio-emitting output
// providers: format conversion between what the TTS backend produces and
// what a playback target wants, and Opus framing for Discord-compatible
// targets. All PCM is little-endian int16.
package audio

import (
	"fmt"
	"math"

	"layeh.com/gopus"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Convert re-renders pcm from src format into dst format, resampling first
// and channel-converting second, so a stereo source is resampled as stereo
// before any downmix to mono. If the formats already match, pcm is returned
// unchanged.
func Convert(pcm []byte, src, dst Format) []byte {
	if len(pcm)%2 != 0 {
		// Truncated int16 sample; drop the dangling byte.
		pcm = pcm[:len(pcm)-1]
	}
	if src == dst || len(pcm) == 0 {
		return pcm
	}

	rate := src.SampleRate
	channels := src.Channels
	if rate != dst.SampleRate {
		if channels == 1 {
			pcm = ResampleMono16(pcm, rate, dst.SampleRate)
		} else {
			pcm = ResampleStereo16(pcm, rate, dst.SampleRate)
		}
		rate = dst.SampleRate
	}
	if channels != dst.Channels {
		switch {
		case channels == 1 && dst.Channels == 2:
			pcm = MonoToStereo(pcm)
		case channels == 2 && dst.Channels == 1:
			pcm = StereoToMono(pcm)
		}
	}
	return pcm
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// StereoToMono averages L+R per stereo frame, clamping to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// ResampleStereo16 resamples 16-bit interleaved stereo PCM from srcRate to
// dstRate using linear interpolation per channel.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 4 {
		return pcm
	}
	srcFrames := len(pcm) / 4
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*4)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		l0 := int16(pcm[srcIdx*4]) | int16(pcm[srcIdx*4+1])<<8
		r0 := int16(pcm[srcIdx*4+2]) | int16(pcm[srcIdx*4+3])<<8
		l1, r1 := l0, r0
		if srcIdx+1 < srcFrames {
			l1 = int16(pcm[(srcIdx+1)*4]) | int16(pcm[(srcIdx+1)*4+1])<<8
			r1 = int16(pcm[(srcIdx+1)*4+2]) | int16(pcm[(srcIdx+1)*4+3])<<8
		}
		lv := int16(float64(l0)*(1-frac) + float64(l1)*frac)
		rv := int16(float64(r0)*(1-frac) + float64(r1)*frac)
		out[i*4] = byte(lv)
		out[i*4+1] = byte(lv >> 8)
		out[i*4+2] = byte(rv)
		out[i*4+3] = byte(rv >> 8)
	}
	return out
}

// RMS returns the root-mean-square level of the PCM data normalized to
// [0, 1], used to drive mouth-open lip-sync parameters.
func RMS(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		s := float64(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		sum += s * s
	}
	v := math.Sqrt(sum/float64(samples)) / 32768.0
	if v > 1 {
		v = 1
	}
	return v
}

// OpusFrame is the fixed Discord voice format: 48 kHz stereo, 20 ms frames.
const (
	OpusSampleRate = 48000
	OpusChannels   = 2
	OpusFrameMs    = 20
	OpusFrameSize  = OpusSampleRate * OpusFrameMs / 1000 // samples per channel
	opusFrameBytes = OpusFrameSize * OpusChannels * 2
	opusMaxEncoded = 4000
)

// OpusEncoder frames arbitrary-length 48 kHz stereo PCM into fixed 20 ms
// Opus packets, buffering any remainder between calls. It is not safe for
// concurrent use; give each utterance stream its own encoder.
type OpusEncoder struct {
	enc     *gopus.Encoder
	pending []byte
}

// NewOpusEncoder creates an encoder in Discord's voice format.
func NewOpusEncoder() (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(OpusSampleRate, OpusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// Encode appends pcm to the pending buffer and returns every complete 20 ms
// Opus packet now available. Leftover PCM shorter than one frame stays
// buffered for the next call.
func (e *OpusEncoder) Encode(pcm []byte) ([][]byte, error) {
	e.pending = append(e.pending, pcm...)

	var packets [][]byte
	for len(e.pending) >= opusFrameBytes {
		frame := bytesToInt16s(e.pending[:opusFrameBytes])
		e.pending = e.pending[opusFrameBytes:]
		packet, err := e.enc.Encode(frame, OpusFrameSize, opusMaxEncoded)
		if err != nil {
			return packets, fmt.Errorf("audio: opus encode: %w", err)
		}
		packets = append(packets, packet)
	}
	return packets, nil
}

// Flush zero-pads any pending partial frame to a full 20 ms and encodes it,
// ending the utterance cleanly. A no-op when nothing is pending.
func (e *OpusEncoder) Flush() ([]byte, error) {
	if len(e.pending) == 0 {
		return nil, nil
	}
	frame := make([]byte, opusFrameBytes)
	copy(frame, e.pending)
	e.pending = nil
	packet, err := e.enc.Encode(bytesToInt16s(frame), OpusFrameSize, opusMaxEncoded)
	if err != nil {
		return nil, fmt.Errorf("audio: opus flush: %w", err)
	}
	return packet, nil
}

func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
