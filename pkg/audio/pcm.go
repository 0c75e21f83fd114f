package audio

import (
	"encoding/base64"
	"encoding/binary"
)

const (
	// CaptureSampleRate is the rate microphone frames are produced and sent at.
	CaptureSampleRate = 16000

	// PlaybackSampleRate is the rate of synthesized speech received from the remote service.
	PlaybackSampleRate = 24000

	// DefaultFrameSize is the number of samples per capture frame.
	DefaultFrameSize = 4096
)

// EncodePCM16 converts float samples to 16-bit signed little-endian PCM.
// Samples are clamped to [-1,1]; negatives scale by 32768, the rest by 32767.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// DecodePCM16 turns raw 16-bit little-endian PCM into a playable buffer.
// A trailing odd byte is dropped and an empty payload yields one frame of silence.
func DecodePCM16(data []byte, sampleRate, channels int) *Buffer {
	if channels < 1 {
		channels = 1
	}
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}

	frames := len(data) / 2 / channels
	if frames == 0 {
		return NewSilence(sampleRate, channels, 1)
	}

	buf := NewSilence(sampleRate, channels, frames)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			v := int16(binary.LittleEndian.Uint16(data[off:]))
			buf.data[ch][i] = float32(v) / 32768
		}
	}
	return buf
}

// EncodeBase64 frames raw bytes for a text transport.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 reverses EncodeBase64.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
