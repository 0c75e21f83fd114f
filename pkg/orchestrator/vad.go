package orchestrator

import (
	"encoding/binary"
	"math"
	"time"
)

// RMSVAD is a Root Mean Square voice activity detector. During a call it
// drives the user level meter; it never decides what gets transmitted.
type RMSVAD struct {
	threshold    float64
	silenceLimit time.Duration
	isSpeaking   bool
	silenceStart time.Time

	consecutiveFrames int
	minConfirmed      int
	lastRMS           float64
	now               func() time.Time
}

// NewRMSVAD creates a new RMS-based VAD
func NewRMSVAD(threshold float64, silenceLimit time.Duration) *RMSVAD {
	return &RMSVAD{
		threshold:    threshold,
		silenceLimit: silenceLimit,
		// capture frames are ~250ms, so two loud frames confirm speech
		minConfirmed: 2,
		now:          time.Now,
	}
}

// SetMinConfirmed sets the number of consecutive frames needed to confirm speech start
func (v *RMSVAD) SetMinConfirmed(count int) {
	v.minConfirmed = count
}

func (v *RMSVAD) Threshold() float64 {
	return v.threshold
}

// LastRMS returns the RMS of the last processed frame
func (v *RMSVAD) LastRMS() float64 {
	return v.lastRMS
}

func (v *RMSVAD) IsSpeaking() bool {
	return v.isSpeaking
}

// Process consumes one 16-bit little-endian PCM frame.
func (v *RMSVAD) Process(chunk []byte) (*VADEvent, error) {
	rms := pcmRMS(chunk)
	v.lastRMS = rms
	now := v.now()

	if rms > v.threshold {
		v.consecutiveFrames++
		v.silenceStart = time.Time{}
		if !v.isSpeaking && v.consecutiveFrames >= v.minConfirmed {
			v.isSpeaking = true
			return &VADEvent{Type: VADSpeechStart, Timestamp: now.UnixMilli()}, nil
		}
		return nil, nil
	}

	v.consecutiveFrames = 0
	if !v.isSpeaking {
		return &VADEvent{Type: VADSilence, Timestamp: now.UnixMilli()}, nil
	}

	if v.silenceStart.IsZero() {
		v.silenceStart = now
	}
	if now.Sub(v.silenceStart) >= v.silenceLimit {
		v.isSpeaking = false
		v.silenceStart = time.Time{}
		return &VADEvent{Type: VADSpeechEnd, Timestamp: now.UnixMilli()}, nil
	}
	return nil, nil
}

func (v *RMSVAD) Name() string {
	return "rms_vad"
}

func (v *RMSVAD) Reset() {
	v.isSpeaking = false
	v.silenceStart = time.Time{}
	v.consecutiveFrames = 0
	v.lastRMS = 0
}

func (v *RMSVAD) Clone() VADProvider {
	return &RMSVAD{
		threshold:    v.threshold,
		silenceLimit: v.silenceLimit,
		minConfirmed: v.minConfirmed,
		now:          v.now,
	}
}

func pcmRMS(chunk []byte) float64 {
	n := len(chunk) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		f := float64(int16(binary.LittleEndian.Uint16(chunk[i*2:]))) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}
