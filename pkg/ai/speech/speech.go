// Package speech defines the provider-agnostic request/response shapes for
// text-to-speech synthesis and speech-to-text transcription. It carries no
// provider implementation; each ai/providers/* package maps these options
// onto its own SDK.
package speech

import "io"

// AudioFormat names an encoded audio container/codec.
type AudioFormat string

const (
	AudioFormatMP3 AudioFormat = "mp3"
	AudioFormatPCM AudioFormat = "pcm"
	AudioFormatOGG AudioFormat = "ogg"
	AudioFormatWAV AudioFormat = "wav"
)

// TTSUsage reports what a synthesis call cost to produce.
type TTSUsage struct {
	InputCharacters int
}

// Audio is a synthesized speech result.
type Audio struct {
	Content    io.Reader
	Format     AudioFormat
	SampleRate int
	Usage      TTSUsage
}

// SynthesisOptions configures a Synthesize call.
type SynthesisOptions struct {
	Model       string
	Voice       string
	AudioFormat AudioFormat
	SpeechRate  float64
	SampleRate  int
}

// SynthesisOption mutates a SynthesisOptions.
type SynthesisOption func(*SynthesisOptions)

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) { o.Voice = voice }
}

func WithAudioFormat(format AudioFormat) SynthesisOption {
	return func(o *SynthesisOptions) { o.AudioFormat = format }
}

func WithSpeechRate(rate float64) SynthesisOption {
	return func(o *SynthesisOptions) { o.SpeechRate = rate }
}

func WithSampleRate(rate int) SynthesisOption {
	return func(o *SynthesisOptions) { o.SampleRate = rate }
}

// Transcript is a speech-to-text result.
type Transcript struct {
	Text string
}

// TranscriptionOptions configures a Transcribe call.
type TranscriptionOptions struct {
	Model      string
	Language   string
	Timestamps bool
}

// TranscriptionOption mutates a TranscriptionOptions.
type TranscriptionOption func(*TranscriptionOptions)

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.Language = language }
}

func WithTimestamps(enabled bool) TranscriptionOption {
	return func(o *TranscriptionOptions) { o.Timestamps = enabled }
}
