// Package types defines the shared types used across all visema packages.
//
// These types form the lingua franca between the generator providers, the turn
// engines, and the server. They are intentionally minimal — each package defines
// its own domain types, but cross-cutting data structures live here to avoid
// circular imports.
package types

// Message represents a single entry in a session's conversation history.
type Message struct {
	// Role is "user" or "assistant" (providers may prepend "system").
	Role string

	// Content is the text content of the message.
	Content string
}

// Audio encodings the pipeline tags chunks with. Providers may use their own
// tag (e.g. "mock_mp3"); the pipeline never transcodes, it only labels.
const (
	EncodingMP3 = "mp3"
	EncodingPCM = "pcm"
)

// Video frame content types.
const (
	// ContentTypeJPEG marks standard JPEG bytes, decodable by any image library.
	ContentTypeJPEG = "jpeg"

	// ContentTypeH264NAL marks H.264 NAL units for video-streaming avatars.
	ContentTypeH264NAL = "h264_nal"

	// ContentTypeRawRGB marks width×height×3 raw bytes (stub avatar only).
	ContentTypeRawRGB = "raw_rgb"
)

// AudioChunk is a piece of synthesized speech flowing through the pipeline.
// It is an internal type: the wire form is AudioChunkEvent.
type AudioChunk struct {
	// Data holds raw encoded audio bytes (never base64 in memory).
	Data []byte

	// TimestampMs is the chunk's position on the turn's playback clock.
	TimestampMs float64

	// DurationMs is computed from Data and the declared format. It is
	// strictly positive for any non-empty chunk.
	DurationMs float64

	// SampleRate in Hz (24000 for both OpenAI TTS and Realtime output).
	SampleRate int

	// Encoding tags the container/codec of Data.
	Encoding string
}

// VideoFrame is one lip-synced avatar frame derived from an audio chunk.
// It is an internal type: the wire form is VideoFrameEvent.
type VideoFrame struct {
	// Data holds raw frame bytes; ContentType says how to interpret them.
	Data []byte

	// TimestampMs is the frame's position on the turn's playback clock.
	TimestampMs float64

	// FrameIndex increases strictly within a turn, starting at 0.
	FrameIndex int

	Width  int
	Height int

	// ContentType is one of the ContentType* constants.
	ContentType string
}

// EstimateMP3DurationMs returns the playback duration of raw MP3 bytes at a
// known constant bitrate.
func EstimateMP3DurationMs(data []byte, bitrateKbps int) float64 {
	if bitrateKbps <= 0 {
		return 0
	}
	return float64(len(data)*8) / float64(bitrateKbps*1000) * 1000
}

// EstimatePCMDurationMs returns the playback duration of raw 16-bit mono PCM
// at the given sample rate.
func EstimatePCMDurationMs(data []byte, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	samples := float64(len(data)) / 2
	return samples / float64(sampleRate) * 1000
}

// HealthStatus is a generator health probe result.
type HealthStatus struct {
	Healthy bool `json:"healthy"`

	// LatencyMs is the probe round-trip time. Zero when not measured.
	LatencyMs float64 `json:"latency_ms"`

	// Detail carries a short human-readable note (error text when unhealthy).
	Detail string `json:"detail,omitempty"`
}

// Capabilities describes what a generator supports.
type Capabilities struct {
	SupportsStreaming bool `json:"supports_streaming"`

	// SupportsEmotion indicates the generator reacts to EmotionControl
	// (directly or via a proxy such as voice selection).
	SupportsEmotion bool `json:"supports_emotion"`

	// SupportsIdentity indicates the generator can impersonate a specific
	// speaker identity (voice clone, face model).
	SupportsIdentity bool `json:"supports_identity"`

	// MaxTextLength is the longest input text accepted per call.
	MaxTextLength int `json:"max_text_length"`

	SupportedEmotions []string `json:"supported_emotions"`
}
