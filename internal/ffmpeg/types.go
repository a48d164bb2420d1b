package ffmpeg

import "time"

// Info contains metadata about a media file
type Info struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	VideoCodec string
	HasVideo   bool
	HasAudio   bool
	AudioCodec string
	SampleRate int
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Size    int64
	Time    string
	Speed   string
	Done    bool
}

// Decoding and encoding defaults
const (
	// MaxDecodeEdge bounds the longer edge of decoded frames. It matches the
	// longest canonical canvas edge, so frames are never upscaled twice.
	MaxDecodeEdge  = 854
	MaxDecodeFPS   = 30.0
	DefaultCRF     = 23
	DefaultPreset  = "veryfast"
	AudioChannels  = 2
	frameQueueSize = 8
)
