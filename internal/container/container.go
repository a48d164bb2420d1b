// Package container picks the output container and codec for a recording
// from an ordered preference list.
package container

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedContainer is returned when no preferred MIME type is supported
var ErrUnsupportedContainer = errors.New("no supported output container")

// MotionJPEG is the pure-Go fallback that every host can produce
const MotionJPEG = "video/x-motion-jpeg"

// Format describes how a MIME type is produced
type Format struct {
	MimeType   string
	Muxer      string
	VideoCodec string
	AudioCodec string
	Extension  string
	// Streamable containers can be emitted in chunks while recording
	Streamable bool
	// MuxerFlags are extra ffmpeg output options, e.g. fragmented mp4
	MuxerFlags []string
}

// Native reports whether the format is produced without ffmpeg
func (f Format) Native() bool {
	return f.MimeType == MotionJPEG
}

var formats = map[string]Format{
	"video/mp4;codecs=avc1": {
		MimeType: "video/mp4;codecs=avc1", Muxer: "mp4", VideoCodec: "libx264", AudioCodec: "aac",
		Extension: ".mp4", Streamable: true,
		MuxerFlags: []string{"-movflags", "frag_keyframe+empty_moov+default_base_moof"},
	},
	"video/mp4": {
		MimeType: "video/mp4", Muxer: "mp4", VideoCodec: "libx264", AudioCodec: "aac",
		Extension: ".mp4", Streamable: true,
		MuxerFlags: []string{"-movflags", "frag_keyframe+empty_moov+default_base_moof"},
	},
	"video/webm;codecs=vp9": {
		MimeType: "video/webm;codecs=vp9", Muxer: "webm", VideoCodec: "libvpx-vp9", AudioCodec: "libopus",
		Extension: ".webm", Streamable: true,
		MuxerFlags: []string{"-deadline", "realtime", "-cpu-used", "8"},
	},
	"video/x-matroska;codecs=avc1": {
		MimeType: "video/x-matroska;codecs=avc1", Muxer: "matroska", VideoCodec: "libx264", AudioCodec: "libopus",
		Extension: ".mkv", Streamable: true,
	},
	"video/webm": {
		MimeType: "video/webm", Muxer: "webm", VideoCodec: "libvpx", AudioCodec: "libvorbis",
		Extension: ".webm", Streamable: true,
		MuxerFlags: []string{"-deadline", "realtime", "-cpu-used", "8"},
	},
	"video/quicktime": {
		MimeType: "video/quicktime", Muxer: "mov", VideoCodec: "libx264", AudioCodec: "aac",
		Extension: ".mov", Streamable: true,
		MuxerFlags: []string{"-movflags", "frag_keyframe+empty_moov"},
	},
	MotionJPEG: {
		MimeType: MotionJPEG, Muxer: "avi", VideoCodec: "mjpeg",
		Extension: ".avi",
	},
}

// aliases maps MIME types that name another container's Format. Browsers
// answer "video/webm;codecs=h264" with matroska, so it resolves to the
// matroska entry.
var aliases = map[string]string{
	"video/webm;codecs=h264": "video/x-matroska;codecs=avc1",
}

// DefaultPreferences is the ordered preference list, ending with the
// always-available Motion-JPEG fallback
var DefaultPreferences = []string{
	"video/mp4;codecs=avc1",
	"video/mp4",
	"video/webm;codecs=vp9",
	"video/x-matroska;codecs=avc1",
	"video/webm",
	"video/quicktime",
	MotionJPEG,
}

// Support answers whether the host can record a MIME type
type Support interface {
	IsTypeSupported(mime string) bool
}

// Lookup returns the Format for a MIME type
func Lookup(mime string) (Format, bool) {
	key := normalize(mime)
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	f, ok := formats[key]
	return f, ok
}

// Select returns the first preference that is known and supported. An
// empty prefs uses DefaultPreferences.
func Select(support Support, prefs []string) (Format, error) {
	if len(prefs) == 0 {
		prefs = DefaultPreferences
	}

	for _, mime := range prefs {
		f, ok := Lookup(mime)
		if !ok {
			continue
		}
		if f.Native() || support.IsTypeSupported(f.MimeType) {
			return f, nil
		}
	}

	return Format{}, fmt.Errorf("%w: tried %s", ErrUnsupportedContainer, strings.Join(prefs, ", "))
}

// Known lists every MIME type with a Format, in default preference order
func Known() []string {
	return append([]string(nil), DefaultPreferences...)
}

func normalize(mime string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(mime)), " ", "")
}
