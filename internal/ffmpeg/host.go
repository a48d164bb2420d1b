package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/recapcannon/internal/capture"
	"github.com/kikiluvv/recapcannon/internal/container"
	"github.com/kikiluvv/recapcannon/internal/media"
	"github.com/kikiluvv/recapcannon/internal/mjpeg"
)

// supportTimeout bounds the muxer and encoder queries
const supportTimeout = 10 * time.Second

// Host provides the production media capabilities
type Host struct {
	exec    *Executor
	tempDir string
	logger  zerolog.Logger

	once    sync.Once
	support *Support
}

var _ capture.Host = (*Host)(nil)

// NewHost wraps an executor. Motion-JPEG temp files go to tempDir.
func NewHost(exec *Executor, tempDir string, logger zerolog.Logger) *Host {
	return &Host{
		exec:    exec,
		tempDir: tempDir,
		logger:  logger.With().Str("component", "host").Logger(),
	}
}

// Executor returns the underlying executor
func (h *Host) Executor() *Executor {
	return h.exec
}

// OpenVideo opens a decoding playback element
func (h *Host) OpenVideo(ctx context.Context, src media.Source) (media.VideoElement, error) {
	return h.exec.OpenPlayer(ctx, src), nil
}

// NewAudioGraph creates an empty mixing graph
func (h *Host) NewAudioGraph(ctx context.Context, sampleRate int) (media.AudioGraph, error) {
	return h.exec.NewAudioGraph(sampleRate), nil
}

// Support queries ffmpeg once for its muxers and encoders
func (h *Host) Support() container.Support {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), supportTimeout)
		defer cancel()
		h.support = h.exec.QuerySupport(ctx)
	})
	return h.support
}

// NewRecorder routes Motion-JPEG to the pure Go recorder and everything
// else to an ffmpeg encoder
func (h *Host) NewRecorder(stream media.Stream, format container.Format) (media.Recorder, error) {
	if format.Native() {
		return mjpeg.New(stream, h.tempDir, h.logger)
	}
	return h.exec.NewRecorder(stream, format)
}

// Support answers IsTypeSupported from the muxers and encoders compiled
// into the local ffmpeg
type Support struct {
	Muxers   map[string]bool
	Encoders map[string]bool
}

// QuerySupport lists muxers and encoders. Failures leave both sets empty,
// which still allows the native fallback.
func (e *Executor) QuerySupport(ctx context.Context) *Support {
	s := &Support{Muxers: map[string]bool{}, Encoders: map[string]bool{}}

	out, err := e.output(ctx, "-muxers")
	if err != nil {
		e.logger.Warn().Err(err).Msg("muxer query failed")
		return s
	}
	s.Muxers = parseCodecList(out)

	out, err = e.output(ctx, "-encoders")
	if err != nil {
		e.logger.Warn().Err(err).Msg("encoder query failed")
		return s
	}
	s.Encoders = parseCodecList(out)

	e.logger.Debug().
		Int("muxers", len(s.Muxers)).
		Int("encoders", len(s.Encoders)).
		Msg("queried ffmpeg capabilities")
	return s
}

// IsTypeSupported reports whether the container and both codecs exist
func (s *Support) IsTypeSupported(mime string) bool {
	f, ok := container.Lookup(mime)
	if !ok {
		return false
	}
	if f.Native() {
		return true
	}
	if !s.Muxers[f.Muxer] || !s.Encoders[f.VideoCodec] {
		return false
	}
	return f.AudioCodec == "" || s.Encoders[f.AudioCodec]
}

// parseCodecList reads the name column of `ffmpeg -muxers` or `-encoders`
// output. Entries follow the "--" separator line (encoders) or the legend
// (muxers), as "<flags> <name[,alias]> <description>".
func parseCodecList(out []byte) map[string]bool {
	names := map[string]bool{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	inList := false

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "--" || strings.HasPrefix(trimmed, "---") {
			inList = true
			continue
		}
		if !inList {
			continue
		}

		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			continue
		}
		for _, name := range strings.Split(fields[1], ",") {
			names[name] = true
		}
	}
	return names
}
