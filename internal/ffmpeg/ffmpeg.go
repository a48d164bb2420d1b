// Package ffmpeg implements the media host capabilities on top of the ffmpeg
// and ffprobe binaries: a decoding playback element, an audio graph and a
// streaming recorder.
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/recapcannon/internal/config"
)

// Executor builds ffmpeg and ffprobe invocations
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
	cfg         config.FFmpegConfig
}

// New creates a new ffmpeg executor
func New(logger zerolog.Logger, cfg config.FFmpegConfig) (*Executor, error) {
	bin := cfg.BinaryPath
	if bin == "" {
		bin = "ffmpeg"
	}
	probe := cfg.ProbePath
	if probe == "" {
		probe = "ffprobe"
	}

	ffmpegPath, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath(probe)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     cfg.Threads,
		cfg:         cfg,
	}, nil
}

// command prepares an ffmpeg process. progress adds machine readable
// progress blocks on stderr.
func (e *Executor) command(ctx context.Context, progress bool, args ...string) *exec.Cmd {
	// Build args with threads BEFORE other arguments
	baseArgs := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}

	if e.threads > 0 {
		baseArgs = append(baseArgs, "-threads", strconv.Itoa(e.threads))
	}
	if progress {
		baseArgs = append(baseArgs, "-progress", "pipe:2")
	}

	full := append(baseArgs, args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", full).
		Msg("executing ffmpeg")

	return exec.CommandContext(ctx, e.ffmpegPath, full...)
}

// output runs ffmpeg to completion and returns stdout
func (e *Executor) output(ctx context.Context, args ...string) ([]byte, error) {
	out, err := e.command(ctx, false, args...).Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg execution failed: %w", err)
	}
	return out, nil
}

// streamOutput parses ffmpeg output and calls handlers
func streamOutput(r io.Reader, progressHandler func(*Progress), logHandler func(string)) {
	scanner := bufio.NewScanner(r)
	progressData := &Progress{}

	for scanner.Scan() {
		line := scanner.Text()

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			if logHandler != nil {
				logHandler(line)
			}
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "frame":
			progressData.Frame, _ = strconv.Atoi(value)
		case "fps":
			progressData.FPS, _ = strconv.ParseFloat(value, 64)
		case "bitrate":
			progressData.Bitrate = value
		case "total_size":
			progressData.Size, _ = strconv.ParseInt(value, 10, 64)
		case "out_time":
			progressData.Time = value
		case "speed":
			progressData.Speed = value
		case "progress":
			// End of progress block
			progressData.Done = value == "end"
			if progressHandler != nil && (progressData.Frame > 0 || progressData.Done) {
				progressHandler(progressData)
			}
			progressData = &Progress{}
		default:
			if logHandler != nil && !isProgressKey(key) {
				logHandler(line)
			}
		}
	}
}

func isProgressKey(key string) bool {
	switch key {
	case "out_time_us", "out_time_ms", "dup_frames", "drop_frames", "stream_0_0_q", "stream_1_0_q":
		return true
	}
	return false
}
