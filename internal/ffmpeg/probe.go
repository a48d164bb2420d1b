package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/kikiluvv/recapcannon/pkg/util"
)

// Probe extracts metadata from a media file
func (e *Executor) Probe(ctx context.Context, filePath string) (*Info, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path is required")
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	info, err := parseProbe(output)
	if err != nil {
		return nil, err
	}
	info.FilePath = filePath
	return info, nil
}

func parseProbe(output []byte) (*Info, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &Info{}

	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil && dur > 0 {
		info.Duration = util.Seconds(dur)
	}

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Width = stream.Width
			info.Height = stream.Height
			info.VideoCodec = stream.CodecName

			// r_frame_rate is a ratio, e.g. "30000/1001"
			if stream.RFrameRate != "" {
				info.FPS = util.ParseFrameRate(stream.RFrameRate)
			}
			if info.Duration == 0 {
				if dur, err := strconv.ParseFloat(stream.Duration, 64); err == nil && dur > 0 {
					info.Duration = util.Seconds(dur)
				}
			}
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.AudioCodec = stream.CodecName
			info.SampleRate, _ = strconv.Atoi(stream.SampleRate)
			if info.Duration == 0 {
				if dur, err := strconv.ParseFloat(stream.Duration, 64); err == nil && dur > 0 {
					info.Duration = util.Seconds(dur)
				}
			}
		}
	}

	return info, nil
}

// decodeSize fits w x h inside MaxDecodeEdge keeping the aspect ratio.
// Both results are even, as required by most pixel formats.
func decodeSize(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	longest := max(w, h)
	if longest > MaxDecodeEdge {
		w = w * MaxDecodeEdge / longest
		h = h * MaxDecodeEdge / longest
	}
	w, h = w&^1, h&^1
	return max(w, 2), max(h, 2)
}

// decodeRate caps the source frame rate, falling back to MaxDecodeFPS
func decodeRate(fps float64) float64 {
	if fps <= 0 || fps > MaxDecodeFPS {
		return MaxDecodeFPS
	}
	return fps
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		Duration   string `json:"duration"`
		SampleRate string `json:"sample_rate"`
	} `json:"streams"`
}
