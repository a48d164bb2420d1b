package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/recapcannon/internal/blobstore"
	"github.com/kikiluvv/recapcannon/internal/captions"
	"github.com/kikiluvv/recapcannon/internal/capture"
	"github.com/kikiluvv/recapcannon/internal/clips"
	"github.com/kikiluvv/recapcannon/internal/config"
	"github.com/kikiluvv/recapcannon/internal/effects"
	"github.com/kikiluvv/recapcannon/internal/media"
	"github.com/kikiluvv/recapcannon/internal/overlays"
	"github.com/kikiluvv/recapcannon/pkg/util"
)

// renderOptions holds the render flags. Effect flags only override the
// configured defaults when given on the command line.
type renderOptions struct {
	aspect string

	freeze         bool
	freezeInterval time.Duration
	freezeDuration time.Duration

	blur          bool
	blurPosition  float64
	blurThickness float64
	blurIntensity float64

	logo   string
	corner string
	srt    string

	trim       string
	videoSpeed float64
	audioSpeed float64
	audio      string
	keepAudio  bool
	containers []string

	outputDir string
	name      string
}

var renderOpts renderOptions

var renderCmd = &cobra.Command{
	Use:   "render [input video]",
	Short: "Record the composited video to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		job, err := renderOpts.job(cmd, cfg, args[0])
		if err != nil {
			return err
		}

		host, err := newHost(cfg)
		if err != nil {
			return err
		}

		outDir := cfg.OutputDir
		if renderOpts.outputDir != "" {
			outDir = renderOpts.outputDir
		}
		sink := blobstore.NewFileSink(outDir, renderOpts.name, log.Logger)
		store := blobstore.NewStore(log.Logger)
		defer store.Close()

		capCfg := cfg.Capture
		if len(renderOpts.containers) > 0 {
			capCfg.Containers = renderOpts.containers
		}
		pipe := capture.New(host, store, sink, capCfg, log.Logger)
		defer pipe.Close()

		bar := progressbar.NewOptions(100,
			progressbar.OptionSetDescription("preparing"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "▐",
				BarEnd:        "▌",
			}),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(50),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionClearOnFinish(),
		)
		pipe.OnState(func(s capture.State) { bar.Describe(s.String()) })
		pipe.OnProgress(func(pct int) { bar.Set(pct) })

		log.Info().
			Str("video", job.Video.Path).
			Float64("video_speed", job.VideoSpeed).
			Float64("audio_speed", job.AudioSpeed).
			Msg("rendering")

		res, err := pipe.Run(cmd.Context(), job)
		bar.Finish()
		if err != nil {
			return err
		}

		ev := log.Info().
			Str("path", sink.LastPath()).
			Str("type", res.MimeType).
			Str("size", util.HumanBytes(res.Size)).
			Str("duration", util.FormatClock(res.Duration)).
			Int("frames", res.Frames)
		if res.Truncated {
			ev = ev.Bool("truncated", true)
		}
		ev.Msg("render complete")

		return nil
	},
}

func init() {
	bindRenderFlags(renderCmd, &renderOpts)
}

func bindRenderFlags(cmd *cobra.Command, o *renderOptions) {
	f := cmd.Flags()
	f.StringVar(&o.aspect, "aspect", "16:9", "output aspect ratio (16:9, 9:16, 1:1, 4:5)")

	f.BoolVar(&o.freeze, "freeze", true, "periodic freeze-zoom")
	f.DurationVar(&o.freezeInterval, "freeze-interval", 5*time.Second, "time between freezes")
	f.DurationVar(&o.freezeDuration, "freeze-duration", 2*time.Second, "length of each freeze")

	f.BoolVar(&o.blur, "blur", true, "blur a horizontal band")
	f.Float64Var(&o.blurPosition, "blur-position", 80, "band centre, percent of height")
	f.Float64Var(&o.blurThickness, "blur-thickness", 15, "band thickness, percent of height (5-50)")
	f.Float64Var(&o.blurIntensity, "blur-intensity", 20, "blur radius in pixels (0-80)")

	f.StringVar(&o.logo, "logo", "", "logo file or configured logo name")
	f.StringVar(&o.corner, "corner", "top-right", "logo corner")
	f.StringVar(&o.srt, "srt", "", "SRT file to burn in")

	f.StringVar(&o.trim, "range", "", "record only START-END of the source, e.g. 1:00-2:30")
	f.Float64Var(&o.videoSpeed, "video-speed", 1, "video playback rate")
	f.Float64Var(&o.audioSpeed, "audio-speed", 1, "narration playback rate")
	f.StringVar(&o.audio, "audio", "", "narration audio file")
	f.BoolVar(&o.keepAudio, "keep-audio", false, "record the source soundtrack when no narration is given")
	f.StringSliceVar(&o.containers, "container", nil, "container preference, repeatable (see 'formats')")

	f.StringVarP(&o.outputDir, "output", "o", "", "output directory (default from config)")
	f.StringVar(&o.name, "name", "", "output file name without extension")
}

// params overlays the changed effect flags on the configured defaults
func (o *renderOptions) params(cmd *cobra.Command, cfg *config.Config) (*effects.Parameters, error) {
	p := cfg.EffectParameters()
	changed := cmd.Flags().Changed

	if changed("aspect") {
		a, err := effects.ParseAspect(o.aspect)
		if err != nil {
			return nil, err
		}
		p.Aspect = a
	}

	if changed("freeze") {
		p.Freeze.Enabled = o.freeze
	}
	if changed("freeze-interval") {
		p.Freeze.Interval = o.freezeInterval
	}
	if changed("freeze-duration") {
		p.Freeze.Duration = o.freezeDuration
	}

	if changed("blur") {
		p.Blur.Enabled = o.blur
	}
	if changed("blur-position") {
		p.Blur.PositionPct = o.blurPosition
	}
	if changed("blur-thickness") {
		p.Blur.ThicknessPct = o.blurThickness
	}
	if changed("blur-intensity") {
		p.Blur.IntensityPx = o.blurIntensity
	}

	if changed("corner") {
		c, err := effects.ParseCorner(o.corner)
		if err != nil {
			return nil, err
		}
		p.Logo.Corner = c
	}
	if path := cfg.LogoPath(o.logo); path != "" {
		img, err := overlays.LoadLogo(path)
		if err != nil {
			return nil, err
		}
		p.Logo.Image = img
	}

	if o.srt != "" {
		cues, err := captions.ParseFile(o.srt)
		if err != nil {
			return nil, err
		}
		if len(cues) == 0 {
			log.Warn().Str("file", o.srt).Msg("no captions found")
		}
		p.Captions = cues
	}

	return effects.New(p)
}

// job resolves the input files and flags into a capture job
func (o *renderOptions) job(cmd *cobra.Command, cfg *config.Config, input string) (capture.Job, error) {
	video, err := media.Stat(input)
	if err != nil {
		return capture.Job{}, err
	}

	params, err := o.params(cmd, cfg)
	if err != nil {
		return capture.Job{}, err
	}

	job := capture.Job{
		Video:           video,
		KeepSourceAudio: o.keepAudio,
		Params:          params,
		VideoSpeed:      o.videoSpeed,
		AudioSpeed:      o.audioSpeed,
	}

	if o.audio != "" {
		audio, err := media.Stat(o.audio)
		if err != nil {
			return capture.Job{}, err
		}
		job.Audio = &audio
	}

	if o.trim != "" {
		clip, err := clips.ParseRange(o.trim)
		if err != nil {
			return capture.Job{}, err
		}
		clip.Source = video.Path
		job.Range = clip
	}

	if job.VideoSpeed <= 0 || job.AudioSpeed <= 0 {
		return capture.Job{}, fmt.Errorf("speeds must be positive, got video %v audio %v", job.VideoSpeed, job.AudioSpeed)
	}

	return job, nil
}
