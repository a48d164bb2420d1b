package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/recapcannon/internal/captions"
	"github.com/kikiluvv/recapcannon/internal/config"
	"github.com/kikiluvv/recapcannon/internal/container"
	"github.com/kikiluvv/recapcannon/internal/gui"
	"github.com/kikiluvv/recapcannon/pkg/util"
)

var previewAudio string

var previewCmd = &cobra.Command{
	Use:   "preview [input video]",
	Short: "Open the editor with a live preview",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		host, err := newHost(cfg)
		if err != nil {
			return err
		}

		opts := gui.Options{
			Config: cfg,
			Host:   host,
			Logger: log.Logger,
			Audio:  previewAudio,
		}
		if len(args) == 1 {
			opts.Video = args[0]
		}
		return gui.RunGUI(opts)
	},
}

var captionsCmd = &cobra.Command{
	Use:   "captions",
	Short: "Subtitle file commands",
}

var captionsAt time.Duration

var captionsInspectCmd = &cobra.Command{
	Use:   "inspect [file.srt]",
	Short: "List the cues of an SRT file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cues, err := captions.ParseFile(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if cmd.Flags().Changed("at") {
			cue, ok := captions.ActiveCueAt(cues, captionsAt)
			if !ok {
				fmt.Fprintf(out, "no caption at %s\n", util.FormatClock(captionsAt))
				return nil
			}
			fmt.Fprintln(out, cue.Text)
			return nil
		}

		for _, c := range cues {
			fmt.Fprintf(out, "%4d  %s - %s  %q\n", c.Index,
				util.FormatClock(c.Start), util.FormatClock(c.End), c.Text)
		}
		log.Info().Str("file", args[0]).Int("cues", len(cues)).Msg("captions parsed")
		return nil
	},
}

var captionsFormatCmd = &cobra.Command{
	Use:   "format [file.srt]",
	Short: "Rewrite an SRT file with clean numbering, dropping malformed blocks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cues, err := captions.ParseFile(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), captions.Format(cues))
		return err
	},
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List output containers and whether ffmpeg can produce them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		host, err := newHost(cfg)
		if err != nil {
			return err
		}
		support := host.Support()

		selected, err := container.Select(support, cfg.Capture.Containers)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, mime := range container.Known() {
			f, _ := container.Lookup(mime)
			status := "unsupported"
			if f.Native() || support.IsTypeSupported(mime) {
				status = "ok"
			}
			mark := " "
			if mime == selected.MimeType {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %-26s %-12s %s\n", mark, mime, status, f.Extension)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) && !configInitForce {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}

func init() {
	previewCmd.Flags().StringVar(&previewAudio, "audio", "", "narration audio file")

	captionsInspectCmd.Flags().DurationVar(&captionsAt, "at", 0, "show only the caption on screen at this time")
	captionsCmd.AddCommand(captionsInspectCmd)
	captionsCmd.AddCommand(captionsFormatCmd)

	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
