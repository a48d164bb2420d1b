package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kikiluvv/recapcannon/internal/config"
	"github.com/kikiluvv/recapcannon/internal/ffmpeg"
	"github.com/kikiluvv/recapcannon/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "recapcannon",
	Short: "recapCannon - movie recap compositor and recorder",
	Long: "Composite a source video with aspect framing, freeze-zoom, a blurred caption band, " +
		"a logo and burned-in subtitles, then record it with narration at an independent speed.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(captionsCmd)
	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(configCmd)
}

// newHost builds the ffmpeg backed media host from config
func newHost(cfg *config.Config) (*ffmpeg.Host, error) {
	exec, err := ffmpeg.New(log.Logger, cfg.FFmpeg)
	if err != nil {
		return nil, err
	}
	return ffmpeg.NewHost(exec, cfg.TempDir, log.Logger), nil
}
