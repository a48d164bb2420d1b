package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/recapcannon/internal/container"
	"github.com/kikiluvv/recapcannon/internal/media"
	"github.com/kikiluvv/recapcannon/pkg/util"
)

// FileSink writes each output into a directory
type FileSink struct {
	Dir string
	// Name overrides the generated base name; the container extension is
	// always appended
	Name string

	mu     sync.Mutex
	last   string
	logger zerolog.Logger
}

var _ media.Sink = (*FileSink)(nil)

// NewFileSink creates a sink writing into dir
func NewFileSink(dir, name string, logger zerolog.Logger) *FileSink {
	return &FileSink{
		Dir:    dir,
		Name:   name,
		logger: logger.With().Str("component", "sink").Logger(),
	}
}

// Accept writes out.Data to disk
func (s *FileSink) Accept(ctx context.Context, out *media.Output) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := util.EnsureDir(s.Dir); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	ext := ".bin"
	if f, ok := container.Lookup(out.MimeType); ok {
		ext = f.Extension
	}

	name := s.Name
	if name == "" {
		name = "recap_" + time.Now().Format("20060102_150405")
	}
	name = name[:len(name)-len(filepath.Ext(name))] + ext
	path := filepath.Join(s.Dir, name)

	if err := os.WriteFile(path, out.Data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	s.mu.Lock()
	s.last = path
	s.mu.Unlock()

	s.logger.Info().
		Str("path", path).
		Str("size", util.HumanBytes(int64(len(out.Data)))).
		Msg("wrote output")

	return nil
}

// LastPath returns the most recently written file
func (s *FileSink) LastPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
