package gui

import (
	"context"
	"errors"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/recapcannon/internal/capture"
	"github.com/kikiluvv/recapcannon/internal/clips"
	"github.com/kikiluvv/recapcannon/internal/config"
	"github.com/kikiluvv/recapcannon/internal/container"
	"github.com/kikiluvv/recapcannon/internal/media"
	"github.com/kikiluvv/recapcannon/internal/media/mediatest"
)

// stalledHost opens videos whose metadata never arrives
type stalledHost struct{}

func (stalledHost) OpenVideo(ctx context.Context, src media.Source) (media.VideoElement, error) {
	return mediatest.NewElement(0, 0), nil
}

func (stalledHost) NewAudioGraph(ctx context.Context, sampleRate int) (media.AudioGraph, error) {
	return mediatest.NewAudioGraph(), nil
}

func (stalledHost) Support() container.Support { return mediatest.Support{} }

func (stalledHost) NewRecorder(stream media.Stream, format container.Format) (media.Recorder, error) {
	return nil, errors.New("not recording")
}

func newRangeEditor(t *testing.T) *editor {
	t.Helper()
	test.NewTempApp(t)
	e := &editor{
		marks:      clips.NewManager(),
		rangeLabel: widget.NewLabel(""),
	}
	e.rangeList = e.newRangeList()
	return e
}

func TestRangeText(t *testing.T) {
	tests := []struct {
		start, end time.Duration
		want       string
	}{
		{0, 0, "Range: full video"},
		{5 * time.Second, 0, "Range: 0:05 - end"},
		{0, 10 * time.Second, "Range: 0:00 - 0:10"},
	}
	for _, tt := range tests {
		if got := rangeText(tt.start, tt.end); got != tt.want {
			t.Errorf("rangeText(%v, %v) = %q, want %q", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestKeepRangeListsMarkedRanges(t *testing.T) {
	e := newRangeEditor(t)

	if clip, err := e.keepRange(); err != nil || clip != nil {
		t.Fatalf("full video should not be kept, got %v, %v", clip, err)
	}

	e.start, e.end = 2*time.Second, 6*time.Second
	first, err := e.keepRange()
	if err != nil {
		t.Fatal(err)
	}
	again, err := e.keepRange()
	if err != nil {
		t.Fatal(err)
	}
	if again != first {
		t.Error("keeping the same range twice should reuse the entry")
	}

	e.start, e.end = 8*time.Second, 0
	if _, err := e.keepRange(); err != nil {
		t.Fatal(err)
	}
	if n := e.rangeList.Length(); n != 2 {
		t.Fatalf("list shows %d ranges, want 2", n)
	}

	// picking the first entry restores its bounds
	e.start, e.end = 0, 0
	e.rangeList.Select(0)
	if e.start != 2*time.Second || e.end != 6*time.Second {
		t.Errorf("range = %v-%v after select", e.start, e.end)
	}
	if got := e.rangeLabel.Text; got != rangeText(2*time.Second, 6*time.Second) {
		t.Errorf("label = %q", got)
	}

	e.removeRange()
	if n := e.rangeList.Length(); n != 1 {
		t.Fatalf("list shows %d ranges after remove, want 1", n)
	}
	if e.marks.Get(first.ID) != nil {
		t.Error("removed range still stored")
	}

	// nothing picked, nothing removed
	e.removeRange()
	if n := e.rangeList.Length(); n != 1 {
		t.Errorf("list shows %d ranges, want 1", n)
	}
}

func TestCancelStopsRecording(t *testing.T) {
	test.NewTempApp(t)
	cfg := config.Default().Capture
	cfg.MetadataWait = time.Minute
	e := &editor{
		pipeline:    capture.New(stalledHost{}, nil, nil, cfg, zerolog.Nop()),
		statusLabel: widget.NewLabel("Status: Idle"),
		progress:    widget.NewProgressBar(),
		generate:    widget.NewButton("Generate", nil),
		cancelRec:   widget.NewButton("Cancel", nil),
	}
	e.cancelRec.OnTapped = e.cancelRecording

	// nothing running, nothing to cancel
	test.Tap(e.cancelRec)
	if got := e.statusLabel.Text; got != "Status: Idle" {
		t.Errorf("status = %q with no recording", got)
	}

	e.generate.Disable()
	e.cancelRec.Enable()
	done := make(chan error, 1)
	go func() {
		_, err := e.pipeline.Run(context.Background(), capture.Job{Video: media.Source{Path: "movie.mp4"}})
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for e.pipeline.State() != capture.Preparing {
		if time.Now().After(deadline) {
			t.Fatal("recording never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	test.Tap(e.cancelRec)
	if got := e.statusLabel.Text; got != "Status: canceling" {
		t.Errorf("status = %q after cancel", got)
	}

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cancel did not stop the recording")
	}
	if !errors.Is(err, capture.ErrCanceled) {
		t.Fatalf("Run() = %v, want ErrCanceled", err)
	}

	e.finishRecording(nil, err)
	if got := e.statusLabel.Text; got != "Recording canceled" {
		t.Errorf("status = %q", got)
	}
	if e.generate.Disabled() || !e.cancelRec.Disabled() {
		t.Error("generate should be enabled and cancel disabled once finished")
	}
}
