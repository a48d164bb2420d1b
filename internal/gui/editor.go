// Package gui is the desktop editor: a live preview of the composited
// output with transport, speed and effect controls, and a Generate button
// that records the result.
package gui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/recapcannon/internal/avsync"
	"github.com/kikiluvv/recapcannon/internal/blobstore"
	"github.com/kikiluvv/recapcannon/internal/captions"
	"github.com/kikiluvv/recapcannon/internal/capture"
	"github.com/kikiluvv/recapcannon/internal/clips"
	"github.com/kikiluvv/recapcannon/internal/config"
	"github.com/kikiluvv/recapcannon/internal/effects"
	"github.com/kikiluvv/recapcannon/internal/ffmpeg"
	"github.com/kikiluvv/recapcannon/internal/media"
	"github.com/kikiluvv/recapcannon/internal/overlays"
	"github.com/kikiluvv/recapcannon/internal/preview"
	"github.com/kikiluvv/recapcannon/pkg/util"
)

// transportInterval is how often the seek slider follows playback
const transportInterval = 250 * time.Millisecond

var (
	videoExtensions = []string{".mp4", ".mov", ".mkv", ".webm", ".m4v"}
	audioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac"}
	logoExtensions  = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}
	corners         = []string{string(effects.TopLeft), string(effects.TopRight), string(effects.BottomLeft), string(effects.BottomRight)}
)

// Options configures the editor
type Options struct {
	Config *config.Config
	Host   *ffmpeg.Host
	Logger zerolog.Logger
	// Video and Audio are loaded on start when set
	Video string
	Audio string
}

type editor struct {
	cfg    *config.Config
	host   *ffmpeg.Host
	logger zerolog.Logger

	window  fyne.Window
	display *previewDisplay
	loop    *preview.Loop

	// base holds the unvalidated control state, params the last valid snapshot
	base   effects.Parameters
	params atomic.Pointer[effects.Parameters]
	logos  *overlays.Registry

	mu       sync.Mutex
	video    *ffmpeg.Player
	videoSrc *media.Source
	audio    *media.Clock
	audioSrc *media.Source
	sync     *avsync.Controller
	cancel   context.CancelFunc
	marks    *clips.Manager
	start    time.Duration
	end      time.Duration

	store    *blobstore.Store
	sink     *blobstore.FileSink
	pipeline *capture.Pipeline

	videoLabel  *widget.Label
	audioLabel  *widget.Label
	timeLabel   *widget.Label
	rangeLabel  *widget.Label
	statusLabel *widget.Label
	slider      *widget.Slider
	playButton  *widget.Button
	videoSpeed  *widget.Entry
	audioSpeed  *widget.Entry
	progress    *widget.ProgressBar
	generate    *widget.Button
	cancelRec   *widget.Button
	rangeList   *widget.List
	picked      string
	following   bool
}

// RunGUI opens the editor window and blocks until it is closed
func RunGUI(opts Options) error {
	if opts.Host == nil {
		return errors.New("editor needs a media host")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	e := &editor{
		cfg:     cfg,
		host:    opts.Host,
		logger:  opts.Logger.With().Str("component", "gui").Logger(),
		display: newPreviewDisplay(),
		base:    cfg.EffectParameters(),
		logos:   overlays.NewRegistry(),
		marks:   clips.NewManager(),
		store:   blobstore.NewStore(opts.Logger),
	}
	for name, path := range cfg.Overlays.Logos {
		e.logos.Register(name, path)
	}
	if err := e.applyParams(); err != nil {
		e.logger.Warn().Err(err).Msg("configured effects invalid, using defaults")
		e.base = effects.Defaults()
		if err := e.applyParams(); err != nil {
			return err
		}
	}

	e.sink = blobstore.NewFileSink(cfg.OutputDir, "", opts.Logger)
	e.pipeline = capture.New(e.host, e.store, e.sink, cfg.Capture, opts.Logger)
	e.pipeline.OnProgress(func(pct int) {
		fyne.Do(func() { e.progress.SetValue(float64(pct) / 100) })
	})
	e.pipeline.OnState(func(s capture.State) {
		fyne.Do(func() { e.statusLabel.SetText("Status: " + s.String()) })
	})

	e.loop = preview.NewLoop(nil, e.params.Load, e.display, opts.Logger)

	a := app.NewWithID("recapcannon")
	e.window = a.NewWindow("Recap Cannon")
	e.window.Resize(fyne.NewSize(1100, 720))
	e.window.SetContent(e.build())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.loop.Run(ctx)
	go e.followPlayback(ctx)

	if opts.Video != "" {
		e.loadVideo(opts.Video)
	}
	if opts.Audio != "" {
		e.loadAudio(opts.Audio)
	}

	e.window.SetOnClosed(func() {
		cancel()
		e.closeMedia()
		e.pipeline.Close()
		e.store.Close()
	})
	e.window.ShowAndRun()
	return nil
}

func (e *editor) build() fyne.CanvasObject {
	e.videoLabel = widget.NewLabel("No video loaded")
	e.audioLabel = widget.NewLabel("No narration loaded")
	e.timeLabel = widget.NewLabel("00:00 / 00:00")
	e.rangeLabel = widget.NewLabel("Range: full video")
	e.statusLabel = widget.NewLabel("Status: Idle")
	e.progress = widget.NewProgressBar()

	e.slider = widget.NewSlider(0, 1)
	e.slider.Step = 0.01
	e.slider.OnChanged = func(val float64) {
		if e.following {
			return
		}
		if ctl := e.controller(); ctl != nil {
			if err := ctl.Seek(util.Seconds(val)); err != nil {
				e.logger.Debug().Err(err).Msg("seek failed")
			}
		}
	}

	e.playButton = widget.NewButton("Play", e.togglePlay)

	e.videoSpeed = widget.NewEntry()
	e.videoSpeed.SetText("1")
	e.videoSpeed.OnSubmitted = func(s string) { e.setSpeed(avsync.Video, s) }
	e.audioSpeed = widget.NewEntry()
	e.audioSpeed.SetText("1")
	e.audioSpeed.OnSubmitted = func(s string) { e.setSpeed(avsync.Audio, s) }

	fitVideo := widget.NewButton("Fit video to narration", func() { e.autoSync(avsync.Video) })
	fitAudio := widget.NewButton("Fit narration to video", func() { e.autoSync(avsync.Audio) })

	loadVideo := widget.NewButton("Load Video", func() {
		e.openFile(videoExtensions, e.loadVideo)
	})
	loadAudio := widget.NewButton("Load Narration", func() {
		e.openFile(audioExtensions, e.loadAudio)
	})
	loadCaptions := widget.NewButton("Load Captions", func() {
		e.openFile([]string{".srt"}, e.loadCaptions)
	})

	transport := container.NewVBox(
		e.slider,
		container.NewHBox(e.playButton, e.timeLabel),
		container.NewGridWithColumns(4,
			widget.NewLabel("Video speed"), e.videoSpeed,
			widget.NewLabel("Narration speed"), e.audioSpeed,
		),
		container.NewHBox(fitVideo, fitAudio),
	)

	markStart := widget.NewButton("Mark Start", func() { e.mark(true) })
	markEnd := widget.NewButton("Mark End", func() { e.mark(false) })
	clearRange := widget.NewButton("Clear Range", func() {
		e.mu.Lock()
		e.start, e.end = 0, 0
		e.mu.Unlock()
		e.rangeLabel.SetText(rangeText(0, 0))
	})
	keepRange := widget.NewButton("Keep Range", func() {
		if _, err := e.keepRange(); err != nil {
			e.showError(err)
		}
	})
	removeRange := widget.NewButton("Remove Range", e.removeRange)

	e.rangeList = e.newRangeList()

	e.generate = widget.NewButton("Generate", e.generateRecap)
	e.generate.Importance = widget.HighImportance
	e.cancelRec = widget.NewButton("Cancel", e.cancelRecording)
	e.cancelRec.Disable()

	controls := container.NewVBox(
		loadVideo, e.videoLabel,
		loadAudio, e.audioLabel,
		loadCaptions,
		widget.NewSeparator(),
		e.effectControls(),
		widget.NewSeparator(),
		container.NewHBox(markStart, markEnd, clearRange),
		e.rangeLabel,
		container.NewHBox(keepRange, removeRange),
		container.NewGridWrap(fyne.NewSize(300, 110), e.rangeList),
		widget.NewSeparator(),
		container.NewGridWithColumns(2, e.generate, e.cancelRec),
		e.progress,
		e.statusLabel,
	)

	left := container.NewBorder(nil, transport, nil, nil, e.display.content)
	split := container.NewHSplit(left, container.NewVScroll(controls))
	split.Offset = 0.68
	return split
}

func (e *editor) effectControls() fyne.CanvasObject {
	aspects := make([]string, len(effects.Aspects))
	for i, a := range effects.Aspects {
		aspects[i] = string(a)
	}
	aspect := widget.NewSelect(aspects, func(s string) {
		e.update(func(p *effects.Parameters) { p.Aspect = effects.Aspect(s) })
	})
	aspect.SetSelected(string(e.base.Aspect))

	freeze := widget.NewCheck("Freeze frames", func(on bool) {
		e.update(func(p *effects.Parameters) { p.Freeze.Enabled = on })
	})
	freeze.SetChecked(e.base.Freeze.Enabled)

	interval := widget.NewEntry()
	interval.SetText(strconv.FormatFloat(e.base.Freeze.Interval.Seconds(), 'f', -1, 64))
	interval.OnSubmitted = func(s string) {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			e.update(func(p *effects.Parameters) { p.Freeze.Interval = util.Seconds(v) })
		}
	}
	duration := widget.NewEntry()
	duration.SetText(strconv.FormatFloat(e.base.Freeze.Duration.Seconds(), 'f', -1, 64))
	duration.OnSubmitted = func(s string) {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			e.update(func(p *effects.Parameters) { p.Freeze.Duration = util.Seconds(v) })
		}
	}

	blur := widget.NewCheck("Blur band", func(on bool) {
		e.update(func(p *effects.Parameters) { p.Blur.Enabled = on })
	})
	blur.SetChecked(e.base.Blur.Enabled)

	position := bandSlider(0, 100, e.base.Blur.PositionPct, func(v float64) {
		e.update(func(p *effects.Parameters) { p.Blur.PositionPct = v })
	})
	thickness := bandSlider(5, 50, e.base.Blur.ThicknessPct, func(v float64) {
		e.update(func(p *effects.Parameters) { p.Blur.ThicknessPct = v })
	})
	intensity := bandSlider(0, 80, e.base.Blur.IntensityPx, func(v float64) {
		e.update(func(p *effects.Parameters) { p.Blur.IntensityPx = v })
	})

	logos := append([]string{"none"}, e.logos.List()...)
	logos = append(logos, "Browse...")
	logo := widget.NewSelect(logos, func(name string) {
		switch name {
		case "none":
			e.update(func(p *effects.Parameters) { p.Logo.Image = nil })
		case "Browse...":
			e.openFile(logoExtensions, e.loadLogo)
		default:
			img, err := e.logos.Image(name)
			if err != nil {
				e.showError(err)
				return
			}
			e.update(func(p *effects.Parameters) { p.Logo.Image = img })
		}
	})
	logo.SetSelected("none")

	corner := widget.NewSelect(corners, func(s string) {
		e.update(func(p *effects.Parameters) { p.Logo.Corner = effects.Corner(s) })
	})
	corner.SetSelected(string(e.base.Logo.Corner))

	return container.NewVBox(
		container.NewGridWithColumns(2, widget.NewLabel("Aspect"), aspect),
		freeze,
		container.NewGridWithColumns(4,
			widget.NewLabel("Every (s)"), interval,
			widget.NewLabel("Hold (s)"), duration,
		),
		blur,
		container.NewGridWithColumns(2,
			widget.NewLabel("Position %"), position,
			widget.NewLabel("Thickness %"), thickness,
			widget.NewLabel("Intensity px"), intensity,
		),
		container.NewGridWithColumns(2,
			widget.NewLabel("Logo"), logo,
			widget.NewLabel("Corner"), corner,
		),
	)
}

func bandSlider(lo, hi, value float64, onChange func(float64)) *widget.Slider {
	s := widget.NewSlider(lo, hi)
	s.SetValue(value)
	s.OnChangeEnded = onChange
	return s
}

// update edits the control state and publishes a new snapshot when valid
func (e *editor) update(edit func(p *effects.Parameters)) {
	edit(&e.base)
	if err := e.applyParams(); err != nil {
		e.statusLabel.SetText(err.Error())
	}
}

func (e *editor) applyParams() error {
	p, err := effects.New(e.base)
	if err != nil {
		return err
	}
	e.params.Store(p)
	return nil
}

func (e *editor) openFile(extensions []string, load func(path string)) {
	fd := dialog.NewFileOpen(func(ur fyne.URIReadCloser, err error) {
		if err != nil {
			e.showError(err)
			return
		}
		if ur == nil {
			return
		}
		defer ur.Close()
		load(ur.URI().Path())
	}, e.window)
	fd.SetFilter(storage.NewExtensionFileFilter(extensions))
	fd.Show()
}

func (e *editor) showError(err error) {
	e.logger.Error().Err(err).Msg("editor error")
	dialog.ShowError(err, e.window)
}

func (e *editor) loadVideo(path string) {
	src, err := media.Stat(path)
	if err != nil {
		e.showError(err)
		return
	}
	if !src.IsVideo() {
		e.showError(fmt.Errorf("%s is not a video file", path))
		return
	}

	player := e.host.Executor().OpenPlayer(context.Background(), src)

	e.mu.Lock()
	old := e.video
	e.video, e.videoSrc = player, &src
	e.start, e.end = 0, 0
	var audio media.Element
	if e.audio != nil {
		audio = e.audio
	}
	e.sync = avsync.NewController(player, audio, e.logger)
	e.restartWatch()
	e.mu.Unlock()

	if old != nil {
		old.Close()
	}
	e.loop.SetVideo(player)
	e.videoLabel.SetText(fmt.Sprintf("Video: %s (%s)", path, util.HumanBytes(src.Size)))
	e.rangeLabel.SetText(rangeText(0, 0))
	e.playButton.SetText("Play")
	e.videoSpeed.SetText("1")

	go func() {
		select {
		case <-player.Loaded():
		case <-time.After(e.cfg.Capture.MetadataWait):
			fyne.Do(func() { e.videoLabel.SetText("Video: " + path + " (duration unknown)") })
			return
		}
		d := player.Duration()
		fyne.Do(func() {
			e.following = true
			e.slider.Max = d.Seconds()
			e.slider.SetValue(0)
			e.following = false
		})
		e.logger.Info().Str("file", path).Dur("duration", d).Msg("video loaded")
	}()
}

func (e *editor) loadAudio(path string) {
	src, err := media.Stat(path)
	if err != nil {
		e.showError(err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Capture.MetadataWait)
	defer cancel()
	info, err := e.host.Executor().Probe(ctx, path)
	if err != nil {
		e.showError(fmt.Errorf("read narration: %w", err))
		return
	}
	if !info.HasAudio {
		e.showError(fmt.Errorf("%s has no audio stream", path))
		return
	}

	clock := media.NewClock(info.Duration)

	e.mu.Lock()
	e.audio, e.audioSrc = clock, &src
	if e.sync != nil {
		e.sync.SetAudio(clock)
	}
	e.mu.Unlock()

	e.audioSpeed.SetText("1")
	e.audioLabel.SetText(fmt.Sprintf("Narration: %s (%s)", path, util.FormatClock(info.Duration)))
}

func (e *editor) loadCaptions(path string) {
	cues, err := captions.ParseFile(path)
	if err != nil {
		e.showError(err)
		return
	}
	e.update(func(p *effects.Parameters) { p.Captions = cues })
	e.statusLabel.SetText(fmt.Sprintf("Loaded %d captions", len(cues)))
}

func (e *editor) loadLogo(path string) {
	img, err := overlays.LoadLogo(path)
	if err != nil {
		e.showError(err)
		return
	}
	e.update(func(p *effects.Parameters) { p.Logo.Image = img })
}

// restartWatch runs drift correction for the current controller
func (e *editor) restartWatch() {
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.sync.Watch(ctx)
}

func (e *editor) controller() *avsync.Controller {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sync
}

func (e *editor) togglePlay() {
	ctl := e.controller()
	if ctl == nil {
		return
	}
	if ctl.Playing() {
		ctl.Pause()
		e.playButton.SetText("Play")
		return
	}
	if err := ctl.Play(context.Background()); err != nil {
		e.showError(err)
		return
	}
	e.playButton.SetText("Pause")
}

func (e *editor) setSpeed(track avsync.Track, s string) {
	ctl := e.controller()
	if ctl == nil {
		return
	}
	m, err := strconv.ParseFloat(s, 64)
	if err == nil {
		err = ctl.SetSpeed(track, avsync.RoundSpeed(m))
	}
	if err != nil {
		e.showError(err)
	}
	e.showSpeeds(ctl)
}

func (e *editor) autoSync(track avsync.Track) {
	ctl := e.controller()
	if ctl == nil {
		return
	}
	if _, err := ctl.AutoSync(track); err != nil {
		if errors.Is(err, avsync.ErrNoAudio) {
			err = errors.New("load a narration track first")
		}
		e.showError(err)
		return
	}
	e.showSpeeds(ctl)
}

func (e *editor) showSpeeds(ctl *avsync.Controller) {
	e.videoSpeed.SetText(strconv.FormatFloat(avsync.RoundSpeed(ctl.Speed(avsync.Video)), 'f', -1, 64))
	e.audioSpeed.SetText(strconv.FormatFloat(avsync.RoundSpeed(ctl.Speed(avsync.Audio)), 'f', -1, 64))
}

func (e *editor) mark(start bool) {
	e.mu.Lock()
	if e.video == nil {
		e.mu.Unlock()
		return
	}
	at := e.video.CurrentTime()
	if start {
		e.start = at
	} else {
		e.end = at
	}
	s, end := e.start, e.end
	e.mu.Unlock()

	e.rangeLabel.SetText(rangeText(s, end))
}

func rangeText(start, end time.Duration) string {
	if start <= 0 && end <= 0 {
		return "Range: full video"
	}
	text := "Range: " + util.FormatShort(start) + " - "
	if end > 0 {
		return text + util.FormatShort(end)
	}
	return text + "end"
}

// keepRange stores the marked range in the range list, reusing an equal
// entry. It returns nil when the whole video is selected.
func (e *editor) keepRange() (*clips.Clip, error) {
	e.mu.Lock()
	start, end, src := e.start, e.end, e.videoSrc
	e.mu.Unlock()

	if start <= 0 && end <= 0 {
		return nil, nil
	}
	if clip := e.marks.Find(start, end); clip != nil {
		return clip, nil
	}
	clip, err := clips.New(start, end)
	if err != nil {
		return nil, err
	}
	if src != nil {
		clip.Source = src.Path
	}
	e.marks.Add(clip)
	e.rangeList.Refresh()
	return clip, nil
}

func (e *editor) newRangeList() *widget.List {
	list := widget.NewList(
		func() int { return len(e.marks.All()) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.ListItemID, o fyne.CanvasObject) {
			if all := e.marks.All(); id < len(all) {
				o.(*widget.Label).SetText(all[id].String())
			}
		},
	)
	list.OnSelected = e.useRange
	return list
}

// useRange makes a kept range the active one and seeks to its start
func (e *editor) useRange(id widget.ListItemID) {
	all := e.marks.All()
	if id < 0 || id >= len(all) {
		return
	}
	clip := all[id]

	e.mu.Lock()
	e.start, e.end = clip.Start, clip.End
	e.picked = clip.ID
	ctl := e.sync
	e.mu.Unlock()

	e.rangeLabel.SetText(rangeText(clip.Start, clip.End))
	if ctl != nil {
		if err := ctl.Seek(clip.Start); err != nil {
			e.logger.Debug().Err(err).Msg("seek failed")
		}
	}
}

func (e *editor) removeRange() {
	e.mu.Lock()
	id := e.picked
	e.picked = ""
	e.mu.Unlock()

	if id == "" || !e.marks.Remove(id) {
		return
	}
	e.rangeList.UnselectAll()
	e.rangeList.Refresh()
}

// followPlayback keeps the seek slider and clock label in step with the
// video element
func (e *editor) followPlayback(ctx context.Context) {
	ticker := time.NewTicker(transportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		video := e.video
		e.mu.Unlock()
		if video == nil {
			continue
		}

		cur, total := video.CurrentTime(), video.Duration()
		ended := video.Ended()
		fyne.Do(func() {
			e.following = true
			e.slider.SetValue(cur.Seconds())
			e.following = false
			e.timeLabel.SetText(util.FormatClock(cur) + " / " + util.FormatClock(total))
			if ended && e.playButton.Text != "Play" {
				e.playButton.SetText("Play")
			}
		})
	}
}

func (e *editor) generateRecap() {
	e.mu.Lock()
	if e.videoSrc == nil {
		e.mu.Unlock()
		e.showError(errors.New("load a video first"))
		return
	}
	job := capture.Job{
		Video:  *e.videoSrc,
		Audio:  e.audioSrc,
		Params: e.params.Load(),
	}
	if e.sync != nil {
		job.VideoSpeed = e.sync.Speed(avsync.Video)
		job.AudioSpeed = e.sync.Speed(avsync.Audio)
		e.sync.Pause()
	}
	e.mu.Unlock()

	clip, err := e.keepRange()
	if err != nil {
		e.showError(err)
		return
	}
	job.Range = clip

	e.playButton.SetText("Play")
	e.generate.Disable()
	e.cancelRec.Enable()
	e.progress.SetValue(0)

	go func() {
		res, err := e.pipeline.Run(context.Background(), job)
		fyne.Do(func() { e.finishRecording(res, err) })
	}()
}

func (e *editor) cancelRecording() {
	if e.pipeline.Cancel() {
		e.statusLabel.SetText("Status: canceling")
	}
}

func (e *editor) finishRecording(res *capture.Result, err error) {
	e.generate.Enable()
	e.cancelRec.Disable()

	if errors.Is(err, capture.ErrCanceled) {
		e.progress.SetValue(0)
		e.statusLabel.SetText("Recording canceled")
		return
	}
	if err != nil {
		var cerr *capture.Error
		if errors.As(err, &cerr) {
			e.statusLabel.SetText(cerr.Message)
		}
		e.showError(err)
		return
	}
	msg := fmt.Sprintf("Saved %s (%s)", e.sink.LastPath(), util.HumanBytes(res.Size))
	if res.Truncated {
		msg += ", playback stalled so the recording was cut short"
	}
	e.statusLabel.SetText(msg)
}

func (e *editor) closeMedia() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
	if e.video != nil {
		e.video.Close()
	}
	if e.audio != nil {
		e.audio.Close()
	}
}
