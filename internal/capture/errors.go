package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrInputTooLarge rejects sources above the configured size ceiling
	ErrInputTooLarge = errors.New("input too large")
	// ErrEmptyRecording means the recorder stopped without producing data
	ErrEmptyRecording = errors.New("nothing recorded")
	// ErrStallTimeout means playback stopped advancing for too long
	ErrStallTimeout = errors.New("playback stalled")
	// ErrPlaybackRejected means the hidden element refused to play
	ErrPlaybackRejected = errors.New("playback rejected")
	// ErrBusy is returned when a session is already in progress
	ErrBusy = errors.New("capture already in progress")
	// ErrCanceled is returned when a session is cancelled
	ErrCanceled = errors.New("capture canceled")
)

// Kind classifies a pipeline failure
type Kind string

const (
	KindInput       Kind = "input"
	KindPrepare     Kind = "prepare"
	KindContainer   Kind = "container"
	KindPlayback    Kind = "playback"
	KindRecorder    Kind = "recorder"
	KindEmpty       Kind = "empty"
	KindCompositing Kind = "compositing"
	KindSink        Kind = "sink"
	KindCanceled    Kind = "canceled"
	KindBusy        Kind = "busy"
)

// Error is the single structured failure returned by Run. Message is meant
// for the user; Err carries the cause for errors.Is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}
