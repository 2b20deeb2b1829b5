// Package recognition turns an unreliable stream of speech recognition events
// into a steady listening session: transient errors are absorbed, fatal ones
// stop the session, and natural ends are restarted under a bounded policy.
package recognition

import (
	"errors"
	"fmt"
)

// EventType identifies a recognition event.
type EventType int

const (
	EventStarted EventType = iota
	EventPartial
	EventFinal
	EventError
	EventEnded
)

var eventNames = map[EventType]string{
	EventStarted: "started",
	EventPartial: "partial",
	EventFinal:   "final",
	EventError:   "error",
	EventEnded:   "ended",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// ParseEventType maps a client event name to its type.
func ParseEventType(name string) (EventType, error) {
	for t, n := range eventNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("recognition: unknown event %q", name)
}

// ErrorKind classifies recognizer errors.
type ErrorKind string

const (
	ErrorNoSpeech     ErrorKind = "no-speech"
	ErrorAborted      ErrorKind = "aborted"
	ErrorAudioCapture ErrorKind = "audio-capture"
	ErrorNotAllowed   ErrorKind = "not-allowed"
	ErrorNetwork      ErrorKind = "network"
	ErrorOther        ErrorKind = "other"
)

// ParseErrorKind maps a recognizer error code. Unknown codes become ErrorOther.
func ParseErrorKind(code string) ErrorKind {
	switch k := ErrorKind(code); k {
	case ErrorNoSpeech, ErrorAborted, ErrorAudioCapture, ErrorNotAllowed, ErrorNetwork:
		return k
	}
	return ErrorOther
}

// Transient reports whether the error is absorbed instead of stopping recognition.
func (k ErrorKind) Transient() bool {
	return k == ErrorNoSpeech || k == ErrorAborted
}

// Event is one recognition event. Text and Confidence are set for Partial
// and Final, Error for EventError.
type Event struct {
	Type       EventType
	Text       string
	Confidence float64
	Error      ErrorKind
}

// Started returns a Started event.
func Started() Event { return Event{Type: EventStarted} }

// Partial returns an interim transcript event.
func Partial(text string) Event { return Event{Type: EventPartial, Text: text} }

// Final returns a final transcript event.
func Final(text string, confidence float64) Event {
	return Event{Type: EventFinal, Text: text, Confidence: confidence}
}

// Failed returns an Error event.
func Failed(kind ErrorKind) Event { return Event{Type: EventError, Error: kind} }

// Ended returns an Ended event.
func Ended() Event { return Event{Type: EventEnded} }

// ErrFatal matches every *FatalError.
var ErrFatal = errors.New("fatal recognition error")

// FatalError stops listening until the user starts again.
type FatalError struct {
	Kind ErrorKind
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("speech recognition stopped: %s", e.Kind)
}

func (e *FatalError) Is(target error) bool {
	return target == ErrFatal
}

// Message is the text shown to the user.
func (e *FatalError) Message() string {
	switch e.Kind {
	case ErrorAudioCapture:
		return "No microphone was found. Check your audio input and try again."
	case ErrorNotAllowed:
		return "Microphone access was denied. Allow microphone access and try again."
	case ErrorNetwork:
		return "Speech recognition lost its network connection. Try again."
	default:
		return "Speech recognition stopped unexpectedly. Try again."
	}
}
