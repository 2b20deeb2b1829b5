// Package segment turns final recognition results into an append-only
// history of transcript segments using timing and punctuation boundaries.
package segment

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind classifies a finalized segment.
type Kind int

const (
	KindSentence Kind = iota
	KindParagraph
	KindPause
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSentence:
		return "sentence"
	case KindParagraph:
		return "paragraph"
	case KindPause:
		return "pause"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "sentence":
		*k = KindSentence
	case "paragraph":
		*k = KindParagraph
	case "pause":
		*k = KindPause
	default:
		return fmt.Errorf("segment: unknown kind %q", string(b))
	}
	return nil
}

// Segment is a finalized span of speech. It is never modified after it is emitted.
type Segment struct {
	ID              string    `json:"id"`
	Text            string    `json:"text"`
	CreatedAt       time.Time `json:"createdAt"`
	Confidence      float64   `json:"confidence"`
	Kind            Kind      `json:"kind"`
	DurationSeconds float64   `json:"durationSeconds"`
}

// IsPause reports whether the segment is a synthetic silence marker.
func (s Segment) IsPause() bool { return s.Kind == KindPause }

// Thresholds controls where segment boundaries fall.
type Thresholds struct {
	NewSegmentGap time.Duration // gap that starts a new pending segment
	PauseGap      time.Duration // gap that emits a pause segment
	FinalizeGap   time.Duration // gap that finalizes on arrival, and idle flush age
	MaxChars      int           // pending length that forces a paragraph
}

// DefaultThresholds returns 2s / 3s / 5s gaps and 200 characters.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NewSegmentGap: 2 * time.Second,
		PauseGap:      3 * time.Second,
		FinalizeGap:   5 * time.Second,
		MaxChars:      200,
	}
}

type pending struct {
	text          string
	startedAt     time.Time
	lastSpeechAt  time.Time
	confidenceSum float64
	finals        int
}

// Segmenter accumulates final results into segments.
// It is not safe for concurrent use; one goroutine owns it.
type Segmenter struct {
	scope      string
	thresholds Thresholds
	ids        *IDGenerator

	pending      *pending
	lastSpeechAt time.Time
	spoken       bool
	history      []Segment
}

// New returns a segmenter whose segment IDs are prefixed with scope.
func New(scope string, thresholds Thresholds, ids *IDGenerator) *Segmenter {
	if ids == nil {
		ids = NewIDGenerator()
	}
	return &Segmenter{
		scope:      scope,
		thresholds: thresholds,
		ids:        ids,
	}
}

// AddFinal consumes one final recognition result received at now and
// returns the segments it finalized, in order. Blank text is ignored.
func (s *Segmenter) AddFinal(text string, confidence float64, now time.Time) []Segment {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []Segment
	first := !s.spoken
	var gap time.Duration
	if !first {
		gap = now.Sub(s.lastSpeechAt)
	}

	if first || gap > s.thresholds.NewSegmentGap {
		if s.pending != nil {
			out = append(out, s.finalize(KindSentence, now))
		}
		if !first && gap > s.thresholds.PauseGap {
			out = append(out, s.pause(gap, now))
		}
		s.pending = &pending{text: text, startedAt: now}
	} else if s.pending == nil {
		s.pending = &pending{text: text, startedAt: now}
	} else {
		s.pending.text += " " + text
	}

	s.pending.lastSpeechAt = now
	s.pending.confidenceSum += clampConfidence(confidence)
	s.pending.finals++
	s.lastSpeechAt = now
	s.spoken = true

	switch {
	case endsWithTerminal(s.pending.text):
		out = append(out, s.finalize(KindSentence, now))
	case utf8.RuneCountInString(s.pending.text) > s.thresholds.MaxChars:
		out = append(out, s.finalize(KindParagraph, now))
	case !first && gap > s.thresholds.FinalizeGap:
		out = append(out, s.finalize(KindSentence, now))
	}
	return out
}

// Flush finalizes any pending text regardless of timing.
func (s *Segmenter) Flush(now time.Time) []Segment {
	if s.pending == nil {
		return nil
	}
	return []Segment{s.finalize(KindSentence, now)}
}

// FlushIdle finalizes pending text once no speech has arrived for longer than the finalize gap.
func (s *Segmenter) FlushIdle(now time.Time) []Segment {
	if s.pending == nil || now.Sub(s.pending.lastSpeechAt) <= s.thresholds.FinalizeGap {
		return nil
	}
	return s.Flush(now)
}

// Pending returns the text not yet finalized.
func (s *Segmenter) Pending() (string, bool) {
	if s.pending == nil {
		return "", false
	}
	return s.pending.text, true
}

// History returns a copy of every finalized segment in arrival order.
func (s *Segmenter) History() []Segment {
	out := make([]Segment, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Segmenter) finalize(kind Kind, now time.Time) Segment {
	p := s.pending
	s.pending = nil

	seg := Segment{
		ID:              s.ids.Next(s.scope),
		Text:            p.text,
		CreatedAt:       now,
		Confidence:      p.confidenceSum / float64(p.finals),
		Kind:            kind,
		DurationSeconds: p.lastSpeechAt.Sub(p.startedAt).Seconds(),
	}
	s.history = append(s.history, seg)
	return seg
}

func (s *Segmenter) pause(gap time.Duration, now time.Time) Segment {
	seg := Segment{
		ID:              s.ids.Next(s.scope),
		CreatedAt:       now,
		Confidence:      1,
		Kind:            KindPause,
		DurationSeconds: gap.Seconds(),
	}
	s.history = append(s.history, seg)
	return seg
}

func endsWithTerminal(text string) bool {
	r, _ := utf8.DecodeLastRuneInString(text)
	return r == '.' || r == '!' || r == '?'
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
