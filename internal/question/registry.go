package question

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"
)

// DefaultDuplicateThreshold is the Jaro-Winkler score at which two
// question texts are treated as the same question.
const DefaultDuplicateThreshold = 0.92

// Question is a segment that was classified as question-like.
type Question struct {
	ID         string    `json:"questionId"`
	Text       string    `json:"text"`
	SegmentID  string    `json:"segmentId"`
	DetectedAt time.Time `json:"detectedAt"`
}

type knownQuestion struct {
	id         string
	normalized string
}

// Registry assigns question keys for one session. The same or a
// near-identical text always maps to the same key.
type Registry struct {
	namespace uuid.UUID
	threshold float64

	mu    sync.Mutex
	known []knownQuestion
}

// NewRegistry returns a registry whose keys are derived from sessionID.
func NewRegistry(sessionID string, threshold float64) *Registry {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultDuplicateThreshold
	}
	return &Registry{
		namespace: uuid.NewSHA1(uuid.NameSpaceURL, []byte("interview-copilot:"+sessionID)),
		threshold: threshold,
	}
}

// Key returns the question key for text.
func (r *Registry) Key(text string) string {
	norm := Normalize(text)

	r.mu.Lock()
	defer r.mu.Unlock()

	bestScore := 0.0
	bestID := ""
	for _, k := range r.known {
		if k.normalized == norm {
			return k.id
		}
		if score := matchr.JaroWinkler(k.normalized, norm, false); score > bestScore {
			bestScore, bestID = score, k.id
		}
	}
	if bestID != "" && bestScore >= r.threshold {
		return bestID
	}

	id := uuid.NewSHA1(r.namespace, []byte(norm)).String()
	r.known = append(r.known, knownQuestion{id: id, normalized: norm})
	return id
}

// Detect classifies a finalized segment and, when it is a question, returns it with its key.
func (r *Registry) Detect(segmentID, text string, now time.Time) (Question, bool) {
	if !IsQuestion(text) {
		return Question{}, false
	}
	return Question{
		ID:         r.Key(text),
		Text:       strings.TrimSpace(text),
		SegmentID:  segmentID,
		DetectedAt: now,
	}, true
}

// Normalize lowercases text, drops punctuation and collapses whitespace.
func Normalize(text string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}
