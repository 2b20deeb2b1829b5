package answer

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Template is a canned reference answer picked by keyword.
type Template struct {
	Name          string   `yaml:"name"`
	Keywords      []string `yaml:"keywords"`
	SampleAnswer  string   `yaml:"sample_answer"`
	KeyPoints     []string `yaml:"key_points"`
	StructureTips string   `yaml:"structure_tips"`
}

// Fallbacks selects a template when the generator cannot answer.
// Templates are tried in order; the generic template matches everything else.
type Fallbacks struct {
	Templates []Template `yaml:"templates"`
	Generic   Template   `yaml:"generic"`
}

// DefaultFallbacks returns the built-in template set.
func DefaultFallbacks() *Fallbacks {
	return &Fallbacks{
		Templates: []Template{
			{
				Name:     "career-goal",
				Keywords: []string{"career goal", "five years", "5 years", "future", "long-term", "aspiration"},
				SampleAnswer: "In the next few years I want to deepen my expertise in this field and take on more ownership. " +
					"This role fits that path because it lets me grow while contributing to the team's goals.",
				KeyPoints:     []string{"Show ambition that fits the role", "Connect goals to the company", "Stay realistic and specific"},
				StructureTips: "Short-term goal, long-term goal, then how this position bridges the two.",
			},
			{
				Name:     "strength",
				Keywords: []string{"strength", "good at", "best quality", "excel"},
				SampleAnswer: "One of my main strengths is breaking down ambiguous problems. " +
					"In my last project I turned a vague request into a clear plan that the team delivered early.",
				KeyPoints:     []string{"Pick a strength relevant to the job", "Back it with a concrete example", "Quantify the result"},
				StructureTips: "Name the strength, give one example, close with the impact.",
			},
			{
				Name:     "weakness",
				Keywords: []string{"weakness", "improve", "struggle", "development area"},
				SampleAnswer: "I used to take on too much myself instead of delegating. " +
					"I now plan work with the team up front and check in early, which has improved both delivery and trust.",
				KeyPoints:     []string{"Be honest but not disqualifying", "Show self-awareness", "Describe the steps you took"},
				StructureTips: "Weakness, what you did about it, what changed.",
			},
			{
				Name:     "conflict",
				Keywords: []string{"conflict", "disagree", "difficult", "challenge", "coworker", "colleague"},
				SampleAnswer: "A colleague and I disagreed on a design decision. " +
					"I set up a short meeting to compare trade-offs with data, we agreed on a hybrid approach, and the release went smoothly.",
				KeyPoints:     []string{"Stay professional", "Focus on resolution", "Share what you learned"},
				StructureTips: "Use STAR: Situation, Task, Action, Result.",
			},
			{
				Name:     "technical",
				Keywords: []string{"technical", "technology", "algorithm", "system", "design", "code", "architecture", "debug"},
				SampleAnswer: "I would start by clarifying requirements and constraints, outline a simple design, " +
					"then discuss trade-offs and how I would test and monitor it.",
				KeyPoints:     []string{"Clarify requirements first", "Explain trade-offs", "Mention testing and monitoring"},
				StructureTips: "Requirements, approach, trade-offs, validation.",
			},
			{
				Name:     "leadership",
				Keywords: []string{"lead", "leadership", "manage", "mentor", "team"},
				SampleAnswer: "I led a small team through a tight deadline by setting clear priorities, unblocking people daily, " +
					"and keeping stakeholders informed. We shipped on time.",
				KeyPoints:     []string{"Describe your role clearly", "Show how you supported others", "End with the outcome"},
				StructureTips: "Use STAR and highlight the decisions you made.",
			},
		},
		Generic: Template{
			Name:          "generic",
			SampleAnswer:  "Take a moment to structure your answer. Give a direct response, support it with a specific example from your experience, and close with the result or what you learned.",
			KeyPoints:     []string{"Answer the question directly", "Use a specific example", "Highlight the result"},
			StructureTips: "Point, example, result.",
		},
	}
}

// LoadFallbacks reads a YAML template file. An empty path returns the defaults.
func LoadFallbacks(path string) (*Fallbacks, error) {
	if path == "" {
		return DefaultFallbacks(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("answer: open fallback templates %q: %w", path, err)
	}
	defer f.Close()

	var fb Fallbacks
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&fb); err != nil {
		return nil, fmt.Errorf("answer: decode fallback templates %q: %w", path, err)
	}
	if err := fb.validate(); err != nil {
		return nil, fmt.Errorf("answer: fallback templates %q: %w", path, err)
	}
	return &fb, nil
}

func (f *Fallbacks) validate() error {
	var errs []error
	if strings.TrimSpace(f.Generic.SampleAnswer) == "" {
		errs = append(errs, errors.New("generic template needs a sample_answer"))
	}
	for i, t := range f.Templates {
		if len(t.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("template %d (%s) has no keywords", i, t.Name))
		}
		if strings.TrimSpace(t.SampleAnswer) == "" {
			errs = append(errs, fmt.Errorf("template %d (%s) needs a sample_answer", i, t.Name))
		}
	}
	return errors.Join(errs...)
}

// Select returns the first template with a keyword that starts a word in
// text. "lead" matches "leading" but not "mislead".
func (f *Fallbacks) Select(text string) Template {
	for _, t := range f.Templates {
		for _, kw := range t.Keywords {
			if keywordPattern(kw).MatchString(text) {
				return t
			}
		}
	}
	return f.Generic
}

func keywordPattern(keyword string) *regexp.Regexp {
	kw := strings.TrimSpace(keyword)
	pattern := strings.ReplaceAll(regexp.QuoteMeta(kw), " ", `\s+`)
	if r, _ := utf8.DecodeRuneInString(kw); unicode.IsLetter(r) || unicode.IsDigit(r) {
		pattern = `\b` + pattern
	}
	return regexp.MustCompile(`(?i)` + pattern)
}

// For builds the fallback reference answer for req.
func (f *Fallbacks) For(req Request, now time.Time) *ReferenceAnswer {
	t := f.Select(req.QuestionText)
	points := make([]string, len(t.KeyPoints))
	copy(points, t.KeyPoints)
	return &ReferenceAnswer{
		QuestionID:    req.QuestionID,
		QuestionText:  req.QuestionText,
		SampleAnswer:  t.SampleAnswer,
		KeyPoints:     points,
		StructureTips: t.StructureTips,
		GeneratedBy:   SourceFallback,
		GeneratedAt:   now,
	}
}
