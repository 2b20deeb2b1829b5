package answer

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFallbacks_Select(t *testing.T) {
	fb := DefaultFallbacks()

	tests := []struct {
		question string
		expected string
	}{
		{"Where do you see yourself in five years?", "career-goal"},
		{"What is your greatest strength?", "strength"},
		{"What is your biggest weakness?", "weakness"},
		{"Tell me about a conflict with a coworker.", "conflict"},
		{"How would you design a URL shortener?", "technical"},
		{"Have you ever had to mentor someone?", "leadership"},
		{"Why should we hire you?", "generic"},
		{"Describe leading a project.", "leadership"},
		{"Was the brief ever misleading?", "generic"},
		{"Do you like steam trains?", "generic"},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			if got := fb.Select(tt.question).Name; got != tt.expected {
				t.Errorf("Select(%q): expected %s, got %s", tt.question, tt.expected, got)
			}
		})
	}
}

func TestFallbacks_For(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := DefaultFallbacks().For(Request{QuestionID: "q9", QuestionText: "Anything else?"}, now)

	if a.GeneratedBy != SourceFallback || a.QuestionID != "q9" || !a.GeneratedAt.Equal(now) {
		t.Errorf("unexpected fallback answer %+v", a)
	}
	if a.SampleAnswer == "" || len(a.KeyPoints) == 0 {
		t.Error("expected generic template content")
	}

	a.KeyPoints[0] = "changed"
	if DefaultFallbacks().Generic.KeyPoints[0] == "changed" {
		t.Error("expected key points to be copied")
	}
}

func TestLoadFallbacks(t *testing.T) {
	dir := t.TempDir()

	t.Run("empty path uses defaults", func(t *testing.T) {
		fb, err := LoadFallbacks("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(fb.Templates) != 6 {
			t.Errorf("expected 6 default templates, got %d", len(fb.Templates))
		}
	})

	t.Run("custom file", func(t *testing.T) {
		path := filepath.Join(dir, "templates.yaml")
		content := `
templates:
  - name: salary
    keywords: ["salary", "compensation"]
    sample_answer: "I am looking for a package in line with the market."
    key_points: ["Do research first"]
    structure_tips: "Range, reasoning, flexibility."
generic:
  name: generic
  sample_answer: "Answer directly."
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		fb, err := LoadFallbacks(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := fb.Select("What are your salary expectations?").Name; got != "salary" {
			t.Errorf("expected salary template, got %s", got)
		}
		if got := fb.Select("What is your strength?").Name; got != "generic" {
			t.Errorf("expected generic template, got %s", got)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("generic:\n  sample: x\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFallbacks(path); err == nil {
			t.Error("expected error for unknown field")
		}
	})

	t.Run("missing generic answer", func(t *testing.T) {
		path := filepath.Join(dir, "nogeneric.yaml")
		if err := os.WriteFile(path, []byte("templates: []\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadFallbacks(path); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadFallbacks(filepath.Join(dir, "absent.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestParseModelAnswer(t *testing.T) {
	content := "```json\n{\"sampleAnswer\": \"I build things.\", \"keyPoints\": [\"a\", \"b\"], \"structureTips\": \"STAR\"}\n```"
	a, err := parseModelAnswer(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.SampleAnswer != "I build things." || len(a.KeyPoints) != 2 || a.StructureTips != "STAR" {
		t.Errorf("unexpected answer %+v", a)
	}

	for _, bad := range []string{"no json here", `{"keyPoints": []}`, `{"sampleAnswer": `} {
		if _, err := parseModelAnswer(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
