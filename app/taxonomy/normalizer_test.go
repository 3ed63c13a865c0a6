package taxonomy

import (
	"errors"
	"strings"
	"testing"
)

func TestRunEndToEnd(t *testing.T) {
	raw := `{"summary":"Interview invitation from Acme","category":"Job application","hasUnsubscribe":false,"transitionFrom":null,"transitionTo":"Interview"}`

	n := NewNormalizer()
	result, err := n.Run(raw)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result.Category != CategoryJob {
		t.Errorf("Expected category Job, got %s", result.Category)
	}
	if result.TransitionTo == nil || *result.TransitionTo != StageInterview {
		t.Errorf("Expected transitionTo Interview, got %v", result.TransitionTo)
	}
	if result.JobStage == nil || *result.JobStage != StageInterview {
		t.Errorf("Expected jobStage Interview, got %v", result.JobStage)
	}
	if result.TransitionFrom != nil {
		t.Errorf("Expected nil transitionFrom, got %v", *result.TransitionFrom)
	}
	if result.HasUnsubscribe {
		t.Error("Expected hasUnsubscribe false")
	}
	if result.Summary != "Interview invitation from Acme" {
		t.Errorf("Unexpected summary: %s", result.Summary)
	}
}

func TestRunMarkdownFencing(t *testing.T) {
	raw := "Here is the classification:\n```json\n{\"summary\":\"Offer from Acme\",\"category\":\"Job\",\"hasUnsubscribe\":false,\"transitionTo\":\"Offer received\"}\n```\nLet me know if you need anything else."

	n := NewNormalizer()
	result, err := n.Run(raw)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result.TransitionTo == nil || *result.TransitionTo != StageOffer {
		t.Errorf("Expected transitionTo Offer, got %v", result.TransitionTo)
	}
}

func TestRunStageAliasing(t *testing.T) {
	tests := []struct {
		name     string
		rawStage string
		expected *Stage
	}{
		{"application submitted alias", "Application Submitted", stagePtr(StageApplicationsSent)},
		{"exact enum value", "Interview", stagePtr(StageInterview)},
		{"slug round-trip", "oa_screening", stagePtr(StageOaScreening)},
		{"no reply alias", "no reply", stagePtr(StageNoResponse)},
		{"unrecognized stage", "Telepathy Round", nil},
	}

	n := NewNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"summary":"s","category":"Job","hasUnsubscribe":false,"transitionTo":"` + tt.rawStage + `"}`
			result, err := n.Run(raw)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if tt.expected == nil {
				if result.TransitionTo != nil {
					t.Errorf("Expected nil transitionTo, got %v", *result.TransitionTo)
				}
				if result.JobStage != nil {
					t.Errorf("Expected nil jobStage, got %v", *result.JobStage)
				}
			} else {
				if result.TransitionTo == nil || *result.TransitionTo != *tt.expected {
					t.Errorf("Expected transitionTo %v, got %v", *tt.expected, result.TransitionTo)
				}
			}
		})
	}
}

func TestRunTransitionFromRequiresValidTo(t *testing.T) {
	n := NewNormalizer()

	// Valid from, invalid to: from must be forced null.
	raw := `{"summary":"s","category":"Job","hasUnsubscribe":false,"transitionFrom":"Interview","transitionTo":"Nonsense"}`
	result, err := n.Run(raw)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.TransitionFrom != nil {
		t.Errorf("Expected nil transitionFrom when transitionTo invalid, got %v", *result.TransitionFrom)
	}
}

func TestRunCategoryCoercion(t *testing.T) {
	tests := []struct {
		raw      string
		expected Category
	}{
		{"Job application", CategoryJob},
		{"job", CategoryJob},
		{"Other", CategoryOther},
		{"newsletter", CategoryOther},
		{"", CategoryOther},
	}

	n := NewNormalizer()
	for _, tt := range tests {
		raw := `{"summary":"s","category":"` + tt.raw + `","hasUnsubscribe":true}`
		result, err := n.Run(raw)
		if err != nil {
			t.Fatalf("Expected no error for category %q, got %v", tt.raw, err)
		}
		if result.Category != tt.expected {
			t.Errorf("Category %q: expected %s, got %s", tt.raw, tt.expected, result.Category)
		}
	}
}

func TestRunFormatErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no JSON object", "I could not classify this message."},
		{"unbalanced braces", `{"summary":"s"`},
		{"missing summary", `{"category":"Job","hasUnsubscribe":false}`},
		{"non-string summary", `{"summary":42,"category":"Job","hasUnsubscribe":false}`},
		{"missing category", `{"summary":"s","hasUnsubscribe":false}`},
		{"non-boolean hasUnsubscribe", `{"summary":"s","category":"Job","hasUnsubscribe":"yes"}`},
	}

	n := NewNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Run(tt.raw)
			if err == nil {
				t.Fatal("Expected FormatError, got nil")
			}
			var formatErr *FormatError
			if !errors.As(err, &formatErr) {
				t.Fatalf("Expected *FormatError, got %T", err)
			}
			if formatErr.Raw != tt.raw {
				t.Error("Expected FormatError to carry the raw text")
			}
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		found    bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"prose around object", `sure: {"a":1} done`, `{"a":1}`, true},
		{"braces inside strings", `{"a":"}{"}`, `{"a":"}{"}`, true},
		{"escaped quotes", `{"a":"say \"}\" ok"}`, `{"a":"say \"}\" ok"}`, true},
		{"nested objects", `{"a":{"b":2}}`, `{"a":{"b":2}}`, true},
		{"nothing", "plain text", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.input)
			if ok != tt.found {
				t.Fatalf("Expected found=%v, got %v", tt.found, ok)
			}
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestStageSlugs(t *testing.T) {
	for _, s := range Stages {
		if s.Slug() == "" {
			t.Errorf("Stage %s has no slug", s)
		}
		if strings.ToLower(s.Slug()) != s.Slug() {
			t.Errorf("Slug for %s is not lowercase: %s", s, s.Slug())
		}
	}
	if Stage("Bogus").IsValid() {
		t.Error("Expected Bogus to be invalid")
	}
}

func stagePtr(s Stage) *Stage {
	return &s
}
