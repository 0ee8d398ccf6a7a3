package prover

import (
	"errors"
	"testing"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		want       string
		wantErr    error
	}{
		{"lean fence", "Plan:\n```lean\nexample : 2 = 2 := rfl\n```\nDone.", "example : 2 = 2 := rfl", nil},
		{"first of many", "```lean\nfirst\n```\n```lean\nsecond\n```", "first", nil},
		{"lean4 tag", "```lean4\nexample : True := trivial\n```", "example : True := trivial", nil},
		{"prefers lean over untagged", "```\nplain\n```\n```lean\ntagged\n```", "tagged", nil},
		{"untagged fallback", "```\nexample : True := trivial\n```", "example : True := trivial", nil},
		{"multiline", "```lean\ntheorem t : 1 + 1 = 2 := by\n  norm_num\n```", "theorem t : 1 + 1 = 2 := by\n  norm_num", nil},
		{"other language only", "```python\nprint(1)\n```", "", ErrNoCodeBlockFound},
		{"none", "No code here.", "", ErrNoCodeBlockFound},
		{"unterminated", "```lean\nexample", "", ErrNoCodeBlockFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractCode(tt.completion)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ExtractCode error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractCode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContainsSorry(t *testing.T) {
	tests := []struct {
		source string
		want   bool
	}{
		{"theorem t : 2 = 2 := by\n  sorry", true},
		{"by\n  constructor <;> sorry", true},
		{"theorem t : 2 = 2 := rfl", false},
		{"theorem sorryless : True := trivial", false},
		{"def not_sorry_x := 1", false},
	}
	for _, tt := range tests {
		if got := ContainsSorry(tt.source); got != tt.want {
			t.Errorf("ContainsSorry(%q) = %v, want %v", tt.source, got, tt.want)
		}
	}
}
