package sanitize

import (
	"strings"
	"testing"
)

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple lowercase",
			input:    "myproject",
			expected: "myproject",
		},
		{
			name:     "uppercase conversion",
			input:    "MyProject",
			expected: "myproject",
		},
		{
			name:     "dots to underscores",
			input:    "fix.bug",
			expected: "fix_bug",
		},
		{
			name:     "slashes to underscores",
			input:    "fix/bug",
			expected: "fix_bug",
		},
		{
			name:     "special characters",
			input:    "my-project!@#$%",
			expected: "my_project",
		},
		{
			name:     "multiple underscores collapsed",
			input:    "foo___bar",
			expected: "foo_bar",
		},
		{
			name:     "leading/trailing underscores trimmed",
			input:    "_foo_bar_",
			expected: "foo_bar",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "default",
		},
		{
			name:     "only invalid chars",
			input:    "!!!",
			expected: "default",
		},
		{
			name:     "numbers preserved",
			input:    "project123",
			expected: "project123",
		},
		{
			name:     "underscores preserved",
			input:    "my_project",
			expected: "my_project",
		},
		{
			name:     "spaces to underscores",
			input:    "my project",
			expected: "my_project",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Identifier(tt.input)
			if result != tt.expected {
				t.Errorf("Identifier(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestIdentifier_LengthLimit(t *testing.T) {
	// Test that long identifiers are truncated with hash
	longInput := strings.Repeat("a", 100)
	result := Identifier(longInput)

	if len(result) > MaxIdentifierLength {
		t.Errorf("Identifier should be <= %d chars, got %d", MaxIdentifierLength, len(result))
	}

	// Should end with hash suffix pattern _XXXXXXXX
	if !strings.Contains(result, "_") {
		t.Error("Truncated identifier should contain hash suffix")
	}
}

func TestIdentifier_LengthLimit_Uniqueness(t *testing.T) {
	// Different long inputs should produce different outputs
	input1 := strings.Repeat("a", 100)
	input2 := strings.Repeat("a", 99) + "b"

	result1 := Identifier(input1)
	result2 := Identifier(input2)

	if result1 == result2 {
		t.Error("Different inputs should produce different hashed outputs")
	}
}

func TestIdentifier_ExactlyMaxLength(t *testing.T) {
	// Input exactly at max length should not be truncated
	input := strings.Repeat("a", MaxIdentifierLength)
	result := Identifier(input)

	if result != input {
		t.Errorf("Input at max length should not be modified, got %q", result)
	}
}

func TestBranchName(t *testing.T) {
	tests := []struct {
		name        string
		prefix      string
		displayName string
		expected    string
	}{
		{
			name:        "default prefix",
			prefix:      "schaltwerk/",
			displayName: "Fix login bug",
			expected:    "schaltwerk/fix_login_bug",
		},
		{
			name:        "no prefix",
			prefix:      "",
			displayName: "Fix login bug",
			expected:    "fix_login_bug",
		},
		{
			name:        "prefix without trailing slash",
			prefix:      "schaltwerk",
			displayName: "demo",
			expected:    "schaltwerk/demo",
		},
		{
			name:        "empty display name falls back to default",
			prefix:      "schaltwerk/",
			displayName: "",
			expected:    "schaltwerk/default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BranchName(tt.prefix, tt.displayName)
			if result != tt.expected {
				t.Errorf("BranchName(%q, %q) = %q, want %q", tt.prefix, tt.displayName, result, tt.expected)
			}
		})
	}
}
