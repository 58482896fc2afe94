package utils

import (
	"runtime"
	"testing"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{
			name:      "empty path",
			input:     "",
			wantError: true,
		},
		{
			name:      "relative path",
			input:     "./test",
			wantError: false,
		},
		{
			name:      "absolute path",
			input:     "/tmp/test",
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolvePath(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ResolvePath(%q) error = %v, wantError %v", tt.input, err, tt.wantError)
			}
			if !tt.wantError && result == "" {
				t.Errorf("ResolvePath(%q) returned empty string", tt.input)
			}
		})
	}
}

func TestNormPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"a/b/c", "a/b/c"},
		{"a//b/./c", "a/b/c"},
		{"a/b/../c", "a/c"},
	}

	for _, tt := range tests {
		if got := NormPath(tt.input); got != tt.want {
			t.Errorf("NormPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	if runtime.GOOS == "windows" {
		if got := NormPath(`a\b\c`); got != "a/b/c" {
			t.Errorf(`NormPath(a\b\c) = %q, want a/b/c`, got)
		}
	}
}
