package query

import "testing"

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"english", "The quick brown fox jumps over the lazy dog while the farmer watches from the porch.", "en"},
		{"japanese", "これはにほんごのぶんしょうです。きょうはいいてんきですね。", "ja"},
		{"empty", "", FallbackLanguage},
		{"whitespace", "   \n\t", FallbackLanguage},
		{"digits", "12345 67890", FallbackLanguage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectLanguage(tt.text); got != tt.want {
				t.Errorf("DetectLanguage(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}
