package query

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// FallbackLanguage is returned whenever detection is not possible.
const FallbackLanguage = "en"

// DetectLanguage returns the ISO 639-1 code of text, or FallbackLanguage
// when the text is empty, detection is unreliable, or the detector fails.
func DetectLanguage(text string) (lang string) {
	defer func() {
		if recover() != nil {
			lang = FallbackLanguage
		}
	}()

	if strings.TrimSpace(text) == "" {
		return FallbackLanguage
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return FallbackLanguage
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return FallbackLanguage
	}
	return code
}
