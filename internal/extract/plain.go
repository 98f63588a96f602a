package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain decodes content as UTF-8 and trims surrounding whitespace.
// Invalid sequences are replaced with the replacement character.
func extractPlain(content []byte) (string, error) {
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return strings.TrimSpace(s), nil
}
