package extract

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

var validExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
	".html": true,
	".htm":  true,
}

// FileExtension returns the lower-cased extension of filename, dot included.
func FileExtension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// IsValidFileType reports whether filename has a supported extension.
func IsValidFileType(filename string) bool {
	return validExtensions[FileExtension(filename)]
}

// SanitizeFilename keeps letters, digits and "._- " and trims surrounding
// space. A name with nothing left becomes "file_" plus eight random hex digits.
func SanitizeFilename(filename string) string {
	var b strings.Builder
	for _, r := range filename {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._- ", r) {
			b.WriteRune(r)
		}
	}
	safe := strings.TrimSpace(b.String())
	if safe == "" {
		safe = "file_" + uuid.New().String()[:8]
	}
	return safe
}

// TruncateText cuts text to maxLength characters and appends "..." when it
// was longer. It never splits a multi-byte character. A negative maxLength
// is treated as zero.
func TruncateText(text string, maxLength int) string {
	maxLength = max(maxLength, 0)
	if utf8.RuneCountInString(text) <= maxLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxLength]) + "..."
}
