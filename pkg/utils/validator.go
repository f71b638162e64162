package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	keyRegex     = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	controlRegex = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)
)

// MaxCommentLength caps free text attached to actions
const MaxCommentLength = 4000

// ValidateEmail validates an email address
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateKey checks a snake_case identifier such as a model type
func ValidateKey(key string) error {
	if !keyRegex.MatchString(key) {
		return fmt.Errorf("invalid key %q: use lowercase letters, digits and underscores", key)
	}
	return nil
}

// SanitizeComment strips control characters (keeping newlines and tabs),
// trims surrounding space and truncates to MaxCommentLength runes.
func SanitizeComment(s string) string {
	s = strings.TrimSpace(controlRegex.ReplaceAllString(s, ""))
	if utf8.RuneCountInString(s) <= MaxCommentLength {
		return s
	}
	return string([]rune(s)[:MaxCommentLength])
}
