// Package casing converts Go identifiers and dotted struct paths between
// naming conventions: snake_case for files and secrets, SCREAMING_SNAKE for
// environment variables and kebab-case for flags.
package casing

import (
	"strings"
	"unicode"
)

// words splits s into lowercase words. Dots, underscores, hyphens and
// spaces separate words; so does a case change. An upper-case run is one
// word (an acronym) except for its last letter when a lower-case letter
// follows: "HTTPPort" is http, port.
func words(s string) []string {
	r := []rune(s)
	var (
		out  []string
		word []rune
	)
	flush := func() {
		if len(word) > 0 {
			out = append(out, strings.ToLower(string(word)))
			word = word[:0]
		}
	}

	for i, c := range r {
		if c == '.' || c == '_' || c == '-' || c == ' ' {
			flush()
			continue
		}
		if len(word) > 0 && unicode.IsUpper(c) {
			prev := r[i-1]
			nextLower := i+1 < len(r) && unicode.IsLower(r[i+1])
			if !unicode.IsUpper(prev) || nextLower {
				flush()
			}
		}
		word = append(word, c)
	}
	flush()
	return out
}

// ToSnake converts s to snake_case. Dots become underscores, so
// "DB.PasswordFile" is "db_password_file".
func ToSnake(s string) string {
	return strings.Join(words(s), "_")
}

// ToScreamingSnake converts s to SCREAMING_SNAKE_CASE.
func ToScreamingSnake(s string) string {
	return strings.ToUpper(ToSnake(s))
}

// ToKebab converts s to kebab-case.
func ToKebab(s string) string {
	return strings.Join(words(s), "-")
}

// ToSnakePath converts each dot-separated segment of s to snake_case and
// keeps the dots: "Logging.LogLevel" is "logging.log_level".
func ToSnakePath(s string) string {
	segs := strings.Split(s, ".")
	for i, seg := range segs {
		segs[i] = ToSnake(seg)
	}
	return strings.Join(segs, ".")
}
