package services

import (
	"regexp"
	"strings"
	"unicode"
)

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// MentionMatch pairs a mention token with the member it resolved to.
// Member is nil for unresolved tokens.
type MentionMatch struct {
	Token  string
	Member *RosterEntry
}

// ExtractMentions returns the lowercased @tokens of text in order of
// appearance. Duplicates are kept: each occurrence is its own notification.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, strings.ToLower(m[1]))
	}
	return tokens
}

// ResolveMentions matches each token against the roster by display name
// with whitespace removed, case-insensitively and exactly.
func ResolveMentions(tokens []string, roster []RosterEntry) []MentionMatch {
	index := make(map[string]*RosterEntry, len(roster))
	for i := range roster {
		key := mentionKey(roster[i].DisplayName)
		if key == "" {
			continue
		}
		// First member wins when two names collapse to the same key.
		if _, exists := index[key]; !exists {
			index[key] = &roster[i]
		}
	}

	matches := make([]MentionMatch, 0, len(tokens))
	for _, token := range tokens {
		matches = append(matches, MentionMatch{
			Token:  token,
			Member: index[strings.ToLower(token)],
		})
	}
	return matches
}

func mentionKey(name string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, name))
}
