package services

import (
	"reflect"
	"testing"
)

func TestExtractMentions(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{"two mentions", "hi @Alice and @bob_2", []string{"alice", "bob_2"}},
		{"duplicates kept", "@Bob @bob ping", []string{"bob", "bob"}},
		{"no mentions", "plain text", []string{}},
		{"bare at sign", "mail me @ home", []string{}},
		{"punctuation ends token", "thanks @carol!", []string{"carol"}},
		{"email address", "write to dev@example.com", []string{"example"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractMentions(tt.text)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ExtractMentions(%q) = %v, expected %v", tt.text, got, tt.expected)
			}
		})
	}
}

func TestResolveMentions(t *testing.T) {
	roster := []RosterEntry{
		{UserID: 1, DisplayName: "Alice"},
		{UserID: 2, DisplayName: "Bob"},
		{UserID: 3, DisplayName: "Mary Jane"},
	}

	matches := ResolveMentions([]string{"bob", "maryjane", "bo", "alice", "bob"}, roster)
	if len(matches) != 5 {
		t.Fatalf("expected 5 matches, got %d", len(matches))
	}

	expected := []uint{2, 3, 0, 1, 2}
	for i, m := range matches {
		var got uint
		if m.Member != nil {
			got = m.Member.UserID
		}
		if got != expected[i] {
			t.Errorf("match %d (%s) resolved to %d, expected %d", i, m.Token, got, expected[i])
		}
	}
}

func TestResolveMentions_NoPartialMatch(t *testing.T) {
	roster := []RosterEntry{{UserID: 1, DisplayName: "Roberta"}}
	matches := ResolveMentions([]string{"rob"}, roster)
	if matches[0].Member != nil {
		t.Error("partial name must not resolve")
	}
}
