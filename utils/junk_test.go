package utils

import (
	"strings"
	"testing"
)

func TestLooksLikeJunk(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		sender  string
		body    string
		want    bool
	}{
		{"keyword in subject", "Congratulations, you are selected", "a@b.com", "hello", true},
		{"keyword in body", "Hello", "a@b.com", "Please CLICK HERE to continue", true},
		{"bad sender domain", "Meeting", "deals@cheapoffers.com", "see you", true},
		{"disposable sender", "Meeting", "<someone@yopmail.com>", "see you", true},
		{"too many links", "Links", "a@b.com", strings.Repeat("http://x.io ", 4), true},
		{"three links is fine", "Links", "a@b.com", strings.Repeat("http://x.io ", 3), false},
		{"shouting subject", "BUY THIS GREAT THING NOW", "a@b.com", "", true},
		{"short shouting subject", "URGENT: CALL", "a@b.com", "", false},
		{"keyword inside a word", "Princeton alumni meetup", "a@b.com", "Winners of the bake-off announced", false},
		{"keyword as a word", "A message from a prince", "a@b.com", "", true},
		{"ordinary reply", "Re: our call on Tuesday", "Jane <jane@acme.com>", "Sounds good, talk then.", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooksLikeJunk(tt.subject, tt.sender, tt.body); got != tt.want {
				t.Errorf("LooksLikeJunk(%q, %q, %q) = %v, want %v", tt.subject, tt.sender, tt.body, got, tt.want)
			}
		})
	}
}
