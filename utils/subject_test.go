package utils

import "testing"

func TestSplitSubject(t *testing.T) {
	tests := []struct {
		in, subject, body string
	}{
		{"Subject: Quick follow-up\n\nHi Jane,\nJust checking in.", "Quick follow-up", "Hi Jane,\nJust checking in."},
		{"subject:lowercase\nbody", "lowercase", "body"},
		{"  Hi there\nsecond line ", "", "Hi there\nsecond line"},
		{"Subject: only", "only", ""},
	}
	for _, tt := range tests {
		subject, body := SplitSubject(tt.in)
		if subject != tt.subject || body != tt.body {
			t.Errorf("SplitSubject(%q) = %q, %q; want %q, %q", tt.in, subject, body, tt.subject, tt.body)
		}
	}
}

func TestReplySubject(t *testing.T) {
	if got := ReplySubject("Pricing"); got != "Re: Pricing" {
		t.Errorf("got %q", got)
	}
	if got := ReplySubject("RE: Pricing"); got != "RE: Pricing" {
		t.Errorf("got %q", got)
	}
	if got := ReplySubject(""); got != "Re: your message" {
		t.Errorf("got %q", got)
	}
}
