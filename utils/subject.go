package utils

import "strings"

// SplitSubject separates a leading "Subject: ..." line from generated
// text. Without one, subject is empty and body is the trimmed input.
func SplitSubject(text string) (subject, body string) {
	text = strings.TrimSpace(text)
	first, rest, _ := strings.Cut(text, "\n")
	trimmed := strings.TrimSpace(first)
	if len(trimmed) >= len("subject:") && strings.EqualFold(trimmed[:len("subject:")], "subject:") {
		return strings.TrimSpace(trimmed[len("subject:"):]), strings.TrimSpace(rest)
	}
	return "", text
}

// ReplySubject prefixes "Re: " unless the subject already carries it.
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	if subject == "" {
		return "Re: your message"
	}
	return "Re: " + subject
}
