package utils

import (
	"regexp"
	"strings"
	"unicode"
)

var junkKeywords = regexp.MustCompile(`\b(congratulations|lottery|you won|winner|free money|claim now|urgent action|100% free|credit score|work from home|click here|limited offer|prince)\b`)

var junkSenderMarkers = []string{
	"cheapoffers.com",
	"randommail.ru",
	"tempmail",
	"nigerian-prince",
}

const maxLinks = 3

// LooksLikeJunk is the local pre-filter run before any classification
// call. It matches on spam keywords, known bad sender domains, link
// count and an all-caps subject of more than three words.
func LooksLikeJunk(subject, sender, body string) bool {
	text := strings.ToLower(subject + " " + body)
	if junkKeywords.MatchString(text) {
		return true
	}

	sender = strings.ToLower(sender)
	for _, marker := range junkSenderMarkers {
		if strings.Contains(sender, marker) {
			return true
		}
	}
	if IsDisposableDomain(ExtractDomain(strings.Trim(sender, "<> "))) {
		return true
	}

	if strings.Count(text, "http") > maxLinks {
		return true
	}

	return isShouting(subject)
}

func isShouting(subject string) bool {
	if len(strings.Fields(subject)) <= 3 {
		return false
	}
	hasLetter := false
	for _, r := range subject {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}
