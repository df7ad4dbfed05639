package utils

import (
	"net/url"
	"regexp"
	"strings"
)

var trailingProfileID = regexp.MustCompile(`-\d+$`)

// NameFromLinkedIn turns a profile URL such as
// linkedin.com/in/jane-doe-1234 into "Jane Doe".
func NameFromLinkedIn(profileURL string) string {
	profileURL = strings.TrimSpace(profileURL)
	if profileURL == "" {
		return ""
	}
	if !strings.HasPrefix(profileURL, "http://") && !strings.HasPrefix(profileURL, "https://") {
		profileURL = "https://" + profileURL
	}
	parsed, err := url.Parse(profileURL)
	if err != nil {
		return ""
	}

	path := strings.TrimRight(parsed.Path, "/")
	slug := path[strings.LastIndex(path, "/")+1:]
	slug = trailingProfileID.ReplaceAllString(slug, "")

	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
