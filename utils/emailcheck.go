package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/badoux/checkmail"
)

var ErrDisposableEmail = errors.New("disposable email domain")

var disposableDomains = map[string]bool{
	"mailinator.com":    true,
	"tempmail.org":      true,
	"10minutemail.com":  true,
	"guerrillamail.com": true,
	"trashmail.com":     true,
	"temp-mail.org":     true,
	"yopmail.com":       true,
	"maildrop.cc":       true,
	"dispostable.com":   true,
	"fakeinbox.com":     true,
	"throwawaymail.com": true,
	"mailnesia.com":     true,
	"getairmail.com":    true,
	"mytemp.email":      true,
	"temp-mail.io":      true,
	"fake-mail.com":     true,
	"tempail.com":       true,
	"sharklasers.com":   true,
	"grr.la":            true,
	"spamgourmet.com":   true,
}

// Common email typos
var commonTypos = map[string]string{
	"gmai.com":   "gmail.com",
	"gmal.com":   "gmail.com",
	"gmail.co":   "gmail.com",
	"yaho.com":   "yahoo.com",
	"hotmai.com": "hotmail.com",
	"outlok.com": "outlook.com",
}

// NormalizeContactEmail lower-cases and syntax-checks an outreach
// address. No network lookups are made.
func NormalizeContactEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := checkmail.ValidateFormat(email); err != nil {
		return "", fmt.Errorf("invalid email format: %w", err)
	}

	local, domain := splitAddress(email)
	if suggested, ok := commonTypos[domain]; ok {
		return "", fmt.Errorf("possible typo, did you mean %s@%s?", local, suggested)
	}
	if IsDisposableDomain(domain) {
		return "", ErrDisposableEmail
	}
	return email, nil
}

// ExtractDomain extracts domain from email address
func ExtractDomain(email string) string {
	_, domain := splitAddress(email)
	return domain
}

func IsDisposableDomain(domain string) bool {
	return disposableDomains[strings.ToLower(domain)]
}

func splitAddress(email string) (string, string) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email, ""
	}
	return email[:at], email[at+1:]
}
