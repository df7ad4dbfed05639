package services

import (
	"net/mail"
	"strings"
)

// splitDisplayName returns the display name and address of a From value.
func splitDisplayName(sender string) (string, string, bool) {
	addr, err := mail.ParseAddress(strings.TrimSpace(sender))
	if err != nil {
		return "", "", false
	}
	name := addr.Name
	if name == "" {
		if at := strings.Index(addr.Address, "@"); at > 0 {
			name = addr.Address[:at]
		}
	}
	return name, addr.Address, true
}
