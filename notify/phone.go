package notify

import (
	"strings"

	"github.com/Keeydi/LedgerMonitor-sub000/apperr"
)

// NormalizePhone converts raw into E.164. National numbers (leading trunk 0,
// or bare 10-digit mobile numbers) get countryCode prepended.
func NormalizePhone(raw, countryCode string) (string, error) {
	const op = "notify.NormalizePhone"

	s := strings.TrimSpace(raw)
	s = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(s)
	if s == "" {
		return "", apperr.Validation(op, "empty phone number")
	}

	international := false
	switch {
	case strings.HasPrefix(s, "+"):
		s = s[1:]
		international = true
	case strings.HasPrefix(s, "00"):
		s = s[2:]
		international = true
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return "", apperr.Validation(op, "phone number %q has non-digit characters", raw)
		}
	}

	if !international {
		switch {
		case strings.HasPrefix(s, "0"):
			s = countryCode + s[1:]
		case strings.HasPrefix(s, countryCode) && len(s) > 10:
		case len(s) == 10:
			s = countryCode + s
		}
	}

	if len(s) < 8 || len(s) > 15 {
		return "", apperr.Validation(op, "phone number %q has an invalid length", raw)
	}
	return "+" + s, nil
}
