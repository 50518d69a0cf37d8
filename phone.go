package client

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// PhoneEmailDomain is the synthetic domain used to satisfy the identity
// provider's email/password account model.
const PhoneEmailDomain = "phone.local"

const sgCountryCode = "65"

// OnlyDigits strips every non-digit character from s.
func OnlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isValidLocal(digits string) bool {
	if len(digits) != 8 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizePhone normalizes user input to E.164 for Singapore: +65XXXXXXXX.
// Accepted shapes: 8 local digits (91234567), country code plus local
// (6591234567), and the same with a leading plus (+6591234567).
func NormalizePhone(input string) (string, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return "", ErrPhoneRequired
	}

	digits := OnlyDigits(raw)

	if strings.HasPrefix(raw, "+") {
		if strings.HasPrefix(digits, sgCountryCode) {
			digits = digits[len(sgCountryCode):]
		}
	} else if strings.HasPrefix(digits, sgCountryCode) && len(digits) == 10 {
		digits = digits[len(sgCountryCode):]
	}

	if !isValidLocal(digits) {
		return "", ErrInvalidPhone
	}

	return "+" + sgCountryCode + digits, nil
}

// PhoneToEmail converts a phone number to its identity-provider alias:
// 6591234567@phone.local.
func PhoneToEmail(phone string) (string, error) {
	e164, err := NormalizePhone(phone)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(e164, "+") + "@" + PhoneEmailDomain, nil
}

// IsPhoneEmail reports whether email is in our phone-alias format.
func IsPhoneEmail(email string) bool {
	s := strings.ToLower(strings.TrimSpace(email))
	local, domain, ok := strings.Cut(s, "@")
	if !ok || domain != PhoneEmailDomain {
		return false
	}
	return len(local) == 10 && local == OnlyDigits(local)
}

// EmailToPhone converts a phone-alias email back to E.164. It returns "" when
// the input does not match the alias shape; this is a format probe, not a
// parse that should fail.
func EmailToPhone(email string) string {
	s := strings.ToLower(strings.TrimSpace(email))
	if !IsPhoneEmail(s) {
		return ""
	}
	local, _, _ := strings.Cut(s, "@")
	return "+" + local
}

// FormatPhoneNational renders an E.164 number in the national display format
// (e.g. "9123 4567"). Falls back to the input when it cannot be parsed.
func FormatPhoneNational(e164 string) string {
	num, err := phonenumbers.Parse(e164, "SG")
	if err != nil {
		return e164
	}
	return phonenumbers.Format(num, phonenumbers.NATIONAL)
}
