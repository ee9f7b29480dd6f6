package otp

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrInvalidEmail is returned for addresses that cannot identify a record.
var ErrInvalidEmail = errors.New("otp: invalid email address")

// NormalizeEmail trims and lower-cases an address. It does not validate.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ParseEmail normalizes raw and rejects anything that is not a bare
// addr-spec (no display name, no angle brackets).
func ParseEmail(raw string) (string, error) {
	email := NormalizeEmail(raw)
	if email == "" || len(email) > 254 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// NormalizeCode keeps the ASCII digits of raw, truncates to width and
// left-pads with zeros. ok is false when raw carries no digit at all.
func NormalizeCode(raw string, width int) (code string, ok bool) {
	var b strings.Builder
	b.Grow(width)
	for i := 0; i < len(raw) && b.Len() < width; i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return "", false
	}

	code = b.String()
	if len(code) < width {
		code = strings.Repeat("0", width-len(code)) + code
	}
	return code, true
}
