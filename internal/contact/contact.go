package contact

import (
	"net/mail"
	"strings"
	"unicode"

	"otp/internal/domain"
)

const (
	minPhoneDigits = 8
	maxPhoneDigits = 15
)

// Normalize validates a contact value for the given channel and
// returns its canonical form: lowercased address for email, E.164-ish
// "+digits" for sms. Malformed input returns domain.ErrInvalidContact.
func Normalize(ch domain.Channel, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.ErrInvalidContact
	}
	switch ch {
	case domain.ChannelEmail:
		return normalizeEmail(raw)
	case domain.ChannelSMS:
		return normalizePhone(raw)
	default:
		return "", domain.ErrInvalidChannel
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", domain.ErrInvalidContact
	}
	// Reject display-name forms; we want a bare address.
	if addr.Address != raw {
		return "", domain.ErrInvalidContact
	}
	return strings.ToLower(addr.Address), nil
}

func normalizePhone(raw string) (string, error) {
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r == '+' && i == 0:
			continue
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			continue
		default:
			return "", domain.ErrInvalidContact
		}
	}
	digits := b.String()
	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", domain.ErrInvalidContact
	}
	if digits[0] == '0' {
		return "", domain.ErrInvalidContact
	}
	return "+" + digits, nil
}

// Mask hides most of a contact value for responses and logs:
// "j***e@example.com", "+4479*****21".
func Mask(ch domain.Channel, contact string) string {
	switch ch {
	case domain.ChannelEmail:
		at := strings.IndexByte(contact, '@')
		if at <= 1 {
			return "***" + contact[max(at, 0):]
		}
		local := contact[:at]
		return local[:1] + "***" + local[len(local)-1:] + contact[at:]
	case domain.ChannelSMS:
		if len(contact) <= 7 {
			return "*****"
		}
		return contact[:5] + strings.Repeat("*", len(contact)-7) + contact[len(contact)-2:]
	default:
		return "***"
	}
}
