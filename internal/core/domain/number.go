package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const (
	// HomeCountryCode is the calling code applied to local numbers.
	HomeCountryCode = "91"

	nationalNumberLen = 10
	maxE164Digits     = 15
)

var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// NumberHash is the hex HMAC-SHA256 of an E.164 number. Raw numbers never
// leave the screening boundary; everything persisted or sent is keyed by this.
type NumberHash string

func (h NumberHash) String() string { return string(h) }

// IsValidHash reports whether s is exactly 64 lowercase hex characters.
func IsValidHash(s string) bool {
	return hashPattern.MatchString(s)
}

// NormalizeNumber rewrites a raw dialled number into E.164.
//
// Indian numbers are accepted with a trunk "0", a bare "91" country code, a
// "+91"/"0091" prefix or as ten plain digits, and always come out as
// "+91XXXXXXXXXX". Foreign numbers must carry "+" or "00" and are kept as-is.
func NormalizeNumber(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	international := strings.HasPrefix(trimmed, "+")

	var b strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if !international && strings.HasPrefix(digits, "00") {
		international = true
		digits = digits[2:]
	}

	if len(digits) < nationalNumberLen {
		return "", fmt.Errorf("%w: %d significant digits", ErrInvalidNumber, len(digits))
	}

	if international {
		if strings.HasPrefix(digits, HomeCountryCode) {
			if len(digits) != len(HomeCountryCode)+nationalNumberLen {
				return "", fmt.Errorf("%w: malformed +%s number", ErrInvalidNumber, HomeCountryCode)
			}
			return "+" + digits, nil
		}
		if len(digits) > maxE164Digits {
			return "", fmt.Errorf("%w: too many digits", ErrInvalidNumber)
		}
		return "+" + digits, nil
	}

	switch {
	case len(digits) == nationalNumberLen+1 && digits[0] == '0':
		digits = digits[1:]
	case len(digits) == nationalNumberLen+len(HomeCountryCode) && strings.HasPrefix(digits, HomeCountryCode):
		digits = digits[len(HomeCountryCode):]
	}

	if len(digits) != nationalNumberLen {
		return "", fmt.Errorf("%w: cannot resolve %d digits to a national number", ErrInvalidNumber, len(digits))
	}

	return "+" + HomeCountryCode + digits, nil
}

// Hasher derives NumberHash values with the application-wide salt.
type Hasher struct {
	salt []byte
}

func NewHasher(salt string) *Hasher {
	return &Hasher{salt: []byte(salt)}
}

// Hash normalizes raw and returns its keyed hash.
func (h *Hasher) Hash(raw string) (NumberHash, error) {
	e164, err := NormalizeNumber(raw)
	if err != nil {
		return "", err
	}
	return h.HashE164(e164), nil
}

// HashE164 hashes a number that is already normalized.
func (h *Hasher) HashE164(e164 string) NumberHash {
	mac := hmac.New(sha256.New, h.salt)
	mac.Write([]byte(e164))
	return NumberHash(hex.EncodeToString(mac.Sum(nil)))
}

// MaskNumber returns a display label showing only the last four digits.
func MaskNumber(raw string) string {
	var digits []rune
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return "••••"
	}
	return "••••••" + string(digits[len(digits)-4:])
}
