package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)
)

// RedactPII masks e-mail addresses and card numbers before a turn is stored.
// Digit runs only count as cards when they pass the Luhn check, so amounts
// such as 24000000 or 1,500,000 stay readable.
func RedactPII(input string) (redacted string, changed bool) {
	out := emailPattern.ReplaceAllString(input, "[REDACTED_EMAIL]")
	changed = out != input

	out = cardPattern.ReplaceAllStringFunc(out, func(match string) string {
		if !luhnValid(match) {
			return match
		}
		changed = true
		return "[REDACTED_CARD]"
	})
	return out, changed
}

// luhnValid reports whether the digits of s (separators ignored) form a
// 13-19 digit number with a valid Luhn checksum.
func luhnValid(s string) bool {
	digits := make([]int, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
