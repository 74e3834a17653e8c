package validate

import (
	"regexp"
	"strings"
)

// emailPattern accepts the usual local@domain.tld shape. Deliverability is the
// mail provider's problem.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func Email(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// Phone accepts 7-15 digits once common separators are stripped.
func Phone(phone string) bool {
	digits := NormalizePhone(phone)
	if strings.HasPrefix(digits, "+") {
		digits = digits[1:]
	}
	return len(digits) >= 7 && len(digits) <= 15
}

// NormalizePhone drops spaces, dashes, dots and parentheses, keeping a leading '+'.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return ""
		}
	}
	return b.String()
}
