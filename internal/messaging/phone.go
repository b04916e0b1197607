package messaging

import (
	"regexp"
	"strings"
)

var phoneDigitsRe = regexp.MustCompile(`\d+`)

// NormalizePhone strips everything but digits, so "+55 (11) 99999-0000",
// "5511999990000" and "5511999990000@c.us" map to the same caller.
func NormalizePhone(value string) string {
	value = strings.TrimSpace(value)
	if at := strings.IndexByte(value, '@'); at >= 0 {
		value = value[:at]
	}
	return strings.Join(phoneDigitsRe.FindAllString(value, -1), "")
}

// NormalizeE164 ensures the value begins with + and only contains digits afterward.
func NormalizeE164(value string) string {
	digits := NormalizePhone(value)
	if digits == "" {
		return ""
	}
	return "+" + digits
}
