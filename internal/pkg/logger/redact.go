package logger

import (
	"regexp"
	"strings"
)

var (
	emailRegex      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	profileURLRegex = regexp.MustCompile(`https?://([a-z]{2,3}\.)?linkedin\.com/in/[^\s/?"]+`)
)

// redactField masks contact data. Keys naming an email, phone or profile URL
// are masked whole; other values have embedded emails and profile URLs
// masked.
func redactField(key, val string) string {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "email"):
		return RedactEmail(val)
	case strings.Contains(key, "phone"):
		return RedactPhone(val)
	case strings.Contains(key, "profile_url"):
		return "https://linkedin.com/in/***"
	}
	val = emailRegex.ReplaceAllStringFunc(val, RedactEmail)
	return profileURLRegex.ReplaceAllString(val, "https://linkedin.com/in/***")
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone keeps the last two digits: "+49 151 2345678" → "***78".
func RedactPhone(phone string) string {
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 2 {
		return "***"
	}
	return "***" + string(digits[len(digits)-2:])
}
