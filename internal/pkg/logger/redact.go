package logger

import "strings"

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

// RedactPhone masks a phone number for safe logging, keeping the last four
// digits: "+14155552671" → "+********2671".
func RedactPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	prefix := ""
	body := phone
	if strings.HasPrefix(phone, "+") {
		prefix = "+"
		body = phone[1:]
	}
	if len(body) <= 4 {
		return prefix + "****"
	}
	return prefix + strings.Repeat("*", len(body)-4) + body[len(body)-4:]
}
