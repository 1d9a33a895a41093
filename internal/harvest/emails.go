package harvest

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

// ExtractEmails returns the distinct email-like tokens in text, in order of
// first appearance. Case is preserved and distinct spellings are kept apart.
func ExtractEmails(text []byte) []string {
	matches := emailPattern.FindAll(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		email := string(m)
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out
}

// FilterByPrefix keeps emails whose lower-cased form starts with one of
// prefixes. Prefixes are expected in lower case and include the "@".
func FilterByPrefix(emails []string, prefixes []string) []string {
	var out []string
	for _, email := range emails {
		lower := strings.ToLower(email)
		for _, prefix := range prefixes {
			if strings.HasPrefix(lower, strings.ToLower(prefix)) {
				out = append(out, email)
				break
			}
		}
	}
	return out
}

// NormalizeWebsite trims the raw cell and prepends https:// when the value
// does not already start with "http". Blank input returns "".
func NormalizeWebsite(raw string) string {
	website := strings.TrimSpace(raw)
	if website == "" {
		return ""
	}
	if !strings.HasPrefix(website, "http") {
		website = "https://" + website
	}
	return website
}
