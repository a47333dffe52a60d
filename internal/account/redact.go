package account

import (
	"net/url"
	"strings"
)

// Unset marks an empty secret in redacted output.
const Unset = "<unset>"

func mask(s string) string {
	return strings.Repeat("*", len([]rune(s)))
}

// RedactSecret hides a secret while leaving enough shape to recognize
// it: values longer than six runes keep their first and last rune.
func RedactSecret(secret string) string {
	runes := []rune(secret)
	switch {
	case len(runes) == 0:
		return Unset
	case len(runes) <= 6:
		return mask(secret)
	default:
		return string(runes[0]) + mask(string(runes[1:len(runes)-1])) + string(runes[len(runes)-1])
	}
}

// RedactURI masks every component of an absolute URI while preserving
// its structure (scheme, host labels, port, path depth).
func RedactURI(raw string) string {
	if raw == "" {
		return Unset
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return RedactSecret(raw)
	}

	labels := strings.Split(u.Hostname(), ".")
	for i, l := range labels {
		labels[i] = mask(l)
	}
	var b strings.Builder
	b.WriteString(mask(u.Scheme))
	b.WriteString("://")
	b.WriteString(strings.Join(labels, "."))
	if port := u.Port(); port != "" {
		b.WriteString(":")
		b.WriteString(mask(port))
	}
	if u.Path != "" {
		parts := strings.Split(u.Path, "/")
		for i, p := range parts {
			parts[i] = mask(p)
		}
		b.WriteString(strings.Join(parts, "/"))
	}
	return b.String()
}
