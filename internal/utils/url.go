package utils

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var (
	schemeRegex = regexp.MustCompile(`(?i)https?://`)
	urlRegex    = regexp.MustCompile(`(?i)https?://[^\s]+`)
)

// ContainsURL reports whether content carries an http or https scheme anywhere.
func ContainsURL(content string) bool {
	return schemeRegex.MatchString(content)
}

func FirstURL(content string) string {
	return urlRegex.FindString(content)
}

// LinkHost returns the lower-cased ASCII host of the first link in content, or "".
func LinkHost(content string) string {
	raw := FirstURL(content)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	if ascii, err := idna.ToASCII(host); err == nil {
		host = ascii
	}
	return host
}
