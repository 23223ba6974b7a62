package platform

import (
	"fmt"
	"strings"
	"unicode"
)

// BackendHostname generates the public hostname for a tenant's backend API.
// Example: acme-api.hosting.example.com
func BackendHostname(subdomain, rootDomain string) string {
	return fmt.Sprintf("%s-api.%s", subdomain, rootDomain)
}

// FrontendHostname generates the public hostname for a tenant's frontend.
// Example: acme.hosting.example.com
func FrontendHostname(subdomain, rootDomain string) string {
	return fmt.Sprintf("%s.%s", subdomain, rootDomain)
}

// NormalizeProjectName turns a free-form client display name into the base
// of a platform project name: whitespace collapsed, each word capitalized,
// words joined with dashes. "acme  corp" -> "Acme-Corp".
func NormalizeProjectName(clientName string) string {
	words := strings.Fields(clientName)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, "-")
}

// ProjectName appends a zero-padded sequence number to a normalized base
// name. Sequence numbers keep repeat provisions for the same client distinct.
func ProjectName(base string, seq int) string {
	return fmt.Sprintf("%s-%03d", base, seq)
}
