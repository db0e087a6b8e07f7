package storage

import "strings"

const redactedCredentials = "*****"

// RedactURI masks the userinfo section of a connection string.
// Query parameters are dropped since they may carry secrets as well.
func RedactURI(uri string) string {
	if uri == "" {
		return ""
	}
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return redactedCredentials
	}
	rest, _, _ = strings.Cut(rest, "?")

	// Passwords may contain "/", so the userinfo ends at the last "@", not at the path.
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = redactedCredentials + "@" + rest[at+1:]
	}
	return scheme + "://" + rest
}
