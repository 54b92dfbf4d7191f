package domain

import "strings"

// AuditPrefix marks messages produced by the audit extension itself.
const AuditPrefix = "AUDIT: "

var connectionPrefixes = []string{
	"connection authenticated: identity=",
	"connection authorized: user=",
	"connection received: host=",
	"password authentication failed for user",
	"replication connection authorized: user=",
}

var disconnectionPrefixes = []string{
	"disconnection: session time:",
}

// Classify decides whether msg belongs in the audit log. It returns the
// number of leading bytes to drop before formatting, or -1 when the message
// is not an audit event.
func Classify(msg string, connections, disconnections bool) (bool, int) {
	if hasPrefixFold(msg, AuditPrefix) {
		return true, len(AuditPrefix)
	}
	if connections && hasAnyPrefixFold(msg, connectionPrefixes) {
		return true, 0
	}
	if disconnections && hasAnyPrefixFold(msg, disconnectionPrefixes) {
		return true, 0
	}
	return false, -1
}

func hasAnyPrefixFold(msg string, prefixes []string) bool {
	for _, p := range prefixes {
		if hasPrefixFold(msg, p) {
			return true
		}
	}
	return false
}

func hasPrefixFold(msg, prefix string) bool {
	return len(msg) >= len(prefix) && strings.EqualFold(msg[:len(prefix)], prefix)
}
