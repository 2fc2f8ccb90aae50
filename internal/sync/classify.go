package sync

import (
	"strings"

	"photoframe-sync/internal/domain"
)

// permanentSubstrings never succeed on retry (spec §4.4.1).
var permanentSubstrings = []string{
	"invalid_grant",
	"permission denied",
	"folder not found",
	"invalid folder",
	"403 forbidden",
}

// transientSubstrings include OS-level error code names (checked as
// substrings, since the standard library doesn't expose a portable errno
// type across every provider transport) plus well-known network/auth phrases.
var transientSubstrings = []string{
	"econnreset", "etimedout", "enotfound", "eai_again", "econnrefused",
	"enetunreach", "ehostunreach", "ehostdown", "enetdown", "epipe",
	"network", "offline", "timeout", "connection",
	"authentication failed", "auth", "token expired", "enotfound",
}

// Classify decides whether err should be retried. A domain.ClassifiedError
// tag is trusted outright; otherwise it falls back to substring sniffing.
// Unknown errors are treated as transient — conservative, prefer to keep
// trying (spec §4.4.1).
func Classify(err error) domain.ErrClass {
	if err == nil {
		return domain.ClassUnknown
	}

	if c := domain.ClassOf(err); c != domain.ClassUnknown {
		return c
	}

	msg := strings.ToLower(err.Error())
	for _, s := range permanentSubstrings {
		if strings.Contains(msg, s) {
			return domain.ClassPermanent
		}
	}
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return domain.ClassTransient
		}
	}
	return domain.ClassTransient
}
