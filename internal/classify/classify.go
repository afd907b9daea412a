// Package classify maps raw failures from destinations and generation
// providers into a fixed error taxonomy. The classification is the single
// source of truth for retry and circuit-breaking decisions, so it must stay
// pure and deterministic: the same input always yields the same output.
package classify

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jonesrussell/social-publisher/internal/httperr"
)

// Kind identifies a category in the error taxonomy.
type Kind string

const (
	KindNetwork        Kind = "network"
	KindAuthentication Kind = "authentication"
	KindQuota          Kind = "quota"
	KindValidation     Kind = "validation"
	KindServer         Kind = "server"
	KindClient         Kind = "client"
	KindUnknown        Kind = "unknown"
)

// Classification describes how a failure should be handled.
type Classification struct {
	Kind Kind

	// IsRetryable reports whether the operation may be retried automatically.
	IsRetryable bool

	// IsCritical reports whether the failure should be escalated rather than
	// absorbed silently.
	IsCritical bool

	// RequiresUserAction reports whether the caller must intervene (new
	// credentials, adjusted input) before a retry can succeed.
	RequiresUserAction bool
}

// kindTable is an ordered keyword table. The first category whose keyword
// matches wins, so more specific categories must come before broader ones.
var kindTable = []struct {
	kind     Kind
	keywords []string
}{
	{KindAuthentication, []string{
		"unauthorized", "forbidden", "invalid token", "token expired",
		"authentication", "access denied", "invalid credentials",
		"api key", "401", "403",
	}},
	{KindQuota, []string{
		"quota", "rate limit", "too many requests", "limit exceeded",
		"retry after", "429", "flood",
	}},
	{KindValidation, []string{
		"validation", "invalid", "malformed", "bad request", "unprocessable",
		"too long", "unsupported", "missing required", "400", "422",
	}},
	{KindNetwork, []string{
		"timeout", "deadline exceeded", "connection refused",
		"connection reset", "no such host", "network is unreachable",
		"i/o timeout", "broken pipe", "eof", "temporary failure",
	}},
	{KindServer, []string{
		"internal server error", "bad gateway", "service unavailable",
		"gateway timeout", "500", "502", "503", "504", "overloaded",
	}},
	{KindClient, []string{
		"not found", "gone", "conflict", "404", "405", "409", "410",
	}},
}

// behavior maps each kind to its retry/escalation flags.
var behavior = map[Kind]Classification{
	KindNetwork:        {Kind: KindNetwork, IsRetryable: true},
	KindServer:         {Kind: KindServer, IsRetryable: true},
	KindAuthentication: {Kind: KindAuthentication, IsCritical: true, RequiresUserAction: true},
	KindQuota:          {Kind: KindQuota, RequiresUserAction: true},
	KindValidation:     {Kind: KindValidation, RequiresUserAction: true},
	KindClient:         {Kind: KindClient},
	KindUnknown:        {Kind: KindUnknown, IsCritical: true},
}

// Classify maps an error to its Classification. A nil error returns the
// zero Classification. Unmatched errors fail safe: unknown, critical,
// non-retryable.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	var he *httperr.Error
	if errors.As(err, &he) {
		if c, ok := classifyStatus(he.StatusCode); ok {
			return c
		}
	}

	return ClassifyMessage(err.Error())
}

// ClassifyMessage classifies a raw error message by keyword matching.
func ClassifyMessage(msg string) Classification {
	lowered := strings.ToLower(msg)
	for _, entry := range kindTable {
		for _, kw := range entry.keywords {
			if strings.Contains(lowered, kw) {
				return behavior[entry.kind]
			}
		}
	}
	return behavior[KindUnknown]
}

// classifyStatus classifies by HTTP status code when one is available; the
// code is more trustworthy than free-text matching.
func classifyStatus(code int) (Classification, bool) {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return behavior[KindAuthentication], true
	case code == http.StatusTooManyRequests:
		return behavior[KindQuota], true
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return behavior[KindValidation], true
	case code >= http.StatusInternalServerError:
		return behavior[KindServer], true
	case code >= http.StatusBadRequest:
		return behavior[KindClient], true
	default:
		return Classification{}, false
	}
}

// IsRetryable reports whether err classifies as retryable. Convenience for
// use as a retry predicate.
func IsRetryable(err error) bool {
	return Classify(err).IsRetryable
}
