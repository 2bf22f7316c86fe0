package domain

import (
	"context"
	"errors"
	"strings"
)

// Kind classifies a failure for the HTTP layer.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindProbe           Kind = "probe_error"
	KindParse           Kind = "parse_error"
	KindDownload        Kind = "download_error"
	KindTimeout         Kind = "timeout"
	KindArtifactMissing Kind = "artifact_missing"
	KindNotFound        Kind = "not_found"
	KindRateLimited     Kind = "rate_limited"
	KindInternal        Kind = "internal_error"
)

// MaxExcerpt caps how much tool output reaches a client.
const MaxExcerpt = 200

// Error is a failure tagged with its kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fail builds a tagged error. cause may be nil.
func Fail(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// Classify returns the kind of err and the message safe to show a client.
// Untagged deadline errors become timeouts; everything else untagged is an
// internal error reported with its string form.
func Classify(err error) (Kind, string) {
	if err == nil {
		return "", ""
	}

	var de *Error
	if errors.As(err, &de) {
		return de.Kind, de.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, "operation timed out, please retry later"
	}
	return KindInternal, Excerpt("unexpected error: " + err.Error())
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	k, _ := Classify(err)
	return k == kind
}

// Excerpt trims s and cuts it to MaxExcerpt characters.
func Excerpt(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) > MaxExcerpt {
		return string(r[:MaxExcerpt])
	}
	return s
}
