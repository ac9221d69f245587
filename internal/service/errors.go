package service

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/client"
)

// Kind classifies a proxy failure for the emitter.
type Kind int

const (
	// KindMissingTarget means the url parameter was absent or empty.
	KindMissingTarget Kind = iota + 1
	// KindBlocked means the target, or a redirect hop, is not allowlisted.
	KindBlocked
	// KindUpstream covers every fetch failure after the allowlist check.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindMissingTarget:
		return "missing_target"
	case KindBlocked:
		return "blocked"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Error is a classified proxy failure. Public is safe to show to callers;
// Err carries the underlying cause for logs.
type Error struct {
	Kind   Kind
	Public string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Public
	}
	return e.Public + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Detail returns the underlying error text, or Public when there is none.
func (e *Error) Detail() string {
	if e.Err == nil {
		return e.Public
	}
	return e.Err.Error()
}

var (
	errMissingTarget = &Error{Kind: KindMissingTarget, Public: "Missing url"}
	errBlocked       = &Error{Kind: KindBlocked, Public: "Blocked by allowlist"}
)

// classifyFetchError maps an upstream client error to a Kind and a public message.
func classifyFetchError(err error) *Error {
	var redirect *client.RedirectBlockedError
	if errors.As(err, &redirect) {
		return &Error{Kind: KindBlocked, Public: errBlocked.Public, Err: err}
	}

	public := "upstream request failed"
	var (
		dnsErr *net.DNSError
		urlErr *url.Error
	)
	switch {
	case errors.Is(err, client.ErrBodyTooLarge):
		public = "upstream response too large"
	case errors.Is(err, context.DeadlineExceeded):
		public = "upstream request timed out"
	case errors.Is(err, context.Canceled):
		public = "client disconnected"
	case errors.As(err, &dnsErr):
		public = "upstream host unreachable"
	case errors.As(err, &urlErr):
		if urlErr.Timeout() {
			public = "upstream request timed out"
		} else {
			public = "upstream connection failed"
		}
	}
	return &Error{Kind: KindUpstream, Public: public, Err: err}
}
