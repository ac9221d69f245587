// Package model defines shared types for the proxy.
package model

import (
	"context"
)

// ProxyRequest is one inbound request to fetch and re-emit a remote page.
// TargetURL is raw, caller-supplied and untrusted.
type ProxyRequest struct {
	Ctx       context.Context
	TargetURL string
}

// UpstreamResponse is a fully buffered upstream reply.
type UpstreamResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
	FinalURL    string // after redirects
}

// ProxyResponse is what the emitter writes back to the caller.
type ProxyResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}
