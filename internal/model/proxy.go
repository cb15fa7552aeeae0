// Package model defines shared types for the gateway.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a client request to be forwarded to the origin.
// Path is the sub-path after the gateway mount prefix; RawQuery is the
// inbound query string, forwarded verbatim.
type ProxyRequest struct {
	Ctx      context.Context
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     io.ReadCloser
}

// ProxyResponse represents the origin response to be streamed back.
// Attempts records how many forwarding attempts were made before this
// response was obtained.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	Attempts   int
}
