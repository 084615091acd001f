// Package engine turns a prompt into text by driving an external inference
// program over standard I/O or by calling a remote OpenAI-compatible API.
package engine

import "context"

// Engine produces a completion for a request as a stream of fragments.
// Failures are delivered as a terminal fragment; Stream never returns nil.
// Callers must Close the stream on every path.
type Engine interface {
	Stream(ctx context.Context, req Request) *Stream
}
