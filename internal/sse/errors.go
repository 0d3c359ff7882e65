package sse

import "errors"

// Sentinel errors for subscription handling.
var (
	// ErrUnknownChannel indicates a subscription to a channel outside the
	// fixed set (devices, scenarios, system).
	ErrUnknownChannel = errors.New("unknown sse channel")

	// ErrShuttingDown indicates a subscription attempt during shutdown.
	ErrShuttingDown = errors.New("sse manager shutting down")

	// ErrStreamingUnsupported indicates the response writer cannot flush,
	// so SSE cannot be served on it.
	ErrStreamingUnsupported = errors.New("response writer does not support streaming")
)
