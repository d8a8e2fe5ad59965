// Package ingestion consumes raw sensor payloads from the gateway and
// hands them to the pipeline untouched. Parsing happens downstream so
// malformed payloads can be routed to the error channel instead of
// being dropped here.
package ingestion

import "context"

// Source delivers raw gateway payloads in arrival order. The channel
// is closed when the source shuts down or the context is cancelled.
type Source interface {
	Subscribe(ctx context.Context) (<-chan []byte, error)
	Close() error
}
