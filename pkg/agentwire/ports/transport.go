// Package ports defines interfaces that the session engine needs from
// infrastructure. These are "ports" in hexagonal architecture - contracts
// defined by engine needs, not by external systems.
package ports

import "context"

// Transport defines what the engine needs from a duplex line transport.
// Implementations carry newline-delimited JSON in both directions; the
// engine owns the handle exclusively and serializes every write through
// its session actor.
type Transport interface {
	// Connect establishes the connection to the agent process.
	Connect(ctx context.Context) error

	// WriteLine sends one JSON object as a single line. The line must not
	// contain the trailing newline; the transport appends it.
	WriteLine(ctx context.Context, line []byte) error

	// ReadLines returns channels for incoming lines and for the fatal
	// transport error. The lines channel closes on EOF; at most one error
	// is ever delivered and it is fatal for the session.
	ReadLines(ctx context.Context) (<-chan []byte, <-chan error)

	// Close terminates the connection. It must be idempotent.
	Close() error

	// Ready reports whether the transport is connected and usable.
	Ready() bool
}
