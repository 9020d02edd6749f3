// Package delivery defines the contract every transport entrypoint
// (HTTP API, worker) fulfils.
package delivery

import "context"

// Delivery is a long-running transport server started by main.
type Delivery interface {
	// Serve blocks until the server stops or fails.
	Serve(ctx context.Context) error
}
