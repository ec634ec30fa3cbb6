// Package core is the orchestration layer.  It composes a transport, a
// session controller and the hydration tracker into complete
// operational modes, and provides a builder that selects the right mode
// from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  capability  →  session  →  core  →  cmd (CLI)
package core

import "context"

// Mode is a complete operational mode of drinksync (connect, listen,
// monitor or status).  Each session mode owns its session from the
// first connect to the final teardown.
type Mode interface {
	Run(ctx context.Context) error
}
