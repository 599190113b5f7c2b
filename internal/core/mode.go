// Package core is the orchestration layer.  It composes the server,
// the client and the connect-mode capabilities into complete
// operational modes and provides a builder that selects the right mode
// from a Config.
//
// Architecture layers (bottom → top):
//
//	pool, conn, frame  →  server | client → capability  →  core  →  cmd
package core

import "context"

// Mode represents a complete operational mode of gosock (serve or
// connect).  Each mode owns its full lifecycle from setup to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
