// Package capability defines what connect mode does over an
// established connection: an interactive or piped console, or a load
// run that measures round trips.
package capability

import (
	"context"

	"gosock/internal/session"
)

// Capability drives one session until it is finished or ctx is
// cancelled.
type Capability interface {
	Handle(ctx context.Context, sess *session.Session) error
}
