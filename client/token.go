package client

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// newToken computes a correlation token of the form VERB_<8 hex chars>,
// matching the original client's uuid4-then-sha256-then-truncate
// construction exactly (spec.md §4.F). Collision probability per process
// is the documented ~2⁻³² per pair; this spec tolerates that risk rather
// than mandating collision detection.
func newToken(command string) string {
	id := uuid.New()
	sum := sha256.Sum256([]byte(id.String()))
	return fmt.Sprintf("%s_%s", command, hex.EncodeToString(sum[:])[:8])
}
