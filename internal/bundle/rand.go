package bundle

import "crypto/rand"

// randRead is a thin seam over crypto/rand so tests can, in principle,
// substitute a deterministic source; production always uses the real one.
var randRead = rand.Read
