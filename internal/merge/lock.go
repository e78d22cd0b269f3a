package merge

import "github.com/schaltwerk/schaltwerk-core/internal/lockset"

// sessionLocks is the process-wide per-session merge lock: two concurrent
// merge attempts against the same session must never interleave, but
// merges against different sessions run fully in parallel.
var sessionLocks = lockset.NewTryLockSet()
