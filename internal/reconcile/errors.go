package reconcile

import "errors"

// ErrReconciliationAborted indicates a tracker failure during
// snapshotting. No partial proposal is produced; the caller retries
// the whole pass.
var ErrReconciliationAborted = errors.New("reconcile: pass aborted")
