package store

import "errors"

// ErrWorkDirBusy is returned by OpenWorkDir when a working directory for
// the task already exists and has not been dropped yet (§5: no two
// workers may share a working directory).
var ErrWorkDirBusy = errors.New("store: working directory already open for task")

// ErrResultNotFound is returned when a result descriptor is requested for
// a task that has no published (or not-yet-expired) result.
var ErrResultNotFound = errors.New("store: result not found")
