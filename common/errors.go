package common

import "errors"

// ErrNotFound is returned by storage implementations when a lookup by id
// finds no matching row. Callers translate it to a 404 at the API boundary.
var ErrNotFound = errors.New("not found")

// ErrConflict names a write that would violate a uniqueness constraint. No
// storage method in db returns it: persisting a second Action for a
// tool_call_id the run already has fails with the wrapped SQLite
// constraint error instead.
var ErrConflict = errors.New("conflict")
