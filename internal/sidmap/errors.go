// Package sidmap implements SID string/binary conversion and the
// algorithmic SID<->POSIX-ID mapping described in sss_idmap.h: a global
// ID window sliced into fixed-size ranges, each range pinned to one
// domain SID.
package sidmap

import "errors"

// Sentinel errors classify every failure mode the idmap contract names.
// Callers at the responder boundary map these to §7 status codes.
var (
	ErrInvalidSID  = errors.New("sidmap: invalid sid")
	ErrOutOfSlices = errors.New("sidmap: no free slice")
	ErrCollision   = errors.New("sidmap: range collision")
	ErrNoDomain    = errors.New("sidmap: no domain")
	ErrBuiltinSID  = errors.New("sidmap: builtin sid")
	ErrExternal    = errors.New("sidmap: external range")
	ErrNoRange     = errors.New("sidmap: no range for id")
)
