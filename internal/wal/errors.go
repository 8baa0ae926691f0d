package wal

import "errors"

// ErrCorrupt indicates a frame whose length or CRC failed validation.
// A corrupt tail is expected after a crash and is truncated silently by
// Replay rather than surfaced as an error; Replay never returns
// ErrCorrupt.
var ErrCorrupt = errors.New("wal: corrupt frame")
