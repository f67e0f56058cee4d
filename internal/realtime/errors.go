package realtime

import "errors"

// ErrNotConnected signals an outbound event was attempted before the channel
// had a live connection.
var ErrNotConnected = errors.New("realtime channel not connected")
