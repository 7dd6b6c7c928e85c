// Package serialport wraps go.bug.st/serial for Serial Bridge.
//
// It exposes exactly the transport contract the bridge needs: open a
// byte-oriented device with fixed line settings, a line read bounded by
// a read timeout that returns whatever bytes are available, and a write
// accepting UTF-8 text. Reads returning (nil, nil) mean the line was
// quiet for the timeout window.
//
// The poll loop writes and the read loop reads; the two never share a
// direction, so the package carries no locking.
package serialport
