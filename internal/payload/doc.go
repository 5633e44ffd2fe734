// Package payload stages small machine-code payloads in target RAM and
// runs them through the go command.
//
// Payloads are opaque byte strings supplied by the operator; nothing here
// assembles or inspects them beyond assigning each a staging address.
// Deployment happens over the console one memory-write command at a time,
// so the registry tracks what is already resident and skips re-writing it.
// Everything that touches target RAM sits behind the deploy opt-in and
// returns a PermissionError, without sending a byte, when it is not set.
package payload
