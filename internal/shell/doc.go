// Package shell drives a U-Boot style bootloader shell over a console
// session.
//
// The Dispatcher is the package's center: it builds command strings, sends
// them through the console, and screens every response against failure
// patterns so callers see typed errors instead of raw error text. On top of
// that sit the actual operations: target inspection (command table,
// environment, version banner), memory access built on the md/mw hex dump
// commands, and a stratagem-backed memory writer that needs nothing but the
// crc32 command.
//
// Operations that can disturb the target (rebooting it, deploying payloads)
// are gated behind opt-in flags fixed at construction. When a gate is
// closed the operation returns a PermissionError before any byte reaches
// the target.
package shell
