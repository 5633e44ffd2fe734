// Package register reads CPU register values out of a running bootloader.
//
// No shell command prints registers directly, so every strategy here is a
// workaround. The crash strategies dereference an unmapped address with
// whichever faulting command the target has (md, cp, itest, setexpr, fdt,
// crc32) and parse the register dump its abort handler prints; they cost a
// reset and are gated accordingly. The go strategy executes a small
// deployed payload that hands a register value back through its exit code.
//
// A Set orders the strategies by preference, finds one that works, and
// records the winner in the device profile. CrossValidate runs them all
// and compares answers, which is how a new target's parsers earn trust.
package register
