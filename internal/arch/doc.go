// Package arch describes target CPU architecture properties that console
// operations depend on.
//
// Console-level memory and register operations need to know a target's word
// size, endianness, and register file in order to build commands and decode
// their textual output. This package provides those facts for the supported
// architectures, plus a parser for the register dump a target prints when a
// data abort is triggered deliberately (the basis of the crash-based register
// readers in the register package).
//
// Register name lookup accepts the common aliases (sp, lr, pc, fp, ip) and
// resolves them to canonical names, so callers can use either form:
//
//	a, _ := arch.Get("arm")
//	reg, _ := a.Register("sp") // reg.Name == "r13"
//
// The Register.Ident selector bytes match the argument convention of
// register-return payloads executed via the payload package.
package arch
