// Package stratagem models multi-step operation plans built from side
// effects of otherwise innocuous bootloader commands.
//
// Some shells expose no direct way to write arbitrary memory, but do expose
// commands whose side effects can be chained into one: for example, a CRC32
// command that stores its result at a caller-chosen address can, applied
// repeatedly, construct an arbitrary payload. A Stratagem is the ordered
// record list describing such a chain. Producers (analysis or planning
// code) emit stratagems; consumers in the shell package replay them against
// a live target.
//
// Each operation declares a Spec naming the exact fields its records carry.
// Records are validated and type-normalized when appended, so a consumer
// can trust every record it is handed. Stratagems serialize to JSON so a
// plan computed once can be saved and replayed later.
package stratagem
