package shell

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/keelhaul-sec/keelhaul/internal/stratagem"
)

// CRC32WriterOperation names the stratagem operation executed by
// WriteMemoryCRC32.
const CRC32WriterOperation = "crc32_memory_write"

// CRC32WriterSpec is the record layout for CRC32WriterOperation:
//
//	src_addr   - address the first checksum reads from
//	src_size   - number of bytes the first checksum covers
//	dst_off    - where the resulting word lands, relative to the
//	             destination base address
//	iterations - how many times the checksum is applied; after the first,
//	             each iteration checksums the previous 4-byte result
//	tsrc_off   - when non-negative, the first read comes from this offset
//	             within the destination buffer instead of src_addr,
//	             allowing records to build on earlier output
var CRC32WriterSpec = stratagem.Spec{
	"src_addr":   stratagem.TypeUint,
	"src_size":   stratagem.TypeUint,
	"dst_off":    stratagem.TypeUint,
	"iterations": stratagem.TypeUint,
	"tsrc_off":   stratagem.TypeInt,
}

// StratagemSpecs maps the stratagem operations this package can execute to
// their record layouts, for deserializing saved plans.
var StratagemSpecs = map[string]stratagem.Spec{
	CRC32WriterOperation: CRC32WriterSpec,
}

// WriteMemoryCRC32 writes memory at dst using only the crc32 command,
// replaying a previously computed stratagem. Each record directs the target
// to checksum a chosen region (and then, iteratively, its own output) so
// that the final checksum value is the word the plan wants at that
// destination offset. The command's store-to-address form does the actual
// write; no memory-write command is ever issued.
func (d *Dispatcher) WriteMemoryCRC32(ctx context.Context, dst uint64, plan *stratagem.Stratagem) error {
	if op := plan.Operation(); op != CRC32WriterOperation {
		return fmt.Errorf("stratagem operation %q cannot drive a crc32 write", op)
	}

	d.logger.Info("Replaying crc32 write stratagem",
		zap.Uint64("dst", dst),
		zap.Int("records", plan.Len()),
		zap.Int("operations", plan.TotalOperations()))

	for i, rec := range plan.Entries() {
		src := rec["src_addr"].(uint64)
		if off := rec["tsrc_off"].(int64); off >= 0 {
			src = dst + uint64(off)
		}
		size := rec["src_size"].(uint64)
		out := dst + rec["dst_off"].(uint64)
		iterations := rec["iterations"].(uint64)

		cmd := fmt.Sprintf("crc32 %x %x %x", src, size, out)
		if _, err := d.SendCommand(ctx, cmd); err != nil {
			return fmt.Errorf("stratagem record %d: %w", i, err)
		}

		// Remaining iterations checksum the 4-byte result in place.
		for n := uint64(1); n < iterations; n++ {
			cmd := fmt.Sprintf("crc32 %x 4 %x", out, out)
			if _, err := d.SendCommand(ctx, cmd); err != nil {
				return fmt.Errorf("stratagem record %d, iteration %d: %w", i, n, err)
			}
		}
	}
	return nil
}
