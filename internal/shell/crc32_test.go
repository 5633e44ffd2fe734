package shell

import (
	"context"
	"errors"
	"testing"

	"github.com/keelhaul-sec/keelhaul/internal/stratagem"
)

func TestWriteMemoryCRC32(t *testing.T) {
	plan := stratagem.New(CRC32WriterOperation, CRC32WriterSpec)
	records := []stratagem.Record{
		{
			// Three iterations: checksum the source region, then the
			// result twice more.
			"src_addr":   uint64(0x82000000),
			"src_size":   uint64(0x20),
			"dst_off":    uint64(0),
			"iterations": uint64(3),
			"tsrc_off":   int64(-1),
		},
		{
			// Reads from offset 0 of the output built so far.
			"src_addr":   uint64(0),
			"src_size":   uint64(4),
			"dst_off":    uint64(4),
			"iterations": uint64(1),
			"tsrc_off":   int64(0),
		},
	}
	for _, rec := range records {
		if err := plan.Append(rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	fc := &fakeConsole{responses: map[string]string{
		"crc32 82000000 20 84000000": "crc32 for 82000000 ... 8200001f ==> 1a2b3c4d\n",
		"crc32 84000000 4 84000000":  "crc32 for 84000000 ... 84000003 ==> 99aabbcc\n",
		"crc32 84000000 4 84000004":  "crc32 for 84000000 ... 84000003 ==> 449df831\n",
	}}
	d := testDispatcher(t, fc, Options{})

	if err := d.WriteMemoryCRC32(context.Background(), 0x84000000, plan); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"crc32 82000000 20 84000000",
		"crc32 84000000 4 84000000",
		"crc32 84000000 4 84000000",
		"crc32 84000000 4 84000004",
	}
	if len(fc.sent) != len(want) {
		t.Fatalf("expected %v, sent %v", want, fc.sent)
	}
	for i := range want {
		if fc.sent[i] != want[i] {
			t.Errorf("command %d: expected %q, got %q", i, want[i], fc.sent[i])
		}
	}
}

func TestWriteMemoryCRC32RejectsForeignPlan(t *testing.T) {
	plan := stratagem.New("some_other_op", stratagem.Spec{"x": stratagem.TypeUint})
	fc := &fakeConsole{}
	d := testDispatcher(t, fc, Options{})

	if err := d.WriteMemoryCRC32(context.Background(), 0x84000000, plan); err == nil {
		t.Fatal("expected error for mismatched operation")
	}
	if len(fc.sent) != 0 {
		t.Errorf("rejected plan must not touch the target, sent %v", fc.sent)
	}
}

func TestWriteMemoryCRC32FailureNamesRecord(t *testing.T) {
	plan := stratagem.New(CRC32WriterOperation, CRC32WriterSpec)
	err := plan.Append(stratagem.Record{
		"src_addr":   uint64(0x1000),
		"src_size":   uint64(4),
		"dst_off":    uint64(0),
		"iterations": uint64(1),
		"tsrc_off":   int64(-1),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fc := &fakeConsole{responses: map[string]string{
		"crc32 1000 4 84000000": "data abort\n",
	}}
	d := testDispatcher(t, fc, Options{})

	werr := d.WriteMemoryCRC32(context.Background(), 0x84000000, plan)
	var opErr *OperationFailedError
	if !errors.As(werr, &opErr) {
		t.Fatalf("expected wrapped OperationFailedError, got %v", werr)
	}
}
