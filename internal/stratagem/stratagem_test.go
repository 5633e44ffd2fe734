package stratagem

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

var testSpec = Spec{
	"src_addr":   TypeUint,
	"src_size":   TypeUint,
	"dst_off":    TypeUint,
	"iterations": TypeUint,
	"tsrc_off":   TypeInt,
}

func validRecord() Record {
	return Record{
		"src_addr":   uint64(0x82000000),
		"src_size":   uint64(1),
		"dst_off":    uint64(0),
		"iterations": uint64(1),
		"tsrc_off":   int64(-1),
	}
}

func TestAppendValidRecord(t *testing.T) {
	s := New("crc32_memory_write", testSpec)
	if err := s.Append(validRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 record, got %d", s.Len())
	}
}

func TestAppendRejectsUnknownField(t *testing.T) {
	s := New("crc32_memory_write", testSpec)
	rec := validRecord()
	rec["bogus"] = 1

	err := s.Append(rec)
	var fieldErr *UnknownFieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected UnknownFieldError, got %v", err)
	}
	if fieldErr.Field != "bogus" || fieldErr.Missing {
		t.Errorf("unexpected error detail: %+v", fieldErr)
	}
	if s.Len() != 0 {
		t.Error("rejected record must not be appended")
	}
}

func TestAppendRejectsMissingField(t *testing.T) {
	s := New("crc32_memory_write", testSpec)
	rec := validRecord()
	delete(rec, "iterations")

	err := s.Append(rec)
	var fieldErr *UnknownFieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected UnknownFieldError, got %v", err)
	}
	if fieldErr.Field != "iterations" || !fieldErr.Missing {
		t.Errorf("unexpected error detail: %+v", fieldErr)
	}
}

func TestAppendRejectsBadValue(t *testing.T) {
	s := New("crc32_memory_write", testSpec)
	rec := validRecord()
	rec["src_addr"] = "not a number"

	err := s.Append(rec)
	var valueErr *InvalidValueError
	if !errors.As(err, &valueErr) {
		t.Fatalf("expected InvalidValueError, got %v", err)
	}
	if valueErr.Field != "src_addr" {
		t.Errorf("unexpected field: %q", valueErr.Field)
	}
}

func TestAppendCoercesValues(t *testing.T) {
	s := New("crc32_memory_write", testSpec)
	err := s.Append(Record{
		"src_addr":   "0x82000000",
		"src_size":   4,
		"dst_off":    float64(16),
		"iterations": uint(2),
		"tsrc_off":   "-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := s.At(0)
	if rec["src_addr"] != uint64(0x82000000) {
		t.Errorf("src_addr not normalized: %#v", rec["src_addr"])
	}
	if rec["dst_off"] != uint64(16) {
		t.Errorf("dst_off not normalized: %#v", rec["dst_off"])
	}
	if rec["tsrc_off"] != int64(-1) {
		t.Errorf("tsrc_off not normalized: %#v", rec["tsrc_off"])
	}
}

func TestAppendOverrides(t *testing.T) {
	s := New("crc32_memory_write", testSpec)
	base := validRecord()

	err := s.Append(base,
		Record{"dst_off": uint64(4)},
		Record{"dst_off": uint64(8), "iterations": uint64(3)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := s.At(0)
	if rec["dst_off"] != uint64(8) {
		t.Errorf("later override must win, got %#v", rec["dst_off"])
	}
	if rec["iterations"] != uint64(3) {
		t.Errorf("override not applied, got %#v", rec["iterations"])
	}
	if rec["src_addr"] != uint64(0x82000000) {
		t.Errorf("base field lost, got %#v", rec["src_addr"])
	}
}

func TestAppendRejectsUnknownOverrideField(t *testing.T) {
	s := New("crc32_memory_write", testSpec)

	err := s.Append(validRecord(), Record{"nonsense": 7})
	var fieldErr *UnknownFieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected UnknownFieldError, got %v", err)
	}
}

func TestRecordIsolation(t *testing.T) {
	s := New("crc32_memory_write", testSpec)
	base := validRecord()
	if err := s.Append(base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mutating the caller's record after Append must not reach the stored one.
	base["dst_off"] = uint64(0xffff)
	if s.At(0)["dst_off"] != uint64(0) {
		t.Error("stored record shares memory with caller's record")
	}

	// Mutating a returned copy must not reach the stored one either.
	got := s.At(0)
	got["src_size"] = uint64(99)
	if s.At(0)["src_size"] != uint64(1) {
		t.Error("At returned a live reference to the stored record")
	}
}

func TestEntriesOrderAndIsolation(t *testing.T) {
	s := New("crc32_memory_write", testSpec)
	for i := 0; i < 3; i++ {
		if err := s.Append(validRecord(), Record{"dst_off": uint64(i * 4)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var offs []uint64
	for i, rec := range s.Entries() {
		if uint64(i*4) != rec["dst_off"] {
			t.Errorf("entry %d out of order: %#v", i, rec["dst_off"])
		}
		rec["dst_off"] = uint64(0xdead)
		offs = append(offs, rec["dst_off"].(uint64))
	}
	if len(offs) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(offs))
	}
	if s.At(1)["dst_off"] != uint64(4) {
		t.Error("mutating a yielded record reached the stratagem")
	}
}

func TestTotalOperations(t *testing.T) {
	s := New("crc32_memory_write", testSpec)
	for _, n := range []uint64{1, 5, 2} {
		if err := s.Append(validRecord(), Record{"iterations": n}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := s.TotalOperations(); got != 8 {
		t.Errorf("expected 8 total operations, got %d", got)
	}

	plain := New("noop", Spec{"value": TypeUint})
	_ = plain.Append(Record{"value": 1})
	_ = plain.Append(Record{"value": 2})
	if got := plain.TotalOperations(); got != 2 {
		t.Errorf("expected record count fallback, got %d", got)
	}
}

func TestStringIsDeterministic(t *testing.T) {
	s := New("crc32_memory_write", testSpec)
	if err := s.Append(validRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := s.String()
	for i := 0; i < 10; i++ {
		if s.String() != first {
			t.Fatal("String output varies between calls")
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	specs := map[string]Spec{"crc32_memory_write": testSpec}

	s := New("crc32_memory_write", testSpec)
	for i := 0; i < 3; i++ {
		err := s.Append(validRecord(), Record{"dst_off": uint64(i * 4), "iterations": uint64(i + 1)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := s.Save(&buf); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	loaded, err := Load(&buf, specs)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if loaded.Operation() != s.Operation() {
		t.Errorf("operation mismatch: %q", loaded.Operation())
	}
	if loaded.Len() != s.Len() {
		t.Fatalf("length mismatch: %d", loaded.Len())
	}
	for i, rec := range loaded.Entries() {
		want := s.At(i)
		for field, v := range want {
			if rec[field] != v {
				t.Errorf("entry %d field %q: expected %#v, got %#v", i, field, v, rec[field])
			}
		}
	}
	if loaded.TotalOperations() != s.TotalOperations() {
		t.Errorf("total operations mismatch: %d", loaded.TotalOperations())
	}
}

func TestLoadUnknownOperation(t *testing.T) {
	data := bytes.NewBufferString(`{"operation": "mystery", "entries": []}`)

	_, err := Load(data, map[string]Spec{"crc32_memory_write": testSpec})
	var opErr *UnknownOperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected UnknownOperationError, got %v", err)
	}
}

func TestLoadRevalidatesEntries(t *testing.T) {
	data := bytes.NewBufferString(`{
		"operation": "crc32_memory_write",
		"entries": [{"src_addr": 0, "src_size": 1, "dst_off": 0, "iterations": 1}]
	}`)

	_, err := Load(data, map[string]Spec{"crc32_memory_write": testSpec})
	var fieldErr *UnknownFieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected UnknownFieldError for missing tsrc_off, got %v", err)
	}
}

func TestSaveFileLoadFile(t *testing.T) {
	specs := map[string]Spec{"crc32_memory_write": testSpec}
	path := filepath.Join(t.TempDir(), "plan.json")

	s := New("crc32_memory_write", testSpec)
	if err := s.Append(validRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SaveFile(path); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	loaded, err := LoadFile(path, specs)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if loaded.Len() != 1 {
		t.Errorf("expected 1 record, got %d", loaded.Len())
	}
}
