package stratagem

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// FieldType constrains the values a stratagem field may hold. Unsigned
// fields are stored as uint64, signed fields as int64.
type FieldType int

const (
	TypeUint FieldType = iota
	TypeInt
	TypeString
	TypeBool
)

// IterationsField, when present in a specification, is the per-record
// repetition count used by TotalOperations.
const IterationsField = "iterations"

// Spec names the fields an operation's records must carry, and their types.
// Every record of a stratagem must have exactly this field set.
type Spec map[string]FieldType

// Record is one entry of a stratagem. Values are normalized on append:
// unsigned fields to uint64, signed to int64.
type Record map[string]any

// Stratagem is an ordered list of records describing how an operation
// (typically a memory write built from side effects of innocuous commands)
// is to be carried out. Records are validated against the operation's field
// specification on append and are isolated from callers: mutations to a
// record after Append, or to one returned by At or Entries, never affect
// the stratagem.
type Stratagem struct {
	operation string
	spec      Spec
	records   []Record
}

// New creates an empty stratagem for the named operation.
func New(operation string, spec Spec) *Stratagem {
	s := &Stratagem{operation: operation, spec: make(Spec, len(spec))}
	for k, v := range spec {
		s.spec[k] = v
	}
	return s
}

// Operation returns the name of the operation this stratagem drives.
func (s *Stratagem) Operation() string { return s.operation }

// Len returns the number of records.
func (s *Stratagem) Len() int { return len(s.records) }

// Append validates base, merged with any overrides applied in order, and
// appends the result. The merged record's field set must exactly match the
// specification. The inputs are copied; the caller may reuse them.
func (s *Stratagem) Append(base Record, overrides ...Record) error {
	merged := make(Record, len(s.spec))
	for k, v := range base {
		merged[k] = v
	}
	for _, o := range overrides {
		for k, v := range o {
			merged[k] = v
		}
	}

	for field := range merged {
		if _, ok := s.spec[field]; !ok {
			return &UnknownFieldError{Operation: s.operation, Field: field}
		}
	}
	for field := range s.spec {
		if _, ok := merged[field]; !ok {
			return &UnknownFieldError{Operation: s.operation, Field: field, Missing: true}
		}
	}

	for field, ft := range s.spec {
		v, err := coerce(ft, merged[field])
		if err != nil {
			return &InvalidValueError{Operation: s.operation, Field: field, Value: merged[field], Err: err}
		}
		merged[field] = v
	}

	s.records = append(s.records, merged)
	return nil
}

// At returns a copy of the i'th record. It panics if i is out of range,
// mirroring slice indexing.
func (s *Stratagem) At(i int) Record {
	return copyRecord(s.records[i])
}

// Entries iterates the records in order, yielding each index and a copy of
// the record.
func (s *Stratagem) Entries() iter.Seq2[int, Record] {
	return func(yield func(int, Record) bool) {
		for i, rec := range s.records {
			if !yield(i, copyRecord(rec)) {
				return
			}
		}
	}
}

// TotalOperations returns the number of target-side operations this
// stratagem implies: the sum of each record's iteration count when the
// specification has an iterations field, otherwise the record count.
func (s *Stratagem) TotalOperations() int {
	if _, ok := s.spec[IterationsField]; !ok {
		return len(s.records)
	}
	total := 0
	for _, rec := range s.records {
		if n, ok := rec[IterationsField].(uint64); ok {
			total += int(n)
		}
	}
	return total
}

// String renders the stratagem in a stable, human-readable form: one line
// per record with fields in alphabetical order, unsigned values in hex.
func (s *Stratagem) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s stratagem, %d entries\n", s.operation, len(s.records))

	fields := make([]string, 0, len(s.spec))
	for f := range s.spec {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for i, rec := range s.records {
		fmt.Fprintf(&b, "%4d:", i)
		for _, f := range fields {
			switch v := rec[f].(type) {
			case uint64:
				fmt.Fprintf(&b, " %s=0x%08x", f, v)
			default:
				fmt.Fprintf(&b, " %s=%v", f, v)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// stratagemJSON is the serialized form.
type stratagemJSON struct {
	Operation string   `json:"operation"`
	Entries   []Record `json:"entries"`
}

// Save writes the stratagem as JSON.
func (s *Stratagem) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stratagemJSON{Operation: s.operation, Entries: s.records})
}

// SaveFile writes the stratagem as JSON to the named file, creating or
// truncating it.
func (s *Stratagem) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads a JSON-serialized stratagem. The operation named in the data
// must have a field specification in specs; every record is re-validated
// against it.
func Load(r io.Reader, specs map[string]Spec) (*Stratagem, error) {
	var data stratagemJSON
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("malformed stratagem data: %w", err)
	}

	spec, ok := specs[data.Operation]
	if !ok {
		return nil, &UnknownOperationError{Operation: data.Operation}
	}

	s := New(data.Operation, spec)
	for _, rec := range data.Entries {
		if err := s.Append(rec); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoadFile reads a JSON-serialized stratagem from the named file.
func LoadFile(path string, specs map[string]Spec) (*Stratagem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, specs)
}

func copyRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// coerce normalizes a field value to its specified type. Numeric fields
// accept native integers, integral floats (from JSON decoding), and strings
// in any base strconv understands ("0x1000", "0b101", "42").
func coerce(ft FieldType, value any) (any, error) {
	switch ft {
	case TypeUint:
		switch v := value.(type) {
		case uint64:
			return v, nil
		case uint:
			return uint64(v), nil
		case uint32:
			return uint64(v), nil
		case int:
			if v < 0 {
				return nil, errors.New("negative value for unsigned field")
			}
			return uint64(v), nil
		case int64:
			if v < 0 {
				return nil, errors.New("negative value for unsigned field")
			}
			return uint64(v), nil
		case float64:
			if v < 0 || v != math.Trunc(v) {
				return nil, errors.New("value is not a non-negative integer")
			}
			return uint64(v), nil
		case string:
			return strconv.ParseUint(v, 0, 64)
		}

	case TypeInt:
		switch v := value.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case uint64:
			if v > math.MaxInt64 {
				return nil, errors.New("value overflows signed field")
			}
			return int64(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, errors.New("value is not an integer")
			}
			return int64(v), nil
		case string:
			return strconv.ParseInt(v, 0, 64)
		}

	case TypeString:
		if v, ok := value.(string); ok {
			return v, nil
		}

	case TypeBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(v)
		}
	}

	return nil, fmt.Errorf("cannot convert %T", value)
}
