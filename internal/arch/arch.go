package arch

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Register describes a single CPU register exposed by an architecture.
type Register struct {
	// Name is the canonical register name (e.g., "r13", "x30")
	Name string

	// Ident is the selector byte understood by register-return payloads.
	// The payload receives this value as its argument and hands the
	// corresponding register's content back as its return code.
	Ident byte
}

// Architecture describes the target properties that console operations
// depend on: word size, endianness, and the register file.
type Architecture struct {
	name       string
	wordSize   int
	bigEndian  bool
	supports64 bool
	registers  map[string]Register
	aliases    map[string]string
}

// Name returns the architecture identifier (e.g., "arm", "aarch64").
func (a *Architecture) Name() string { return a.name }

// WordSize returns sizeof(void*) for the architecture, in bytes.
func (a *Architecture) WordSize() int { return a.wordSize }

// BigEndian reports whether multi-byte values are stored most significant
// byte first on the target.
func (a *Architecture) BigEndian() bool { return a.bigEndian }

// Supports64BitData reports whether 8-byte console memory accesses
// (e.g., "md.q") are usable on the target.
func (a *Architecture) Supports64BitData() bool { return a.supports64 }

// Register resolves a register name, including aliases such as "sp" or "lr",
// to its canonical form. Lookup is case-insensitive.
func (a *Architecture) Register(name string) (Register, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := a.aliases[key]; ok {
		key = canonical
	}
	reg, ok := a.registers[key]
	if !ok {
		return Register{}, fmt.Errorf("%s has no register named %q", a.name, name)
	}
	return reg, nil
}

// RegisterNames returns the canonical register names in a stable order.
func (a *Architecture) RegisterNames() []string {
	names := make([]string, 0, len(a.registers))
	for name := range a.registers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeWord converts target-endianness bytes to an integer value.
// Inputs of 1, 2, 4, or 8 bytes are accepted.
func (a *Architecture) DecodeWord(data []byte) (uint64, error) {
	switch len(data) {
	case 1:
		return uint64(data[0]), nil
	case 2:
		if a.bigEndian {
			return uint64(binary.BigEndian.Uint16(data)), nil
		}
		return uint64(binary.LittleEndian.Uint16(data)), nil
	case 4:
		if a.bigEndian {
			return uint64(binary.BigEndian.Uint32(data)), nil
		}
		return uint64(binary.LittleEndian.Uint32(data)), nil
	case 8:
		if a.bigEndian {
			return binary.BigEndian.Uint64(data), nil
		}
		return binary.LittleEndian.Uint64(data), nil
	default:
		return 0, fmt.Errorf("unsupported word size: %d", len(data))
	}
}

// EncodeWord converts an integer value to target-endianness bytes of the
// requested size (1, 2, 4, or 8).
func (a *Architecture) EncodeWord(value uint64, size int) ([]byte, error) {
	buf := make([]byte, 8)
	if a.bigEndian {
		binary.BigEndian.PutUint64(buf, value)
		switch size {
		case 1, 2, 4, 8:
			return buf[8-size:], nil
		}
	} else {
		binary.LittleEndian.PutUint64(buf, value)
		switch size {
		case 1, 2, 4, 8:
			return buf[:size], nil
		}
	}
	return nil, fmt.Errorf("unsupported word size: %d", size)
}

// crashEntry matches "name: value" register entries in a data abort dump,
// tolerating the "[<...>]" bracketing used for pc and lr values.
var crashEntry = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9]*)\s?:\s?(?:\[<)?([0-9a-fA-F]{8,16})(?:>\])?`)

// ParseCrashRegisters extracts register values from the crash dump a target
// prints when a data abort (or equivalent fault) occurs. Expected input
// resembles:
//
//	00000001:data abort
//	pc : [<8f7d8858>]    lr : [<8f7d8801>]
//	sp : 8ed99718  ip : 00000000  fp : 00000001
//	r10: 00000001  r9 : 8eda2ea8  r8 : 00000001
//	...
//	Flags: nZCv  IRQs off  FIQs off  Mode SVC_32
//	Code: 2800f915 f04fd0cf e7ce30ff d10a2d04 (2000f8d8)
//
// Register names are resolved to their canonical form; names that do not
// correspond to a known register are ignored. Relocated values ("reloc pc")
// are skipped in favor of the un-relocated ones.
func (a *Architecture) ParseCrashRegisters(text string) (map[string]uint64, error) {
	regs := make(map[string]uint64)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" ||
			strings.HasPrefix(line, "reloc") ||
			strings.HasPrefix(line, "Flags:") ||
			strings.HasPrefix(line, "Code:") {
			continue
		}

		for _, m := range crashEntry.FindAllStringSubmatch(line, -1) {
			reg, err := a.Register(m[1])
			if err != nil {
				continue
			}
			value, err := strconv.ParseUint(m[2], 16, 64)
			if err != nil {
				continue
			}
			regs[reg.Name] = value
		}
	}

	if len(regs) == 0 {
		return nil, fmt.Errorf("no register content found in crash output: %q", text)
	}
	return regs, nil
}

// Supported architecture definitions. The register ident values correspond
// to the selector bytes used by register-return payloads.
var architectures = map[string]*Architecture{
	"arm": {
		name:       "arm",
		wordSize:   4,
		bigEndian:  false,
		supports64: false,
		registers: map[string]Register{
			"r0":  {Name: "r0", Ident: 0x61},
			"r1":  {Name: "r1", Ident: 0x62},
			"r2":  {Name: "r2", Ident: 0x63},
			"r3":  {Name: "r3", Ident: 0x64},
			"r4":  {Name: "r4", Ident: 0x65},
			"r5":  {Name: "r5", Ident: 0x66},
			"r6":  {Name: "r6", Ident: 0x67},
			"r7":  {Name: "r7", Ident: 0x68},
			"r8":  {Name: "r8", Ident: 0x69},
			"r9":  {Name: "r9", Ident: 0x6a},
			"r10": {Name: "r10", Ident: 0x6b},
			"r11": {Name: "r11", Ident: 0x6c},
			"r12": {Name: "r12", Ident: 0x6d},
			"r13": {Name: "r13", Ident: 0x6e},
			"r14": {Name: "r14", Ident: 0x6f},
			"r15": {Name: "r15", Ident: 0x70},
		},
		aliases: map[string]string{
			"sb": "r9",
			"fp": "r11",
			"ip": "r12",
			"sp": "r13",
			"lr": "r14",
			"pc": "r15",
		},
	},
	"aarch64": {
		name:       "aarch64",
		wordSize:   8,
		bigEndian:  false,
		supports64: true,
		registers:  aarch64Registers(),
		aliases: map[string]string{
			"lr":  "x30",
			"elr": "pc",
		},
	},
	"generic": {
		name:       "generic",
		wordSize:   4,
		bigEndian:  false,
		supports64: false,
		registers:  map[string]Register{},
		aliases:    map[string]string{},
	},
	"generic-be": {
		name:       "generic-be",
		wordSize:   4,
		bigEndian:  true,
		supports64: false,
		registers:  map[string]Register{},
		aliases:    map[string]string{},
	},
}

func aarch64Registers() map[string]Register {
	regs := make(map[string]Register, 33)
	for i := 0; i <= 30; i++ {
		name := fmt.Sprintf("x%d", i)
		regs[name] = Register{Name: name, Ident: byte(0x61 + i)}
	}
	regs["sp"] = Register{Name: "sp", Ident: 0x80}
	regs["pc"] = Register{Name: "pc", Ident: 0x81}
	return regs
}

// Get returns the Architecture definition for the given identifier.
// Lookup is case-insensitive.
func Get(name string) (*Architecture, error) {
	a, ok := architectures[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unsupported architecture: %q (known: %s)",
			name, strings.Join(Names(), ", "))
	}
	return a, nil
}

// Names returns the supported architecture identifiers in a stable order.
func Names() []string {
	names := make([]string, 0, len(architectures))
	for name := range architectures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
