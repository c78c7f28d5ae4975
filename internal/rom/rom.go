// Package rom handles CHIP-8 ROM file loading and validation.
package rom

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// CHIP-8 memory layout constants.
const (
	// ProgramStart is the memory address where CHIP-8 programs begin execution.
	ProgramStart = 0x200

	// MemorySize is the total addressable memory (4KB).
	MemorySize = 4096

	// MaxSize is the maximum allowed ROM size, leaving room for the
	// interpreter area below ProgramStart.
	MaxSize = MemorySize - ProgramStart

	// MinSize is the minimum valid ROM size, one instruction.
	MinSize = 2
)

// Validation errors returned by Load and Validate.
var (
	ErrTooLarge = errors.New("ROM exceeds addressable program space")
	ErrTooSmall = errors.New("ROM does not contain a single instruction")
)

// ROM contains a loaded CHIP-8 program and its metadata.
type ROM struct {
	Path string // file path, empty for in-memory ROMs
	Name string // identifier derived from the file name
	Data []byte // raw ROM bytes
}

// Load reads and validates a ROM file from disk.
func Load(path string) (*ROM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ROM file %s: %w", path, err)
	}

	r := &ROM{
		Path: path,
		Name: ExtractName(path),
		Data: data,
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("validating ROM %s: %w", path, err)
	}
	return r, nil
}

// FromBytes creates a ROM from an in-memory buffer.
func FromBytes(data []byte, name string) (*ROM, error) {
	r := &ROM{
		Name: name,
		Data: data,
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("validating ROM %s: %w", name, err)
	}
	return r, nil
}

// Validate checks that the ROM fits the CHIP-8 program address window.
func (r *ROM) Validate() error {
	if len(r.Data) < MinSize {
		return fmt.Errorf("%w: %d bytes", ErrTooSmall, len(r.Data))
	}
	if len(r.Data) > MaxSize {
		return fmt.Errorf("%w: %d bytes, maximum %d", ErrTooLarge, len(r.Data), MaxSize)
	}
	return nil
}

// Size returns the ROM size in bytes.
func (r *ROM) Size() int {
	return len(r.Data)
}

// OddSize returns whether the ROM has a trailing unpaired byte.
// The decoder drops the byte, it is kept in Data for embedding.
func (r *ROM) OddSize() bool {
	return len(r.Data)%2 != 0
}

// ExtractName derives a C identifier from a ROM file path.
// Bracket and parenthesis metadata is stripped, the rest is lowercased and
// non-alphanumeric runs collapse to single underscores.
// Example: "Pong [David Winter].ch8" -> "pong".
func ExtractName(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if idx := strings.IndexByte(name, '['); idx != -1 {
		name = name[:idx]
	}
	if idx := strings.IndexByte(name, '('); idx != -1 {
		name = name[:idx]
	}
	name = strings.ToLower(strings.TrimSpace(name))

	var sb strings.Builder
	lastUnderscore := false
	for _, c := range name {
		if c < unicode.MaxASCII && (unicode.IsLetter(c) || unicode.IsDigit(c)) {
			sb.WriteRune(c)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			sb.WriteByte('_')
			lastUnderscore = true
		}
	}

	name = strings.Trim(sb.String(), "_")
	if name == "" {
		return "rom"
	}
	// a leading digit would produce an invalid C identifier
	if name[0] >= '0' && name[0] <= '9' {
		name = "rom_" + name
	}
	return name
}

// DetectVariant scans the ROM for opcodes that only exist in SUPER-CHIP.
func DetectVariant(data []byte) string {
	for i := 0; i+1 < len(data); i += 2 {
		opcode := uint16(data[i])<<8 | uint16(data[i+1])

		switch opcode {
		case 0x00FB, 0x00FC, 0x00FD, 0x00FE, 0x00FF: // SCR, SCL, EXIT, LOW, HIGH
			return "SUPER-CHIP"
		}
		switch {
		case opcode&0xFFF0 == 0x00C0: // SCD n
			return "SUPER-CHIP"
		case opcode&0xF00F == 0xD000: // DRW with n=0, 16x16 sprite
			return "SUPER-CHIP"
		case opcode&0xF0FF == 0xF030: // hi-res font
			return "SUPER-CHIP"
		case opcode&0xF0FF == 0xF075, opcode&0xF0FF == 0xF085: // HP48 flags
			return "SUPER-CHIP"
		}
	}
	return "CHIP-8"
}
