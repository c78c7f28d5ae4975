// Package decoder translates raw CHIP-8 opcodes into structured instructions.
package decoder

import (
	chip8cpu "github.com/retroenv/retrogolib/arch/cpu/chip8"
)

// OpcodeSize is the size of CHIP-8 instructions in bytes.
const OpcodeSize = 2

// Kind identifies a decoded CHIP-8 operation.
type Kind uint8

// All CHIP-8 operations. Unmatched bit patterns decode to Unknown.
const (
	Unknown Kind = iota
	Sys          // 0NNN - machine routine, ignored on modern interpreters
	Cls          // 00E0 - clear display
	Ret          // 00EE - return from subroutine
	Jp           // 1NNN - jump
	Call         // 2NNN - call subroutine
	JpV0         // BNNN - computed jump, base + V0
	SeVxNN       // 3XNN - skip if Vx == NN
	SneVxNN      // 4XNN - skip if Vx != NN
	SeVxVy       // 5XY0 - skip if Vx == Vy
	SneVxVy      // 9XY0 - skip if Vx != Vy
	Skp          // EX9E - skip if key Vx pressed
	Sknp         // EXA1 - skip if key Vx not pressed
	LdVxNN       // 6XNN - load immediate
	LdVxVy       // 8XY0 - copy register
	LdINNN       // ANNN - load index register
	LdVxDt       // FX07 - read delay timer
	LdVxK        // FX0A - wait for key press
	LdDtVx       // FX15 - set delay timer
	LdStVx       // FX18 - set sound timer
	LdFVx        // FX29 - point I at font sprite
	LdBVx        // FX33 - store BCD
	LdIVx        // FX55 - store registers to memory
	LdVxI        // FX65 - load registers from memory
	AddVxNN      // 7XNN - add immediate, no flag
	AddVxVy      // 8XY4 - add with carry flag
	AddIVx       // FX1E - add Vx to I
	SubVxVy      // 8XY5 - subtract with borrow flag
	SubnVxVy     // 8XY7 - reverse subtract with borrow flag
	OrVxVy       // 8XY1 - bitwise or
	AndVxVy      // 8XY2 - bitwise and
	XorVxVy      // 8XY3 - bitwise xor
	ShrVx        // 8XY6 - shift right
	ShlVx        // 8XYE - shift left
	Rnd          // CXNN - random byte AND NN
	Drw          // DXYN - draw sprite with collision flag
)

// Instruction is a decoded CHIP-8 instruction. Instructions are created once
// by the decoder and never mutated.
type Instruction struct {
	Address uint16 // location in the 4KB address space
	Opcode  uint16 // raw opcode
	Kind    Kind

	X   uint8  // register index, nibble 2
	Y   uint8  // register index, nibble 3
	N   uint8  // 4 bit immediate, nibble 4
	NN  uint8  // 8 bit immediate, low byte
	NNN uint16 // 12 bit address, low 12 bits

	IsJump   bool // unconditional control transfer
	IsBranch bool // conditional two-way skip
	IsCall   bool
	IsReturn bool
}

// IsTerminator returns whether the instruction unconditionally ends a basic
// block: returns and the two jump variants.
func (ins Instruction) IsTerminator() bool {
	return ins.IsJump || ins.IsReturn
}

// Decode decodes a single 16-bit opcode at the given address. It is total:
// every opcode value maps to an instruction, unassigned patterns map to the
// Unknown kind.
func Decode(opcode, address uint16) Instruction {
	ins := Instruction{
		Address: address,
		Opcode:  opcode,
		X:       uint8(opcode & 0x0F00 >> 8),
		Y:       uint8(opcode & 0x00F0 >> 4),
		N:       uint8(opcode & 0x000F),
		NN:      uint8(opcode & 0x00FF),
		NNN:     opcode & 0x0FFF,
	}

	switch opcode & 0xF000 >> 12 {
	case 0x0:
		switch opcode {
		case 0x00E0:
			ins.Kind = Cls
		case 0x00EE:
			ins.Kind = Ret
			ins.IsReturn = true
		default:
			ins.Kind = Sys
		}

	case 0x1:
		ins.Kind = Jp
		ins.IsJump = true

	case 0x2:
		ins.Kind = Call
		ins.IsCall = true

	case 0x3:
		ins.Kind = SeVxNN
		ins.IsBranch = true

	case 0x4:
		ins.Kind = SneVxNN
		ins.IsBranch = true

	case 0x5:
		if ins.N == 0 {
			ins.Kind = SeVxVy
			ins.IsBranch = true
		}

	case 0x6:
		ins.Kind = LdVxNN

	case 0x7:
		ins.Kind = AddVxNN

	case 0x8:
		ins.Kind = decodeArithmetic(ins.N)

	case 0x9:
		if ins.N == 0 {
			ins.Kind = SneVxVy
			ins.IsBranch = true
		}

	case 0xA:
		ins.Kind = LdINNN

	case 0xB:
		ins.Kind = JpV0
		ins.IsJump = true

	case 0xC:
		ins.Kind = Rnd

	case 0xD:
		ins.Kind = Drw

	case 0xE:
		switch ins.NN {
		case 0x9E:
			ins.Kind = Skp
			ins.IsBranch = true
		case 0xA1:
			ins.Kind = Sknp
			ins.IsBranch = true
		}

	case 0xF:
		ins.Kind = decodeMisc(ins.NN)
	}

	return ins
}

// decodeArithmetic handles the 8XYN family, dispatched on the low nibble.
func decodeArithmetic(n uint8) Kind {
	switch n {
	case 0x0:
		return LdVxVy
	case 0x1:
		return OrVxVy
	case 0x2:
		return AndVxVy
	case 0x3:
		return XorVxVy
	case 0x4:
		return AddVxVy
	case 0x5:
		return SubVxVy
	case 0x6:
		return ShrVx
	case 0x7:
		return SubnVxVy
	case 0xE:
		return ShlVx
	default:
		return Unknown
	}
}

// decodeMisc handles the FXNN family, dispatched on the low byte.
func decodeMisc(nn uint8) Kind {
	switch nn {
	case 0x07:
		return LdVxDt
	case 0x0A:
		return LdVxK
	case 0x15:
		return LdDtVx
	case 0x18:
		return LdStVx
	case 0x1E:
		return AddIVx
	case 0x29:
		return LdFVx
	case 0x33:
		return LdBVx
	case 0x55:
		return LdIVx
	case 0x65:
		return LdVxI
	default:
		return Unknown
	}
}

// DecodeProgram decodes every 2-byte aligned opcode pair of a program,
// producing len(data)/2 instructions. A trailing odd byte is dropped.
func DecodeProgram(data []byte, baseAddress uint16) []Instruction {
	instructions := make([]Instruction, 0, len(data)/OpcodeSize)

	for i := 0; i+1 < len(data); i += OpcodeSize {
		opcode := uint16(data[i])<<8 | uint16(data[i+1])
		instructions = append(instructions, Decode(opcode, baseAddress+uint16(i)))
	}
	return instructions
}

// Mnemonic returns the assembly mnemonic for an instruction kind.
func (k Kind) Mnemonic() string {
	switch k {
	case Cls:
		return chip8cpu.ClsName
	case Ret:
		return chip8cpu.RetName
	case Jp, JpV0:
		return chip8cpu.JpName
	case Call:
		return chip8cpu.CallName
	case SeVxNN, SeVxVy:
		return chip8cpu.SeName
	case SneVxNN, SneVxVy:
		return chip8cpu.SneName
	case Skp:
		return chip8cpu.SkpName
	case Sknp:
		return chip8cpu.SknpName
	case LdVxNN, LdVxVy, LdINNN, LdVxDt, LdVxK, LdDtVx, LdStVx, LdFVx, LdBVx, LdIVx, LdVxI:
		return chip8cpu.LdName
	case AddVxNN, AddVxVy, AddIVx:
		return chip8cpu.AddName
	case SubVxVy:
		return chip8cpu.SubName
	case SubnVxVy:
		return chip8cpu.SubnName
	case OrVxVy:
		return chip8cpu.OrName
	case AndVxVy:
		return chip8cpu.AndName
	case XorVxVy:
		return chip8cpu.XorName
	case ShrVx:
		return chip8cpu.ShrName
	case ShlVx:
		return chip8cpu.ShlName
	case Rnd:
		return chip8cpu.RndName
	case Drw:
		return chip8cpu.DrwName
	case Sys:
		return "SYS"
	default:
		return "???"
	}
}
