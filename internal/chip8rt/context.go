// Package chip8rt is a reference implementation of the chip8rt runtime
// contract that generated code links against. The generator emits C calls
// into the C runtime; this package mirrors the instruction semantics so that
// analysis results can be verified by execution and the flag, memory and
// display behavior stays testable inside the recompiler.
package chip8rt

import (
	"errors"
	"fmt"
)

// Machine layout constants, shared with the generated code contract.
const (
	MemorySize    = 4096
	StackSize     = 16
	NumRegisters  = 16
	DisplayWidth  = 64
	DisplayHeight = 32
	DisplaySize   = DisplayWidth * DisplayHeight
	NumKeys       = 16
	ProgramStart  = 0x200
	FontStart     = 0x050
	FontCharSize  = 5
)

// ErrProgramTooLarge is returned when a program exceeds the memory window.
var ErrProgramTooLarge = errors.New("program does not fit into memory")

// font contains the built-in hexadecimal character sprites, 5 bytes each.
var font = [80]byte{
	0xF0, 0x90, 0x90, 0x90, 0xF0, // 0
	0x20, 0x60, 0x20, 0x20, 0x70, // 1
	0xF0, 0x10, 0xF0, 0x80, 0xF0, // 2
	0xF0, 0x10, 0xF0, 0x10, 0xF0, // 3
	0x90, 0x90, 0xF0, 0x10, 0x10, // 4
	0xF0, 0x80, 0xF0, 0x10, 0xF0, // 5
	0xF0, 0x80, 0xF0, 0x90, 0xF0, // 6
	0xF0, 0x10, 0x20, 0x40, 0x40, // 7
	0xF0, 0x90, 0xF0, 0x90, 0xF0, // 8
	0xF0, 0x90, 0xF0, 0x90, 0xF0, // 9
	0xF0, 0x90, 0xF0, 0x90, 0x90, // A
	0xE0, 0x90, 0xE0, 0x90, 0xE0, // B
	0xF0, 0x80, 0x80, 0x80, 0xF0, // C
	0xE0, 0x90, 0x90, 0x90, 0xE0, // D
	0xF0, 0x80, 0xF0, 0x80, 0x80, // E
	0xF0, 0x80, 0xF0, 0x80, 0x80, // F
}

// Context holds the complete CHIP-8 machine state. It matches the
// Chip8Context structure that generated C functions receive.
type Context struct {
	V  [NumRegisters]uint8 // VF doubles as carry/borrow/collision flag
	I  uint16              // index register, 12 bit
	PC uint16
	SP uint8

	DelayTimer uint8
	SoundTimer uint8

	Memory [MemorySize]byte
	Stack  [StackSize]uint16

	Display      [DisplaySize]byte
	DisplayDirty bool

	Keys            [NumKeys]bool
	KeysPrev        [NumKeys]bool
	LastKeyReleased int8

	Running         bool
	WaitingForKey   bool
	KeyWaitRegister uint8

	// cooperative yield bookkeeping
	CyclesRemaining int
	ResumePC        uint16
	ShouldYield     bool

	rng uint32
}

// NewContext creates an initialized machine with the font loaded.
func NewContext() *Context {
	ctx := &Context{}
	ctx.Reset()
	return ctx
}

// Reset restores registers, display, stack and timers to their initial
// state. Program memory above ProgramStart is preserved.
func (ctx *Context) Reset() {
	ctx.V = [NumRegisters]uint8{}
	ctx.I = 0
	ctx.PC = ProgramStart
	ctx.SP = 0
	ctx.DelayTimer = 0
	ctx.SoundTimer = 0
	ctx.Stack = [StackSize]uint16{}
	ctx.Display = [DisplaySize]byte{}
	ctx.DisplayDirty = true
	ctx.Keys = [NumKeys]bool{}
	ctx.KeysPrev = [NumKeys]bool{}
	ctx.LastKeyReleased = -1
	ctx.Running = true
	ctx.WaitingForKey = false
	ctx.ShouldYield = false
	ctx.ResumePC = 0
	ctx.rng = 0x12345678

	copy(ctx.Memory[FontStart:], font[:])
}

// LoadProgram copies program bytes into memory at ProgramStart.
func (ctx *Context) LoadProgram(data []byte) error {
	if len(data) > MemorySize-ProgramStart {
		return fmt.Errorf("%w: %d bytes", ErrProgramTooLarge, len(data))
	}
	copy(ctx.Memory[ProgramStart:], data)
	return nil
}

// ReadByte reads a byte from memory, the address is masked to 12 bits.
func (ctx *Context) ReadByte(address uint16) uint8 {
	return ctx.Memory[address&0x0FFF]
}

// WriteByte writes a byte to memory, the address is masked to 12 bits.
func (ctx *Context) WriteByte(address uint16, value uint8) {
	ctx.Memory[address&0x0FFF] = value
}

// ReadWord reads a big-endian 16 bit word from memory.
func (ctx *Context) ReadWord(address uint16) uint16 {
	masked := address & 0x0FFF
	return uint16(ctx.Memory[masked])<<8 | uint16(ctx.Memory[(masked+1)&0x0FFF])
}

// TickTimers decrements both countdown timers, called at 60Hz.
func (ctx *Context) TickTimers() {
	if ctx.DelayTimer > 0 {
		ctx.DelayTimer--
	}
	if ctx.SoundTimer > 0 {
		ctx.SoundTimer--
	}
}

// SoundActive returns whether the beeper should be on.
func (ctx *Context) SoundActive() bool {
	return ctx.SoundTimer > 0
}
