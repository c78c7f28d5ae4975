package chip8rt

import (
	"fmt"

	"github.com/retroenv/chip8recomp/internal/decoder"
)

// Step fetches, decodes and executes the instruction at PC, advancing the
// machine by one instruction. It returns the decoded instruction so callers
// can trace execution. Unknown opcodes return an error naming the address.
func (ctx *Context) Step(quirks Quirks) (decoder.Instruction, error) {
	opcode := ctx.ReadWord(ctx.PC)
	ins := decoder.Decode(opcode, ctx.PC)

	next := ctx.PC + decoder.OpcodeSize

	switch ins.Kind {
	case decoder.Sys:
		// machine routines are ignored

	case decoder.Cls:
		ctx.ClearScreen()

	case decoder.Ret:
		if ctx.SP == 0 {
			return ins, fmt.Errorf("return with empty stack at 0x%03X", ins.Address)
		}
		ctx.SP--
		next = ctx.Stack[ctx.SP]

	case decoder.Jp:
		next = ins.NNN

	case decoder.Call:
		if ctx.SP >= StackSize {
			return ins, fmt.Errorf("stack overflow at 0x%03X", ins.Address)
		}
		ctx.Stack[ctx.SP] = next
		ctx.SP++
		next = ins.NNN

	case decoder.JpV0:
		offset := ctx.V[0]
		if quirks.JumpUsesVX {
			offset = ctx.V[ins.X]
		}
		next = ins.NNN + uint16(offset)

	case decoder.SeVxNN:
		if ctx.V[ins.X] == ins.NN {
			next += decoder.OpcodeSize
		}

	case decoder.SneVxNN:
		if ctx.V[ins.X] != ins.NN {
			next += decoder.OpcodeSize
		}

	case decoder.SeVxVy:
		if ctx.V[ins.X] == ctx.V[ins.Y] {
			next += decoder.OpcodeSize
		}

	case decoder.SneVxVy:
		if ctx.V[ins.X] != ctx.V[ins.Y] {
			next += decoder.OpcodeSize
		}

	case decoder.Skp:
		if ctx.KeyPressed(ctx.V[ins.X]) {
			next += decoder.OpcodeSize
		}

	case decoder.Sknp:
		if !ctx.KeyPressed(ctx.V[ins.X]) {
			next += decoder.OpcodeSize
		}

	case decoder.LdVxNN:
		ctx.V[ins.X] = ins.NN

	case decoder.LdVxVy:
		ctx.V[ins.X] = ctx.V[ins.Y]

	case decoder.LdINNN:
		ctx.I = ins.NNN

	case decoder.LdVxDt:
		ctx.V[ins.X] = ctx.DelayTimer

	case decoder.LdVxK:
		ctx.WaitKey(ins.X)
		next = ctx.PC // blocked until the main loop delivers a key

	case decoder.LdDtVx:
		ctx.DelayTimer = ctx.V[ins.X]

	case decoder.LdStVx:
		ctx.SoundTimer = ctx.V[ins.X]

	case decoder.LdFVx:
		ctx.I = FontStart + uint16(ctx.V[ins.X]&0x0F)*FontCharSize

	case decoder.LdBVx:
		ctx.StoreBCD(ins.X)

	case decoder.LdIVx:
		ctx.StoreRegisters(ins.X, quirks.LoadStoreIncrement)

	case decoder.LdVxI:
		ctx.LoadRegisters(ins.X, quirks.LoadStoreIncrement)

	case decoder.AddVxNN:
		ctx.V[ins.X] += ins.NN

	case decoder.AddVxVy:
		ctx.AddWithCarry(ins.X, ins.Y)

	case decoder.AddIVx:
		ctx.I += uint16(ctx.V[ins.X])

	case decoder.SubVxVy:
		ctx.SubWithBorrow(ins.X, ins.Y)

	case decoder.SubnVxVy:
		ctx.SubnWithBorrow(ins.X, ins.Y)

	case decoder.OrVxVy:
		ctx.V[ins.X] |= ctx.V[ins.Y]
		if quirks.VFReset {
			ctx.V[0xF] = 0
		}

	case decoder.AndVxVy:
		ctx.V[ins.X] &= ctx.V[ins.Y]
		if quirks.VFReset {
			ctx.V[0xF] = 0
		}

	case decoder.XorVxVy:
		ctx.V[ins.X] ^= ctx.V[ins.Y]
		if quirks.VFReset {
			ctx.V[0xF] = 0
		}

	case decoder.ShrVx:
		ctx.ShiftRight(ins.X, ins.Y, quirks.ShiftUsesVY)

	case decoder.ShlVx:
		ctx.ShiftLeft(ins.X, ins.Y, quirks.ShiftUsesVY)

	case decoder.Rnd:
		ctx.V[ins.X] = ctx.RandomByte() & ins.NN

	case decoder.Drw:
		ctx.DrawSprite(ins.X, ins.Y, ins.N)

	default:
		return ins, fmt.Errorf("unknown opcode %04X at 0x%03X", ins.Opcode, ins.Address)
	}

	ctx.PC = next
	return ins, nil
}
