package decoder

import (
	"fmt"
	"strings"
)

// Params formats the instruction operands for assembly output.
func (ins Instruction) Params() string {
	switch ins.Kind {
	case Cls, Ret:
		return ""
	case Jp, Call:
		return fmt.Sprintf("$%03X", ins.NNN)
	case JpV0:
		return fmt.Sprintf("V0, $%03X", ins.NNN)
	case SeVxNN, SneVxNN, LdVxNN, AddVxNN, Rnd:
		return fmt.Sprintf("V%X, $%02X", ins.X, ins.NN)
	case SeVxVy, SneVxVy, LdVxVy, OrVxVy, AndVxVy, XorVxVy, AddVxVy, SubVxVy, SubnVxVy:
		return fmt.Sprintf("V%X, V%X", ins.X, ins.Y)
	case ShrVx, ShlVx, Skp, Sknp:
		return fmt.Sprintf("V%X", ins.X)
	case LdINNN:
		return fmt.Sprintf("I, $%03X", ins.NNN)
	case LdVxDt:
		return fmt.Sprintf("V%X, DT", ins.X)
	case LdVxK:
		return fmt.Sprintf("V%X, K", ins.X)
	case LdDtVx:
		return fmt.Sprintf("DT, V%X", ins.X)
	case LdStVx:
		return fmt.Sprintf("ST, V%X", ins.X)
	case LdFVx:
		return fmt.Sprintf("F, V%X", ins.X)
	case LdBVx:
		return fmt.Sprintf("B, V%X", ins.X)
	case LdIVx:
		return fmt.Sprintf("[I], V%X", ins.X)
	case LdVxI:
		return fmt.Sprintf("V%X, [I]", ins.X)
	case AddIVx:
		return fmt.Sprintf("I, V%X", ins.X)
	case Drw:
		return fmt.Sprintf("V%X, V%X, %d", ins.X, ins.Y, ins.N)
	case Sys:
		return fmt.Sprintf("$%03X", ins.NNN)
	default:
		return ""
	}
}

// String returns the instruction as assembly text without address prefix,
// for example "LD VA, $05".
func (ins Instruction) String() string {
	mnemonic := strings.ToUpper(ins.Kind.Mnemonic())
	params := ins.Params()
	if params == "" {
		return mnemonic
	}
	return mnemonic + " " + params
}

// Listing returns a full disassembly line with address and opcode columns,
// for example "200: 6A05  LD VA, $05".
func (ins Instruction) Listing() string {
	return fmt.Sprintf("%03X: %04X  %s", ins.Address, ins.Opcode, ins.String())
}
